package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// FolderManager maps suppliers to their folders under the storage root
type FolderManager struct {
	baseDir string
	logger  *zap.Logger
}

// NewFolderManager creates a new FolderManager
func NewFolderManager(baseDir string, logger *zap.Logger) *FolderManager {
	return &FolderManager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Ensure creates the supplier's folder if needed and returns its path
// relative to the storage root.
func (m *FolderManager) Ensure(ctx context.Context, supplierName string) (string, error) {
	rel := m.RelativePath(supplierName)
	if rel == "" {
		return "", fmt.Errorf("cannot create folder for supplier %q: empty name after sanitizing", supplierName)
	}

	folderPath := filepath.Join(m.baseDir, rel)
	if err := os.MkdirAll(folderPath, 0755); err != nil {
		m.logger.Error("Failed to create folder",
			zap.String("supplier", supplierName),
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create folder: %w", err)
	}
	return rel, nil
}

// RelativePath returns the folder of a supplier relative to the root.
// It does not create the folder.
func (m *FolderManager) RelativePath(supplierName string) string {
	return m.SanitizeName(supplierName)
}

// Exists checks if the supplier's folder exists
func (m *FolderManager) Exists(supplierName string) bool {
	rel := m.RelativePath(supplierName)
	if rel == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(m.baseDir, rel))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// SanitizeName returns a filesystem-safe folder name.
// Spaces become underscores; anything outside [A-Za-z0-9_-] is dropped.
func (m *FolderManager) SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.Join(strings.Fields(name), "_")
	return unsafeFolderChars.ReplaceAllString(name, "")
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"go.uber.org/zap"
)

// ErrPathEscape is returned for paths that resolve outside the root.
var ErrPathEscape = errors.New("path escapes base directory")

// LocalFileStorage implements port.FileStorage for local filesystem
type LocalFileStorage struct {
	baseDir string
	folders *FolderManager
	logger  *zap.Logger
}

// NewLocalFileStorage creates a new LocalFileStorage
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{
		baseDir: baseDir,
		folders: NewFolderManager(baseDir, logger),
		logger:  logger,
	}
}

var _ port.FileStorage = (*LocalFileStorage)(nil)

// Save streams r into the supplier's folder. An existing file of the
// same name is kept and the new one gets a numeric prefix.
func (s *LocalFileStorage) Save(ctx context.Context, supplierName, fileName string, r io.Reader) (string, int64, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(fileName, "\\", "/")))
	if base == "/" || base == "." || base == ".." {
		return "", 0, fmt.Errorf("invalid file name %q", fileName)
	}

	folder, err := s.folders.Ensure(ctx, supplierName)
	if err != nil {
		return "", 0, err
	}

	f, rel, err := s.createUnique(folder, base)
	if err != nil {
		return "", 0, err
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(s.GetFullPath(rel))
		s.logger.Error("Failed to write file",
			zap.String("path", rel),
			zap.Error(err))
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File saved successfully",
		zap.String("path", rel),
		zap.Int64("size", n))

	return rel, n, nil
}

// createUnique opens a new file in folder, never truncating an
// existing one.
func (s *LocalFileStorage) createUnique(folder, name string) (*os.File, string, error) {
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%d_%s", i, name)
		}
		rel := filepath.Join(folder, candidate)
		fullPath := s.GetFullPath(rel)
		if err := s.validatePath(fullPath); err != nil {
			return nil, "", err
		}

		f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, filepath.ToSlash(rel), nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("too many files named %s", name)
}

// Open opens a stored file for streaming
func (s *LocalFileStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath := s.GetFullPath(path)
	if err := s.validatePath(fullPath); err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		s.logger.Error("Failed to open file",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Read reads content from the specified relative path
func (s *LocalFileStorage) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath := s.GetFullPath(path)

	if err := s.validatePath(fullPath); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		s.logger.Error("Failed to read file",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return content, nil
}

// Exists checks if a file exists at the specified relative path
func (s *LocalFileStorage) Exists(ctx context.Context, path string) bool {
	fullPath := s.GetFullPath(path)
	if s.validatePath(fullPath) != nil {
		return false
	}
	_, err := os.Stat(fullPath)
	return err == nil
}

// Delete removes a file at the specified relative path
func (s *LocalFileStorage) Delete(ctx context.Context, path string) error {
	fullPath := s.GetFullPath(path)

	if err := s.validatePath(fullPath); err != nil {
		return err
	}

	// missing file is not an error
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}

	s.logger.Debug("File deleted successfully",
		zap.String("path", fullPath))

	return nil
}

// GetFullPath converts a relative path to full path
func (s *LocalFileStorage) GetFullPath(relativePath string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(relativePath))
}

// validatePath checks that the path is safe and within baseDir
func (s *LocalFileStorage) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("%w: %s", ErrPathEscape, fullPath)
	}

	return nil
}

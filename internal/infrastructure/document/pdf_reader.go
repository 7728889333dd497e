package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/application/port"
)

// DefaultMaxPages limits how many pages are read from one document.
const DefaultMaxPages = 10

// PDFReader extracts the text layer of PDF documents using mupdf
type PDFReader struct {
	maxPages int
	logger   *zap.Logger
}

var _ port.DocumentReader = (*PDFReader)(nil)

// NewPDFReader creates a new PDF reader
func NewPDFReader(maxPages int, logger *zap.Logger) *PDFReader {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PDFReader{maxPages: maxPages, logger: logger}
}

// ExtractText returns the text of the first pages of the PDF at path.
// Pages that fail to extract are skipped.
func (r *PDFReader) ExtractText(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("PDF file not found: %s", path)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount > r.maxPages {
		pageCount = r.maxPages
	}

	var sb strings.Builder
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		text, err := doc.Text(pageNum)
		if err != nil {
			r.logger.Warn("Failed to extract page text",
				zap.String("path", path),
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	r.logger.Debug("Extracted PDF text",
		zap.String("path", path),
		zap.Int("pages", pageCount),
		zap.Int("chars", sb.Len()))

	return strings.TrimSpace(sb.String()), nil
}

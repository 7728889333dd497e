package storage

import (
	"net/url"
	"strings"
)

// URLLinkBuilder renders attachment links against the public API URL.
type URLLinkBuilder struct {
	baseURL string
}

// NewURLLinkBuilder creates a link builder rooted at baseURL,
// e.g. "https://portal.example.com".
func NewURLLinkBuilder(baseURL string) *URLLinkBuilder {
	return &URLLinkBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// AttachmentLink returns the download URL of one attachment
func (b *URLLinkBuilder) AttachmentLink(supplierName, attachmentID string) string {
	return b.supplierURL(supplierName) + "/attachments/" + url.PathEscape(attachmentID)
}

// ArchiveLink returns the zip download URL of all attachments
func (b *URLLinkBuilder) ArchiveLink(supplierName string) string {
	return b.supplierURL(supplierName) + "/attachments/archive"
}

func (b *URLLinkBuilder) supplierURL(supplierName string) string {
	return b.baseURL + "/api/suppliers/" + url.PathEscape(supplierName)
}

package port

import (
	"context"
	"io"
)

// FileStorage stores attachment blobs under a per-supplier folder.
// Paths are relative to the storage root.
type FileStorage interface {
	// Save writes r to fileName in the supplier's folder and returns the
	// relative path and byte count.
	Save(ctx context.Context, supplierName, fileName string, r io.Reader) (string, int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	GetFullPath(relativePath string) string
}

// LinkBuilder turns stored attachments into URLs the approver can open.
type LinkBuilder interface {
	AttachmentLink(supplierName, attachmentID string) string
	ArchiveLink(supplierName string) string
}

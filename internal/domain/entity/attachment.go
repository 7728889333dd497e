package entity

import (
	"strings"
	"time"
)

// Attachment is metadata for one uploaded file. The blob lives in the
// file store under the supplier's folder.
type Attachment struct {
	ID           string    `json:"id"`
	SupplierName string    `json:"supplierName"`
	FileName     string    `json:"fileName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	StoragePath  string    `json:"-"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

var mimeLabels = map[string]string{
	"application/pdf": "PDF",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       "XLSX",
	"application/vnd.ms-excel":                                                "XLS",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "DOCX",
	"application/msword": "DOC",
	"image/png":          "PNG",
	"image/jpeg":         "JPEG",
	"image/jpg":          "JPG",
}

// TypeLabel returns the short label shown next to a file, e.g. "PDF".
// Unknown types fall back to the upper-cased subtype.
func (a *Attachment) TypeLabel() string {
	return MimeLabel(a.MimeType)
}

// MimeLabel maps a mime type to its short label.
func MimeLabel(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if label, ok := mimeLabels[mt]; ok {
		return label
	}
	if i := strings.LastIndex(mt, "/"); i >= 0 && i < len(mt)-1 {
		return strings.ToUpper(mt[i+1:])
	}
	return strings.ToUpper(mt)
}

// AttachmentContent is the base64 download shape.
type AttachmentContent struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
}

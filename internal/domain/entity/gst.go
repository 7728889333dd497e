package entity

import "time"

// GSTCheck is the stored result of scanning one document for a GSTIN.
type GSTCheck struct {
	ID           string    `json:"id"`
	SupplierName string    `json:"supplierName"`
	AttachmentID string    `json:"attachmentId"`
	FileName     string    `json:"fileName"`
	GSTIN        string    `json:"gstin"`
	LegalName    string    `json:"legalName,omitempty"`
	StateCode    string    `json:"stateCode,omitempty"`
	Valid        bool      `json:"valid"`
	Message      string    `json:"message,omitempty"`
	CheckedAt    time.Time `json:"checkedAt"`
}

package entity

import "time"

// ApprovalRecord is one ledger row: the decision slot of one approver
// level for one supplier.
type ApprovalRecord struct {
	ID            int64      `json:"id"`
	SupplierName  string     `json:"supplierName"`
	Level         int        `json:"level"`
	ApproverName  string     `json:"approverName"`
	ApproverEmail string     `json:"approverEmail"`
	Status        string     `json:"status"`
	Comment       string     `json:"comment,omitempty"`
	Version       int64      `json:"version"`
	EscalatedAt   *time.Time `json:"escalatedAt,omitempty"`
	ExternalRef   string     `json:"externalRef,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// IsPending reports whether the row still awaits a decision.
func (r *ApprovalRecord) IsPending() bool {
	return r.Status == StatusPending
}

// IsActive reports whether the row is pending and was already sent to
// the workflow engine.
func (r *ApprovalRecord) IsActive() bool {
	return r.IsPending() && r.EscalatedAt != nil
}

// View returns the read-only projection served to the UI.
func (r *ApprovalRecord) View() ApprovalView {
	return ApprovalView{
		Level:         r.Level,
		Status:        r.Status,
		Comment:       r.Comment,
		ApproverName:  r.ApproverName,
		ApproverEmail: r.ApproverEmail,
	}
}

// ApprovalView is the query projection of a ledger row.
type ApprovalView struct {
	Level         int    `json:"level"`
	Status        string `json:"status"`
	Comment       string `json:"comment"`
	ApproverName  string `json:"approverName"`
	ApproverEmail string `json:"approverEmail"`
}

// ApprovalHistory is an append-only audit row for one ledger transition.
type ApprovalHistory struct {
	ID             int64     `json:"id"`
	SupplierName   string    `json:"supplierName"`
	Level          int       `json:"level"`
	Action         string    `json:"action"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	Actor          string    `json:"actor"`
	Comment        string    `json:"comment,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

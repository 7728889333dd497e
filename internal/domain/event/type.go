package event

// Type identifies the type of domain event
type Type string

const (
	TypeSupplierCreated     Type = "supplier.created"
	TypeAttachmentsUploaded Type = "attachments.uploaded"
	TypeEscalationSent      Type = "escalation.sent"
	TypeApprovalRecorded    Type = "approval.recorded"
	TypeSupplierRejected    Type = "supplier.rejected"
	TypeSupplierApproved    Type = "supplier.approved"
	TypeFinalizationFailed  Type = "finalization.failed"
)

func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeSupplierCreated,
		TypeAttachmentsUploaded,
		TypeEscalationSent,
		TypeApprovalRecorded,
		TypeSupplierRejected,
		TypeSupplierApproved,
		TypeFinalizationFailed:
		return true
	default:
		return false
	}
}

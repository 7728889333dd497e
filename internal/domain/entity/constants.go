package entity

// Lifecycle status shared by suppliers and ledger rows
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Outbox intent kinds
const (
	IntentKindEscalate = "ESCALATE"
)

// Outbox intent status
const (
	IntentStatusPending    = "PENDING"
	IntentStatusProcessing = "PROCESSING"
	IntentStatusDone       = "DONE"
	IntentStatusFailed     = "FAILED"
)

// History actions
const (
	ActionSeeded        = "SEEDED"
	ActionEscalated     = "ESCALATED"
	ActionApproved      = "APPROVED"
	ActionRejected      = "REJECTED"
	ActionCascadeReject = "CASCADE_REJECTED"
	ActionFinalized     = "FINALIZED"
)

// AutoRejectComment is written on every level above a rejected one.
const AutoRejectComment = "auto-rejected due to earlier rejection"

// SystemActor is recorded as the actor of engine-initiated transitions.
const SystemActor = "system"

// Fixed business-partner classification used at finalization
const (
	BusinessPartnerCategoryOrganization = "2"
	BusinessPartnerGrouping             = "BPAB"
)

// IsValidStatus reports whether s is one of the lifecycle statuses.
func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

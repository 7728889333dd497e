package workflow

import "strings"

// Trigger is an event that can move a ledger row or a supplier.
type Trigger string

const (
	// TriggerApprove records an approver's approval.
	TriggerApprove Trigger = "APPROVE"
	// TriggerReject records an approver's rejection.
	TriggerReject Trigger = "REJECT"
	// TriggerCascadeReject force-rejects a level above a rejected one.
	TriggerCascadeReject Trigger = "CASCADE_REJECT"
	// TriggerFinalize marks a supplier approved once the partner exists.
	TriggerFinalize Trigger = "FINALIZE"
)

func (t Trigger) String() string {
	return string(t)
}

// OutcomeTrigger maps a callback outcome ("Approved", "REJECTED", ...)
// to its trigger. ok is false for anything else.
func OutcomeTrigger(outcome string) (trigger Trigger, target State, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(outcome)) {
	case string(StateApproved):
		return TriggerApprove, StateApproved, true
	case string(StateRejected):
		return TriggerReject, StateRejected, true
	}
	return "", "", false
}

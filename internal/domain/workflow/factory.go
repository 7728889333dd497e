package workflow

import (
	"fmt"
	"sync"
)

// ledgerRowBuilder is built on first use; package-level state such as
// validStates must be initialized before Configure runs.
var ledgerRowBuilder = sync.OnceValue(func() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerCascadeReject, StateRejected)
	// cascade overrides any decision above a rejected level
	b.Configure(StateApproved).
		Permit(TriggerCascadeReject, StateRejected)
	b.Configure(StateRejected).
		Permit(TriggerCascadeReject, StateRejected)
	return b
})

// NewLedgerRowMachine returns the machine of one ledger row in status.
func NewLedgerRowMachine(status string) (StateMachine, error) {
	s := State(status)
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, status)
	}
	return ledgerRowBuilder().Build(s), nil
}

// NewSupplierMachine returns the machine of a supplier in status.
// ledgerCleared guards FINALIZE: a supplier is approved only once every
// level has approved.
func NewSupplierMachine(status string, ledgerCleared GuardFunc) (StateMachine, error) {
	s := State(status)
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, status)
	}

	b := NewBuilder()
	b.Configure(StatePending).
		PermitIf(TriggerFinalize, StateApproved, ledgerCleared).
		Permit(TriggerReject, StateRejected)
	return b.Build(s), nil
}

package workflow

import "context"

// StateMachine tracks a current state and validates transitions.
type StateMachine interface {
	State() State

	// CanFire reports whether any transition is declared for trigger.
	// Guards are not evaluated.
	CanFire(trigger Trigger) bool

	// Fire moves the machine, or returns ErrInvalidTransition or
	// ErrGuardFailed and stays put.
	Fire(ctx context.Context, trigger Trigger) error

	// Peek returns the state Fire would move to.
	Peek(ctx context.Context, trigger Trigger) (State, error)

	PermittedTriggers() []Trigger
}

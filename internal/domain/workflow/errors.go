package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when no transition is declared
	// for the trigger in the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned for an unknown state value.
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when every declared transition was
	// vetoed by its guard.
	ErrGuardFailed = errors.New("guard condition failed")
)

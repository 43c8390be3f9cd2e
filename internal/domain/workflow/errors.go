package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not permitted in the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned for states outside the emission state set
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when every guarded transition for a trigger was rejected
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrInvalidFlow is returned by Build for an inconsistent transition table
	ErrInvalidFlow = errors.New("invalid flow definition")
)

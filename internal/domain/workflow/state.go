package workflow

// State is a state of the fiscal-document emission sub-flow
type State string

const (
	StateNotRequested        State = "NOT_REQUESTED"
	StateDrafting            State = "DRAFTING"
	StateEmitting            State = "EMITTING"
	StateSucceeded           State = "SUCCEEDED"
	StateFailed              State = "FAILED"
	StateSkippedAfterFailure State = "SKIPPED_AFTER_FAILURE"
)

var validStates = map[State]bool{
	StateNotRequested:        true,
	StateDrafting:            true,
	StateEmitting:            true,
	StateSucceeded:           true,
	StateFailed:              true,
	StateSkippedAfterFailure: true,
}

var terminalStates = map[State]bool{
	StateSucceeded:           true,
	StateSkippedAfterFailure: true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known emission state
func (s State) IsValid() bool {
	return validStates[s]
}

// Requested reports whether the operator asked for a fiscal document in this state
func (s State) Requested() bool {
	return s != StateNotRequested && s.IsValid()
}

// Attempted reports whether an emission call has returned (successfully or not)
func (s State) Attempted() bool {
	return s == StateSucceeded || s == StateFailed || s == StateSkippedAfterFailure
}

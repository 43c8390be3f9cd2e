package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Guard decides whether a transition may be taken for env. A non-nil error blocks
// the transition and is reported to the caller as the reason.
type Guard[E any] func(ctx context.Context, env E) error

// Transition is the outcome of a successful Fire
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

type rule[E any] struct {
	to    State
	guard Guard[E]
}

// Flow is an immutable transition table. The current state lives with the caller,
// so one Flow serves every session concurrently.
type Flow[E any] struct {
	rules map[State]map[Trigger][]rule[E]
}

// FlowBuilder collects transitions for a Flow
type FlowBuilder[E any] struct {
	rules map[State]map[Trigger][]rule[E]
	errs  []error
}

// StateRules adds transitions leaving one state
type StateRules[E any] struct {
	b    *FlowBuilder[E]
	from State
}

// NewFlowBuilder creates an empty builder
func NewFlowBuilder[E any]() *FlowBuilder[E] {
	return &FlowBuilder[E]{rules: make(map[State]map[Trigger][]rule[E])}
}

// From starts the transitions leaving state
func (b *FlowBuilder[E]) From(state State) *StateRules[E] {
	if !state.IsValid() {
		b.errs = append(b.errs, fmt.Errorf("%w: source %q", ErrInvalidState, state))
	} else if state.IsTerminal() {
		b.errs = append(b.errs, fmt.Errorf("terminal state %s cannot have transitions", state))
	}
	return &StateRules[E]{b: b, from: state}
}

// On permits trigger to move to state unconditionally
func (r *StateRules[E]) On(trigger Trigger, to State) *StateRules[E] {
	return r.OnIf(trigger, to, nil)
}

// OnIf permits trigger to move to state when guard passes. Several rules for the same
// trigger are tried in the order they were added.
func (r *StateRules[E]) OnIf(trigger Trigger, to State, guard Guard[E]) *StateRules[E] {
	if !to.IsValid() {
		r.b.errs = append(r.b.errs, fmt.Errorf("%w: target %q", ErrInvalidState, to))
		return r
	}
	byTrigger := r.b.rules[r.from]
	if byTrigger == nil {
		byTrigger = make(map[Trigger][]rule[E])
		r.b.rules[r.from] = byTrigger
	}
	byTrigger[trigger] = append(byTrigger[trigger], rule[E]{to: to, guard: guard})
	return r
}

// Build freezes the table
func (b *FlowBuilder[E]) Build() (*Flow[E], error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFlow, errors.Join(b.errs...))
	}

	rules := make(map[State]map[Trigger][]rule[E], len(b.rules))
	for from, byTrigger := range b.rules {
		frozen := make(map[Trigger][]rule[E], len(byTrigger))
		for trigger, rs := range byTrigger {
			frozen[trigger] = append([]rule[E](nil), rs...)
		}
		rules[from] = frozen
	}
	return &Flow[E]{rules: rules}, nil
}

// MustBuild is Build for package-level tables known at compile time
func (b *FlowBuilder[E]) MustBuild() *Flow[E] {
	f, err := b.Build()
	if err != nil {
		panic(err)
	}
	return f
}

// Fire resolves trigger from state for env. The first rule whose guard passes wins;
// when all are blocked the first guard error is returned as the reason.
func (f *Flow[E]) Fire(ctx context.Context, from State, trigger Trigger, env E) (Transition, error) {
	if !from.IsValid() {
		return Transition{}, fmt.Errorf("%w: %q", ErrInvalidState, from)
	}

	rs := f.rules[from][trigger]
	if len(rs) == 0 {
		return Transition{}, fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, from)
	}

	var reason error
	for _, r := range rs {
		if r.guard != nil {
			if err := r.guard(ctx, env); err != nil {
				if reason == nil {
					reason = err
				}
				continue
			}
		}
		return Transition{From: from, To: r.to, Trigger: trigger}, nil
	}
	return Transition{}, fmt.Errorf("%w: %s from %s: %w", ErrGuardFailed, trigger, from, reason)
}

// Can reports whether trigger is configured for state. Guards are not evaluated.
func (f *Flow[E]) Can(from State, trigger Trigger) bool {
	return len(f.rules[from][trigger]) > 0
}

// Permitted returns the triggers configured for state, sorted
func (f *Flow[E]) Permitted(from State) []Trigger {
	triggers := make([]Trigger, 0, len(f.rules[from]))
	for trigger := range f.rules[from] {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotReady = errors.New("payment not confirmed")

type env struct {
	ready bool
}

func readiness(ctx context.Context, e env) error {
	if !e.ready {
		return errNotReady
	}
	return nil
}

func TestState(t *testing.T) {
	tests := []struct {
		state     State
		valid     bool
		terminal  bool
		requested bool
		attempted bool
	}{
		{StateNotRequested, true, false, false, false},
		{StateDrafting, true, false, true, false},
		{StateEmitting, true, false, true, false},
		{StateFailed, true, false, true, true},
		{StateSucceeded, true, true, true, true},
		{StateSkippedAfterFailure, true, true, true, true},
		{State("INVALID"), false, false, false, false},
		{State(""), false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.state.IsValid())
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
			assert.Equal(t, tt.requested, tt.state.Requested())
			assert.Equal(t, tt.attempted, tt.state.Attempted())
		})
	}
}

func TestFiscalFlow_HappyPath(t *testing.T) {
	flow := NewFiscalFlow(readiness)
	ctx := context.Background()
	ready := env{ready: true}

	state := StateNotRequested
	for _, trigger := range []Trigger{TriggerRequest, TriggerEmit, TriggerFail, TriggerRetry, TriggerEmit, TriggerSucceed} {
		tr, err := flow.Fire(ctx, state, trigger, ready)
		require.NoError(t, err, "%s from %s", trigger, state)
		assert.Equal(t, state, tr.From)
		assert.Equal(t, trigger, tr.Trigger)
		state = tr.To
	}
	assert.Equal(t, StateSucceeded, state)
}

func TestFiscalFlow_GuardBlocksEmit(t *testing.T) {
	flow := NewFiscalFlow(readiness)

	_, err := flow.Fire(context.Background(), StateDrafting, TriggerEmit, env{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGuardFailed)
	assert.ErrorIs(t, err, errNotReady)
}

func TestFiscalFlow_NilGuardAllowsEmit(t *testing.T) {
	flow := NewFiscalFlow[env](nil)

	tr, err := flow.Fire(context.Background(), StateDrafting, TriggerEmit, env{})
	require.NoError(t, err)
	assert.Equal(t, StateEmitting, tr.To)
}

func TestFiscalFlow_InvalidTransitions(t *testing.T) {
	flow := NewFiscalFlow(readiness)
	ctx := context.Background()

	tests := []struct {
		from    State
		trigger Trigger
	}{
		{StateNotRequested, TriggerEmit},
		{StateDrafting, TriggerSkip},
		{StateEmitting, TriggerWithdraw},
		{StateFailed, TriggerWithdraw},
		{StateSucceeded, TriggerRetry},
		{StateSkippedAfterFailure, TriggerRequest},
	}
	for _, tt := range tests {
		_, err := flow.Fire(ctx, tt.from, tt.trigger, env{ready: true})
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s from %s", tt.trigger, tt.from)
		assert.False(t, flow.Can(tt.from, tt.trigger))
	}

	_, err := flow.Fire(ctx, State("BOGUS"), TriggerRequest, env{})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFiscalFlow_Permitted(t *testing.T) {
	flow := NewFiscalFlow(readiness)

	tests := []struct {
		state State
		want  []Trigger
	}{
		{StateNotRequested, []Trigger{TriggerRequest}},
		{StateDrafting, []Trigger{TriggerEmit, TriggerWithdraw}},
		{StateEmitting, []Trigger{TriggerFail, TriggerSucceed}},
		{StateFailed, []Trigger{TriggerRetry, TriggerSkip}},
		{StateSucceeded, []Trigger{}},
		{StateSkippedAfterFailure, []Trigger{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, flow.Permitted(tt.state))
		})
	}
}

func TestFlowBuilder_FallsThroughGuards(t *testing.T) {
	b := NewFlowBuilder[env]()
	b.From(StateFailed).
		OnIf(TriggerRetry, StateSucceeded, readiness).
		On(TriggerRetry, StateDrafting)
	flow, err := b.Build()
	require.NoError(t, err)

	tr, err := flow.Fire(context.Background(), StateFailed, TriggerRetry, env{})
	require.NoError(t, err)
	assert.Equal(t, StateDrafting, tr.To)

	tr, err = flow.Fire(context.Background(), StateFailed, TriggerRetry, env{ready: true})
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, tr.To)
}

func TestFlowBuilder_RejectsInconsistentTables(t *testing.T) {
	t.Run("unknown state", func(t *testing.T) {
		b := NewFlowBuilder[env]()
		b.From(State("LIMBO")).On(TriggerRequest, StateDrafting)
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrInvalidFlow)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("unknown target", func(t *testing.T) {
		b := NewFlowBuilder[env]()
		b.From(StateDrafting).On(TriggerEmit, State("LIMBO"))
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrInvalidFlow)
	})

	t.Run("leaving a terminal state", func(t *testing.T) {
		b := NewFlowBuilder[env]()
		b.From(StateSucceeded).On(TriggerRetry, StateDrafting)
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrInvalidFlow)
		assert.Panics(t, func() { b.MustBuild() })
	})
}

func TestFlow_BuilderChangesDoNotLeak(t *testing.T) {
	b := NewFlowBuilder[env]()
	b.From(StateNotRequested).On(TriggerRequest, StateDrafting)
	flow := b.MustBuild()

	b.From(StateDrafting).On(TriggerEmit, StateEmitting)
	assert.False(t, flow.Can(StateDrafting, TriggerEmit))
}

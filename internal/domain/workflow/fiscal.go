package workflow

// NewFiscalFlow builds the fiscal-document emission table. canEmit blocks EMIT while
// the draft is not ready, for example when payment is not confirmed.
//
//	NOT_REQUESTED --REQUEST--> DRAFTING --EMIT--> EMITTING --SUCCEED--> SUCCEEDED
//	DRAFTING --WITHDRAW--> NOT_REQUESTED         EMITTING --FAIL--> FAILED
//	FAILED --RETRY--> DRAFTING                   FAILED --SKIP--> SKIPPED_AFTER_FAILURE
func NewFiscalFlow[E any](canEmit Guard[E]) *Flow[E] {
	b := NewFlowBuilder[E]()

	b.From(StateNotRequested).
		On(TriggerRequest, StateDrafting)

	b.From(StateDrafting).
		OnIf(TriggerEmit, StateEmitting, canEmit).
		On(TriggerWithdraw, StateNotRequested)

	b.From(StateEmitting).
		On(TriggerSucceed, StateSucceeded).
		On(TriggerFail, StateFailed)

	b.From(StateFailed).
		On(TriggerRetry, StateDrafting).
		On(TriggerSkip, StateSkippedAfterFailure)

	return b.MustBuild()
}

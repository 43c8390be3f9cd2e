package completion

// StepID identifies one screen of the completion wizard
type StepID string

const (
	StepEvidence       StepID = "evidence"
	StepAttachments    StepID = "attachments"
	StepSignatures     StepID = "signatures"
	StepReview         StepID = "review"
	StepPayment        StepID = "payment"
	StepFiscalEmission StepID = "fiscal_emission"

	// StepFiscalResult is shown after an emission attempt. It is a one-way branch off
	// StepFiscalEmission and never part of the resolved sequence.
	StepFiscalResult StepID = "fiscal_result"
)

// baseOrder is the full sequence before any step is dropped
var baseOrder = []StepID{
	StepEvidence,
	StepAttachments,
	StepSignatures,
	StepReview,
	StepPayment,
	StepFiscalEmission,
}

// Flags are the runtime inputs of step resolution
type Flags struct {
	AdministrativeBypass bool
	FiscalDocumentIssued bool
}

// ResolveSteps returns the ordered steps for the given bypass flag
func ResolveSteps(administrativeBypass bool) []StepID {
	return ResolveStepsFor(Flags{AdministrativeBypass: administrativeBypass})
}

// ResolveStepsFor returns the ordered steps for the given flags. Signatures are dropped
// under administrative bypass; fiscal emission is dropped when the order already has an
// issued fiscal document.
func ResolveStepsFor(flags Flags) []StepID {
	steps := make([]StepID, 0, len(baseOrder))
	for _, step := range baseOrder {
		if step == StepSignatures && flags.AdministrativeBypass {
			continue
		}
		if step == StepFiscalEmission && flags.FiscalDocumentIssued {
			continue
		}
		steps = append(steps, step)
	}
	return steps
}

// IndexOf returns the position of step in steps, or -1
func IndexOf(steps []StepID, step StepID) int {
	for i, s := range steps {
		if s == step {
			return i
		}
	}
	return -1
}

// Landing returns where an operator on current ends up once steps is the active sequence.
// A step that is still present is kept; a dropped step resolves to the next surviving step in
// base order, or the last step if none follows.
func Landing(steps []StepID, current StepID) StepID {
	if len(steps) == 0 {
		return current
	}
	if current == StepFiscalResult {
		current = StepFiscalEmission
	}
	if IndexOf(steps, current) >= 0 {
		return current
	}

	pos := -1
	for i, s := range baseOrder {
		if s == current {
			pos = i
			break
		}
	}
	if pos < 0 {
		return steps[0]
	}
	for _, s := range baseOrder[pos+1:] {
		if IndexOf(steps, s) >= 0 {
			return s
		}
	}
	return steps[len(steps)-1]
}

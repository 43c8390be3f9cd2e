package completion

import (
	"context"
	"fmt"

	"github.com/garyjia/field-service/internal/domain/entity"
	"github.com/garyjia/field-service/internal/domain/workflow"
)

// Action is one explicit transition of the draft
type Action interface {
	apply(ctx context.Context, d *Draft) error
}

// Apply runs action against a copy of d and returns the new draft. Invariants are checked
// on the result; on any error the original draft is returned unchanged.
func Apply(ctx context.Context, d Draft, action Action) (Draft, error) {
	next := d.Clone()
	if err := action.apply(ctx, &next); err != nil {
		return d, err
	}
	if err := CheckInvariants(next); err != nil {
		return d, err
	}
	return next, nil
}

// SetReport replaces the technical report. Empty text is allowed.
type SetReport struct {
	Text string
}

func (a SetReport) apply(_ context.Context, d *Draft) error {
	d.TechnicalReport = a.Text
	return nil
}

// AddAttachment records a confirmed upload at its issue position
type AddAttachment struct {
	Seq uint64
	URL string
}

func (a AddAttachment) apply(_ context.Context, d *Draft) error {
	if a.URL == "" {
		return ErrEmptyURL
	}
	d.insertAttachment(Attachment{Seq: a.Seq, URL: a.URL})
	return nil
}

// RemoveAttachment drops an attachment by URL. Unknown URLs are a no-op.
type RemoveAttachment struct {
	URL string
}

func (a RemoveAttachment) apply(_ context.Context, d *Draft) error {
	kept := d.Attachments[:0]
	for _, att := range d.Attachments {
		if att.URL != a.URL {
			kept = append(kept, att)
		}
	}
	d.Attachments = kept
	return nil
}

// SetSignature stores the uploaded signature image URL for a role
type SetSignature struct {
	Role SignatureRole
	URL  string
}

func (a SetSignature) apply(_ context.Context, d *Draft) error {
	if !a.Role.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSignatureRole, a.Role)
	}
	if a.URL == "" {
		return ErrEmptyURL
	}
	setSignature(d, a.Role, a.URL)
	return nil
}

// ClearSignature removes the stored signature for a role
type ClearSignature struct {
	Role SignatureRole
}

func (a ClearSignature) apply(_ context.Context, d *Draft) error {
	if !a.Role.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSignatureRole, a.Role)
	}
	setSignature(d, a.Role, "")
	return nil
}

func setSignature(d *Draft, role SignatureRole, url string) {
	if role == RoleTechnician {
		d.TechnicianSignature = url
		return
	}
	d.ClientSignature = url
}

// SetBypass switches administrative bypass. Turning it off again puts the session back on
// the normal validation path; signatures collected earlier are kept either way.
type SetBypass struct {
	Enabled bool
}

func (a SetBypass) apply(_ context.Context, d *Draft) error {
	d.AdministrativeBypass = a.Enabled
	return nil
}

// ConfirmPayment sets the payment checkpoint
type ConfirmPayment struct {
	Confirmed bool
}

func (a ConfirmPayment) apply(_ context.Context, d *Draft) error {
	d.PaymentConfirmed = a.Confirmed
	return nil
}

// RequestFiscalDocument asks for (or withdraws the request for) a fiscal document.
// Withdrawing is only possible before the first emission attempt.
type RequestFiscalDocument struct {
	Requested bool
	// Default seeds the draft on first request; it is ignored if a draft already exists
	Default FiscalDraft
}

func (a RequestFiscalDocument) apply(ctx context.Context, d *Draft) error {
	if a.Requested == d.FiscalState.Requested() {
		return nil
	}
	if a.Requested && d.FiscalDocumentIssued {
		return ErrFiscalAlreadyIssued
	}

	trigger := workflow.TriggerWithdraw
	if a.Requested {
		trigger = workflow.TriggerRequest
	}
	if err := fire(ctx, d, trigger); err != nil {
		return err
	}

	if a.Requested && d.FiscalDraft == nil {
		fd := a.Default
		d.FiscalDraft = &fd
	}
	return nil
}

// SetFiscalDraft edits the fiscal document request while drafting
type SetFiscalDraft struct {
	Draft FiscalDraft
}

func (a SetFiscalDraft) apply(_ context.Context, d *Draft) error {
	if d.FiscalState != workflow.StateDrafting {
		return ErrFiscalDraftLocked
	}
	fd := a.Draft
	fd.Amount = entity.RoundCents(fd.Amount)
	d.FiscalDraft = &fd
	return nil
}

// BeginEmission moves the sub-flow into EMITTING. It is blocked unless payment is confirmed
// and the fiscal draft is complete.
type BeginEmission struct{}

func (BeginEmission) apply(ctx context.Context, d *Draft) error {
	return fire(ctx, d, workflow.TriggerEmit)
}

// RecordFiscalResult stores an issued document and clears any earlier error
type RecordFiscalResult struct {
	Result FiscalResult
}

func (a RecordFiscalResult) apply(ctx context.Context, d *Draft) error {
	if err := fire(ctx, d, workflow.TriggerSucceed); err != nil {
		return err
	}
	r := a.Result
	d.FiscalResult = &r
	d.FiscalError = ""
	return nil
}

// RecordFiscalError stores the emission failure message
type RecordFiscalError struct {
	Message string
}

func (a RecordFiscalError) apply(ctx context.Context, d *Draft) error {
	if err := fire(ctx, d, workflow.TriggerFail); err != nil {
		return err
	}
	d.FiscalError = a.Message
	d.FiscalResult = nil
	return nil
}

// RetryFiscal returns a failed emission to drafting. The previous error stays visible
// until a new attempt replaces it.
type RetryFiscal struct{}

func (RetryFiscal) apply(ctx context.Context, d *Draft) error {
	return fire(ctx, d, workflow.TriggerRetry)
}

// SkipFiscal continues without a fiscal document after a failure
type SkipFiscal struct{}

func (SkipFiscal) apply(ctx context.Context, d *Draft) error {
	return fire(ctx, d, workflow.TriggerSkip)
}

var fiscalFlow = workflow.NewFiscalFlow(func(_ context.Context, d *Draft) error {
	return emissionReadiness(*d)
})

// fire moves the draft's fiscal state along trigger
func fire(ctx context.Context, d *Draft, trigger workflow.Trigger) error {
	t, err := fiscalFlow.Fire(ctx, d.FiscalState, trigger, d)
	if err != nil {
		return err
	}
	d.FiscalState = t.To
	return nil
}

// emissionReadiness is the EMIT guard
func emissionReadiness(d Draft) error {
	if d.FiscalDocumentRequested() && !d.PaymentConfirmed {
		return ErrPaymentNotConfirmed
	}
	if d.FiscalDraft == nil || !d.FiscalDraft.Complete() {
		return ErrFiscalDraftIncomplete
	}
	return nil
}

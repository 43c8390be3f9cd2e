package completion

import (
	"fmt"

	"github.com/garyjia/field-service/internal/domain/workflow"
)

// CheckInvariants verifies the structural rules every draft must satisfy after a transition
func CheckInvariants(d Draft) error {
	if !d.FiscalState.IsValid() {
		return fmt.Errorf("%w: unknown fiscal state %q", ErrInvariantViolated, d.FiscalState)
	}
	if d.FiscalResult != nil && d.FiscalError != "" {
		return fmt.Errorf("%w: fiscal result and fiscal error are both set", ErrInvariantViolated)
	}
	if d.FiscalState == workflow.StateSucceeded && d.FiscalResult == nil {
		return fmt.Errorf("%w: emission succeeded without a result", ErrInvariantViolated)
	}
	if d.FiscalState.Requested() && d.FiscalDocumentIssued {
		return fmt.Errorf("%w: fiscal document requested for an order that already has one", ErrInvariantViolated)
	}
	for i := 1; i < len(d.Attachments); i++ {
		if d.Attachments[i-1].Seq >= d.Attachments[i].Seq {
			return fmt.Errorf("%w: attachments out of issue order", ErrInvariantViolated)
		}
	}
	return nil
}

// ValidateForFinalize checks whether the draft may be handed to the completion collaborator.
// Signatures are required unless bypass is active. A requested fiscal document always
// needs confirmed payment, skipped or not, and an issued result unless it was skipped.
func ValidateForFinalize(d Draft) error {
	if !d.AdministrativeBypass && !d.HasSignatures() {
		return ErrSignaturesMissing
	}
	if d.FiscalDocumentRequested() && !d.PaymentConfirmed {
		return ErrPaymentNotConfirmed
	}
	if d.FiscalDocumentRequested() && !d.FiscalSkipped() {
		if d.FiscalState != workflow.StateSucceeded || d.FiscalResult == nil {
			return ErrFiscalDocumentMissing
		}
	}
	return CheckInvariants(d)
}

package completion

import (
	"errors"
	"fmt"
)

// ErrValidation is the root of every locally blocked operation. Errors wrapping it are
// surfaced to the operator inline and never reach a collaborator.
var ErrValidation = errors.New("validation failed")

var (
	ErrSignaturesMissing     = fmt.Errorf("%w: technician and client signatures are required", ErrValidation)
	ErrPaymentNotConfirmed   = fmt.Errorf("%w: payment must be confirmed before the fiscal document", ErrValidation)
	ErrFiscalDocumentMissing = fmt.Errorf("%w: requested fiscal document has not been issued", ErrValidation)
	ErrFiscalDraftIncomplete = fmt.Errorf("%w: fiscal document needs description, service code and a positive amount", ErrValidation)
	ErrFiscalDraftLocked     = fmt.Errorf("%w: fiscal document draft can only change while drafting", ErrValidation)
	ErrFiscalAlreadyIssued   = fmt.Errorf("%w: service order already has a fiscal document", ErrValidation)
	ErrInvalidSignatureRole  = fmt.Errorf("%w: unknown signature role", ErrValidation)
	ErrEmptyURL              = fmt.Errorf("%w: url must not be empty", ErrValidation)
)

// ErrInvariantViolated means a transition produced a draft that breaks a draft invariant.
// It indicates a programming error rather than operator input.
var ErrInvariantViolated = errors.New("draft invariant violated")

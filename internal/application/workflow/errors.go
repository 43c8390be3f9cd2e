package workflow

import (
	"errors"
	"fmt"

	"github.com/garyjia/field-service/internal/domain/completion"
)

var (
	ErrSessionNotFound     = errors.New("completion session not found")
	ErrSessionClosed       = errors.New("completion session is closed")
	ErrSessionExists       = errors.New("service order already has an open completion session")
	ErrOperationInFlight   = errors.New("operation already in progress")
	ErrOrderNotCompletable = errors.New("service order cannot be completed")
	ErrBypassNotPermitted  = errors.New("administrative bypass requires the admin role")

	// ErrUploadFailed wraps an upload collaborator failure
	ErrUploadFailed = errors.New("file upload failed")

	// ErrCompletionFailed wraps a completion collaborator failure; the session stays open
	ErrCompletionFailed = errors.New("completion hand-off failed")
)

var (
	ErrNoNextStep     = fmt.Errorf("%w: already at the last step", completion.ErrValidation)
	ErrNoPreviousStep = fmt.Errorf("%w: already at the first step", completion.ErrValidation)
	ErrUnknownStep    = fmt.Errorf("%w: step is not part of the active sequence", completion.ErrValidation)
	ErrFiscalDecision = fmt.Errorf("%w: retry or skip the failed fiscal document first", completion.ErrValidation)
	ErrEmptyFile      = fmt.Errorf("%w: file is empty", completion.ErrValidation)
)

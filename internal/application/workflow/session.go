package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyjia/field-service/internal/application/dispatcher"
	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/completion"
	"github.com/garyjia/field-service/internal/domain/entity"
	"github.com/garyjia/field-service/internal/domain/event"
	domainwf "github.com/garyjia/field-service/internal/domain/workflow"
)

// DefaultFiscalErrorMessage is stored when the emission service gives no usable message
const DefaultFiscalErrorMessage = "fiscal document emission failed"

// Close reasons
const (
	CloseReasonCompleted = "completed"
	CloseReasonCancelled = "cancelled"
	CloseReasonExpired   = "expired"
	CloseReasonShutdown  = "shutdown"
)

// Session is one completion wizard run for one service order. It owns its draft
// exclusively; every operation is serialized on the session mutex, while collaborator
// calls run outside it so other edits are never blocked by slow I/O.
type Session struct {
	id       string
	order    entity.ServiceOrder
	operator Operator
	total    float64
	openedAt time.Time

	uploader          port.FileUploader
	emitter           port.FiscalEmitter
	sink              port.CompletionSink
	dispatcher        dispatcher.Dispatcher
	metrics           port.WorkflowMetrics
	logger            Logger
	clock             func() time.Time
	uploadConcurrency int
	fiscalServiceCode string
	onClose           func(*Session)

	// ctx is cancelled when the session closes; collaborator calls derive from it
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	draft        completion.Draft
	current      completion.StepID
	nextSeq      uint64
	finalizing   bool
	// calls counts collaborator calls in flight outside the lock
	calls        int
	closed       bool
	closeReason  string
	lastActivity time.Time
}

// Snapshot is a consistent read of the session state
type Snapshot struct {
	SessionID      string              `json:"session_id"`
	ServiceOrderID int64               `json:"service_order_id"`
	OrderCode      string              `json:"order_code"`
	Operator       Operator            `json:"operator"`
	Steps          []completion.StepID `json:"steps"`
	CurrentStep    completion.StepID   `json:"current_step"`
	Draft          completion.Draft    `json:"draft"`
	TotalAmount    float64             `json:"total_amount"`
	Finalizing     bool                `json:"finalizing"`
	OpenedAt       time.Time           `json:"opened_at"`
}

// UploadOutcome is the result of one file in an upload batch
type UploadOutcome struct {
	FileName string `json:"file_name"`
	Seq      uint64 `json:"seq"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

// BatchResult lists the outcome of every file in issue order
type BatchResult struct {
	Outcomes []UploadOutcome `json:"outcomes"`
}

// Succeeded returns the URLs of the files that were stored, in issue order
func (b BatchResult) Succeeded() []string {
	urls := make([]string, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		if o.Err == nil {
			urls = append(urls, o.URL)
		}
	}
	return urls
}

// Failed returns the outcomes that carry an error
func (b BatchResult) Failed() []UploadOutcome {
	var failed []UploadOutcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// ServiceOrderID returns the order the session completes
func (s *Session) ServiceOrderID() int64 {
	return s.order.ID
}

// Order returns a copy of the service order as loaded when the session opened
func (s *Session) Order() entity.ServiceOrder {
	o := s.order
	o.LineItems = append([]entity.LineItem(nil), s.order.LineItems...)
	return o
}

// Snapshot returns the current state; the draft is a private copy
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	return s.snapshotLocked(), nil
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:      s.id,
		ServiceOrderID: s.order.ID,
		OrderCode:      s.order.Code,
		Operator:       s.operator,
		Steps:          s.draft.Steps(),
		CurrentStep:    s.current,
		Draft:          s.draft.Clone(),
		TotalAmount:    s.total,
		Finalizing:     s.finalizing,
		OpenedAt:       s.openedAt,
	}
}

// Next moves to the following step of the active sequence
func (s *Session) Next(ctx context.Context) (Snapshot, error) {
	return s.mutate(func() error {
		if s.current == completion.StepFiscalResult {
			if s.draft.FiscalState == domainwf.StateFailed {
				return ErrFiscalDecision
			}
			return ErrNoNextStep
		}
		steps := s.draft.Steps()
		i := completion.IndexOf(steps, s.current)
		if i < 0 || i+1 >= len(steps) {
			return ErrNoNextStep
		}
		s.current = s.shownAs(steps[i+1])
		return nil
	})
}

// Back moves to the preceding step of the active sequence. A failed emission must be
// retried or skipped first; a settled one can be left for review.
func (s *Session) Back(ctx context.Context) (Snapshot, error) {
	return s.mutate(func() error {
		if s.draft.FiscalState == domainwf.StateFailed && s.current == completion.StepFiscalResult {
			return ErrFiscalDecision
		}
		steps := s.draft.Steps()
		i := completion.IndexOf(steps, s.positionStep())
		if i <= 0 {
			return ErrNoPreviousStep
		}
		s.current = steps[i-1]
		return nil
	})
}

// GoTo jumps to an earlier step of the active sequence for review
func (s *Session) GoTo(ctx context.Context, step completion.StepID) (Snapshot, error) {
	return s.mutate(func() error {
		if s.draft.FiscalState == domainwf.StateFailed && s.current == completion.StepFiscalResult {
			return ErrFiscalDecision
		}
		steps := s.draft.Steps()
		target := completion.IndexOf(steps, step)
		if target < 0 || target > completion.IndexOf(steps, s.positionStep()) {
			return fmt.Errorf("%w: %s", ErrUnknownStep, step)
		}
		s.current = s.shownAs(step)
		return nil
	})
}

// positionStep is the sequence step the current step stands for; the fiscal result
// occupies the place of fiscal emission
func (s *Session) positionStep() completion.StepID {
	if s.current == completion.StepFiscalResult {
		return completion.StepFiscalEmission
	}
	return s.current
}

// shownAs returns the step presented for step: once an emission attempt has returned,
// fiscal emission is shown as its result
func (s *Session) shownAs(step completion.StepID) completion.StepID {
	if step == completion.StepFiscalEmission && s.draft.FiscalState.Attempted() {
		return completion.StepFiscalResult
	}
	return step
}

// SetReport replaces the technical report
func (s *Session) SetReport(ctx context.Context, text string) (Snapshot, error) {
	return s.applyAction(ctx, completion.SetReport{Text: text})
}

// RemoveAttachment drops an attachment; unknown URLs are ignored
func (s *Session) RemoveAttachment(ctx context.Context, url string) (Snapshot, error) {
	return s.applyAction(ctx, completion.RemoveAttachment{URL: url})
}

// SetSignature stores an already uploaded signature image URL
func (s *Session) SetSignature(ctx context.Context, role completion.SignatureRole, url string) (Snapshot, error) {
	return s.applyAction(ctx, completion.SetSignature{Role: role, URL: url})
}

// ClearSignature removes the signature for role
func (s *Session) ClearSignature(ctx context.Context, role completion.SignatureRole) (Snapshot, error) {
	return s.applyAction(ctx, completion.ClearSignature{Role: role})
}

// SetBypass switches administrative bypass on or off. Only admins may do either.
func (s *Session) SetBypass(ctx context.Context, actor Operator, enabled bool) (Snapshot, error) {
	if !actor.IsAdmin() {
		return Snapshot{}, ErrBypassNotPermitted
	}
	snap, err := s.applyAction(ctx, completion.SetBypass{Enabled: enabled})
	if err == nil {
		s.logger.Info("Administrative bypass changed",
			"session_id", s.id,
			"order_id", s.order.ID,
			"enabled", enabled,
			"actor", actor.ID,
		)
	}
	return snap, err
}

// ConfirmPayment sets the payment checkpoint
func (s *Session) ConfirmPayment(ctx context.Context, confirmed bool) (Snapshot, error) {
	return s.applyAction(ctx, completion.ConfirmPayment{Confirmed: confirmed})
}

// RequestFiscal asks for a fiscal document or withdraws the request. The first request
// seeds the draft from the order description and total.
func (s *Session) RequestFiscal(ctx context.Context, requested bool) (Snapshot, error) {
	return s.applyAction(ctx, completion.RequestFiscalDocument{
		Requested: requested,
		Default: completion.FiscalDraft{
			Description: s.defaultFiscalDescription(),
			ServiceCode: s.fiscalServiceCode,
			Amount:      s.total,
		},
	})
}

// SetFiscalDraft edits the fiscal document request
func (s *Session) SetFiscalDraft(ctx context.Context, fd completion.FiscalDraft) (Snapshot, error) {
	return s.applyAction(ctx, completion.SetFiscalDraft{Draft: fd})
}

// RetryFiscal returns a failed emission to drafting
func (s *Session) RetryFiscal(ctx context.Context) (Snapshot, error) {
	return s.mutate(func() error {
		if err := s.applyLocked(ctx, completion.RetryFiscal{}); err != nil {
			return err
		}
		s.current = completion.StepFiscalEmission
		return nil
	})
}

// SkipFiscal continues without a fiscal document after a failure
func (s *Session) SkipFiscal(ctx context.Context) (Snapshot, error) {
	return s.applyAction(ctx, completion.SkipFiscal{})
}

// UploadAttachments sends files to the upload collaborator concurrently. Each file gets
// its issue position before any upload starts; successes are merged as they arrive and
// failures are reported per file without affecting the rest of the batch.
func (s *Session) UploadAttachments(ctx context.Context, files []entity.UploadFile) (BatchResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return BatchResult{}, ErrSessionClosed
	}
	base := s.nextSeq
	s.nextSeq += uint64(len(files))
	s.calls++
	s.touchLocked()
	s.mu.Unlock()
	defer s.endCall()

	opCtx, stop := s.operationContext(ctx)
	defer stop()

	result := BatchResult{Outcomes: make([]UploadOutcome, len(files))}

	g := new(errgroup.Group)
	g.SetLimit(s.uploadConcurrency)
	for i, file := range files {
		file := file
		seq := base + uint64(i) + 1
		outcome := &result.Outcomes[i]
		outcome.FileName = file.FileName
		outcome.Seq = seq

		g.Go(func() error {
			outcome.URL, outcome.Err = s.uploadOne(opCtx, seq, file)
			if outcome.Err != nil {
				outcome.URL = ""
				outcome.Error = outcome.Err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return result, ErrSessionClosed
	}
	return result, nil
}

func (s *Session) uploadOne(ctx context.Context, seq uint64, file entity.UploadFile) (string, error) {
	if file.Size() == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyFile, file.FileName)
	}

	url, err := s.uploader.Upload(ctx, file, entity.CategoryAttachment)
	s.metrics.AttachmentUploaded(err == nil)
	if err != nil {
		s.logger.Error("Attachment upload failed",
			"session_id", s.id,
			"file_name", file.FileName,
			"error", err,
		)
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	err = s.applyLocked(ctx, completion.AddAttachment{Seq: seq, URL: url})
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.dispatch(ctx, event.TypeAttachmentUploaded, map[string]interface{}{
		"url":       url,
		"seq":       seq,
		"file_name": file.FileName,
	})
	return url, nil
}

// AttachSignature uploads a rendered signature image and stores the returned URL
func (s *Session) AttachSignature(ctx context.Context, role completion.SignatureRole, image entity.UploadFile) (Snapshot, error) {
	if !role.IsValid() {
		return Snapshot{}, fmt.Errorf("%w: %q", completion.ErrInvalidSignatureRole, role)
	}
	if image.Size() == 0 {
		return Snapshot{}, fmt.Errorf("%w: %s signature", ErrEmptyFile, role)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}
	s.calls++
	s.touchLocked()
	s.mu.Unlock()
	defer s.endCall()

	opCtx, stop := s.operationContext(ctx)
	defer stop()

	category := entity.CategoryClientSignature
	if role == completion.RoleTechnician {
		category = entity.CategoryTechnicianSignature
	}
	url, err := s.uploader.Upload(opCtx, image, category)
	if err != nil {
		s.logger.Error("Signature upload failed",
			"session_id", s.id,
			"role", role,
			"error", err,
		)
		return Snapshot{}, fmt.Errorf("%w: %s signature: %w", ErrUploadFailed, role, err)
	}
	return s.SetSignature(ctx, role, url)
}

// EmitFiscalDocument sends the fiscal draft to the emission collaborator. A collaborator
// failure is not returned as an error: it moves the sub-flow to FAILED and is shown on the
// fiscal result step until the operator retries or skips.
func (s *Session) EmitFiscalDocument(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}
	if s.draft.FiscalState == domainwf.StateEmitting {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: fiscal emission", ErrOperationInFlight)
	}
	if err := s.applyLocked(ctx, completion.BeginEmission{}); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.current = completion.StepFiscalEmission
	req := *s.draft.FiscalDraft
	s.calls++
	s.touchLocked()
	s.mu.Unlock()
	defer s.endCall()

	opCtx, stop := s.operationContext(ctx)
	defer stop()

	start := s.clock()
	result, err := s.emitter.Emit(opCtx, req)
	if err == nil && result == nil {
		err = errors.New("emission service returned no document")
	}
	elapsed := s.clock().Sub(start).Seconds()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Late results for a discarded draft are dropped
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}

	if err != nil {
		s.metrics.FiscalEmission("failed", elapsed)
		message := FiscalErrorMessage(err)
		s.logger.Error("Fiscal emission failed",
			"session_id", s.id,
			"order_id", s.order.ID,
			"error", err,
		)
		if aerr := s.applyLocked(ctx, completion.RecordFiscalError{Message: message}); aerr != nil {
			return Snapshot{}, aerr
		}
		s.current = completion.StepFiscalResult
		s.dispatch(ctx, event.TypeFiscalFailed, map[string]interface{}{"error": message})
		return s.snapshotLocked(), nil
	}

	s.metrics.FiscalEmission("succeeded", elapsed)
	if aerr := s.applyLocked(ctx, completion.RecordFiscalResult{Result: *result}); aerr != nil {
		return Snapshot{}, aerr
	}
	s.current = completion.StepFiscalResult
	s.logger.Info("Fiscal document issued",
		"session_id", s.id,
		"order_id", s.order.ID,
		"document_id", result.ID,
	)
	s.dispatch(ctx, event.TypeFiscalIssued, map[string]interface{}{
		"document_id":       result.ID,
		"verification_code": result.VerificationCode,
	})
	return s.snapshotLocked(), nil
}

// FiscalErrorMessage extracts the operator-facing text of an emission failure
func FiscalErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *port.FiscalEmissionError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return DefaultFiscalErrorMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultFiscalErrorMessage
}

// Finalize validates the draft, builds the completion payload and hands it to the
// completion collaborator once. On failure the session and its draft stay as they were;
// on success the session closes.
func (s *Session) Finalize(ctx context.Context) (completion.Payload, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return completion.Payload{}, ErrSessionClosed
	}
	if s.finalizing {
		s.mu.Unlock()
		return completion.Payload{}, fmt.Errorf("%w: finalization", ErrOperationInFlight)
	}
	if err := completion.ValidateForFinalize(s.draft); err != nil {
		s.mu.Unlock()
		s.metrics.Finalization("rejected", 0)
		return completion.Payload{}, err
	}
	payload := completion.NewPayload(s.draft, completion.PayloadMeta{
		SessionID:      s.id,
		ServiceOrderID: s.order.ID,
		TotalAmount:    s.total,
		CompletedBy:    s.operator.ID,
		CompletedAt:    s.clock().UTC(),
	})
	s.finalizing = true
	s.touchLocked()
	s.mu.Unlock()

	opCtx, stop := s.operationContext(ctx)
	defer stop()

	start := s.clock()
	err := s.sink.Complete(opCtx, payload)
	elapsed := s.clock().Sub(start).Seconds()

	s.mu.Lock()
	s.finalizing = false
	if err != nil {
		s.mu.Unlock()
		s.metrics.Finalization("failed", elapsed)
		s.logger.Error("Completion hand-off failed",
			"session_id", s.id,
			"order_id", s.order.ID,
			"error", err,
		)
		return completion.Payload{}, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}
	s.metrics.Finalization("completed", elapsed)
	closedNow := s.closeLocked(CloseReasonCompleted)
	s.mu.Unlock()

	s.logger.Info("Service order completed",
		"session_id", s.id,
		"order_id", s.order.ID,
		"attachments", len(payload.Attachments),
		"fiscal_document", payload.HasFiscalResult(),
	)
	if closedNow {
		s.afterClose(ctx, CloseReasonCompleted)
	}
	return payload, nil
}

// Close discards the session and its draft. In-flight collaborator calls are cancelled and
// their late results ignored. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context, reason string) {
	s.mu.Lock()
	closedNow := s.closeLocked(reason)
	s.mu.Unlock()

	if closedNow {
		s.afterClose(ctx, reason)
	}
}

// Closed reports whether the session has been closed
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LastActivity returns the time of the last operation on the session
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) closeLocked(reason string) bool {
	if s.closed {
		return false
	}
	s.closed = true
	s.closeReason = reason
	s.draft = completion.Draft{}
	s.cancel()
	return true
}

func (s *Session) afterClose(ctx context.Context, reason string) {
	s.metrics.SessionClosed(reason)
	s.logger.Info("Completion session closed",
		"session_id", s.id,
		"order_id", s.order.ID,
		"reason", reason,
	)
	s.dispatch(ctx, event.TypeSessionClosed, map[string]interface{}{"reason": reason})
	if s.onClose != nil {
		s.onClose(s)
	}
}

// applyAction runs one reducer action under the session lock
func (s *Session) applyAction(ctx context.Context, action completion.Action) (Snapshot, error) {
	return s.mutate(func() error {
		return s.applyLocked(ctx, action)
	})
}

func (s *Session) mutate(fn func() error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	if err := fn(); err != nil {
		return Snapshot{}, err
	}
	s.touchLocked()
	return s.snapshotLocked(), nil
}

// applyLocked applies action and re-lands the current step if the sequence changed
func (s *Session) applyLocked(ctx context.Context, action completion.Action) error {
	next, err := completion.Apply(ctx, s.draft, action)
	if err != nil {
		return err
	}
	s.draft = next
	if s.current != completion.StepFiscalResult {
		s.current = completion.Landing(s.draft.Steps(), s.current)
	}
	return nil
}

func (s *Session) touchLocked() {
	s.lastActivity = s.clock()
}

// endCall marks a collaborator call as returned; the session counts as active from then
func (s *Session) endCall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls--
	s.touchLocked()
}

// awaitingCollaborator reports whether a collaborator call is still running
func (s *Session) awaitingCollaborator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizing || s.calls > 0 || s.draft.FiscalState == domainwf.StateEmitting
}

// operationContext derives a context for a collaborator call that ends with either the
// caller's context or the session
func (s *Session) operationContext(ctx context.Context) (context.Context, func()) {
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) dispatch(ctx context.Context, eventType event.Type, payload map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.PublishAsync(ctx, event.NewEvent(eventType, s.order.ID, s.id, payload))
}

func (s *Session) defaultFiscalDescription() string {
	if s.order.Description != "" {
		return s.order.Description
	}
	return "Service order " + s.order.Code
}

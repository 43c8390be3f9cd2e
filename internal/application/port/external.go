package port

import (
	"context"

	"github.com/garyjia/field-service/internal/domain/completion"
	"github.com/garyjia/field-service/internal/domain/entity"
)

// FileUploader stores a blob and returns a URL referencing it. Calls for different files
// are independent and may run concurrently.
type FileUploader interface {
	Upload(ctx context.Context, file entity.UploadFile, category string) (string, error)
}

// FiscalEmissionError is a rejection reported by the emission service. Message is the
// service's own text and is shown to the operator as is.
type FiscalEmissionError struct {
	StatusCode int
	Message    string
}

func (e *FiscalEmissionError) Error() string {
	return e.Message
}

// FiscalEmitter issues a fiscal document (NFS-e) through the municipal integration
type FiscalEmitter interface {
	Emit(ctx context.Context, req completion.FiscalDraft) (*completion.FiscalResult, error)
}

// CompletionSink persists a finalized completion and anything downstream of it
type CompletionSink interface {
	Complete(ctx context.Context, payload completion.Payload) error
}

// CompletionNotice is the content of a post-completion message
type CompletionNotice struct {
	Order   *entity.ServiceOrder
	Payload completion.Payload
}

// Notifier delivers a completion notice over one channel
type Notifier interface {
	// Channel names the delivery channel for logs and warnings
	Channel() string
	NotifyCompletion(ctx context.Context, notice CompletionNotice) error
}

// WorkflowMetrics records workflow outcomes. Implementations must be safe for concurrent use.
type WorkflowMetrics interface {
	SessionOpened()
	SessionClosed(reason string)
	AttachmentUploaded(ok bool)
	FiscalEmission(outcome string, seconds float64)
	Finalization(outcome string, seconds float64)
}

// CompletionReport is everything rendered into a completion report
type CompletionReport struct {
	Order          *entity.ServiceOrder
	Completion     *entity.CompletionRecord
	FiscalDocument *entity.FiscalDocument
}

// ReportRenderer turns a completion report into a downloadable document
type ReportRenderer interface {
	// ContentType is the MIME type of rendered documents
	ContentType() string
	// Extension is the file extension including the dot
	Extension() string
	Render(report CompletionReport) ([]byte, error)
}

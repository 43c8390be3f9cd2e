package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/field-service/internal/domain/entity"
)

// ErrNotFound marks a lookup of a record that does not exist. Repositories themselves
// return a nil record and nil error; callers that need a record wrap this.
var ErrNotFound = errors.New("not found")

// ServiceOrderRepository defines persistence operations for ServiceOrder
type ServiceOrderRepository interface {
	Create(ctx context.Context, order *entity.ServiceOrder) error
	GetByID(ctx context.Context, id int64) (*entity.ServiceOrder, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	MarkCompleted(ctx context.Context, id int64, fiscalDocumentID string, completedAt time.Time) error
	List(ctx context.Context, limit, offset int) ([]*entity.ServiceOrder, error)
}

// CompletionRepository defines persistence operations for CompletionRecord
type CompletionRepository interface {
	Create(ctx context.Context, record *entity.CompletionRecord) error
	GetByServiceOrderID(ctx context.Context, orderID int64) (*entity.CompletionRecord, error)
	GetBySessionID(ctx context.Context, sessionID string) (*entity.CompletionRecord, error)
}

// FiscalDocumentRepository defines persistence operations for FiscalDocument
type FiscalDocumentRepository interface {
	Create(ctx context.Context, doc *entity.FiscalDocument) error
	GetByServiceOrderID(ctx context.Context, orderID int64) (*entity.FiscalDocument, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

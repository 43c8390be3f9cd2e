package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/field-service/internal/application/dispatcher"
	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/completion"
	"github.com/garyjia/field-service/internal/domain/entity"
	"github.com/garyjia/field-service/internal/domain/event"
)

// ErrOrderAlreadyCompleted is returned when a different session already completed the order
var ErrOrderAlreadyCompleted = errors.New("service order already completed")

// CompletionService persists finalized completions. It is the completion collaborator
// handed to sessions.
type CompletionService interface {
	port.CompletionSink
	GetCompletion(ctx context.Context, orderID int64) (*entity.CompletionRecord, error)
}

type completionServiceImpl struct {
	orderRepo      port.ServiceOrderRepository
	completionRepo port.CompletionRepository
	fiscalRepo     port.FiscalDocumentRepository
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger
}

// NewCompletionService creates a new CompletionService
func NewCompletionService(
	orderRepo port.ServiceOrderRepository,
	completionRepo port.CompletionRepository,
	fiscalRepo port.FiscalDocumentRepository,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) CompletionService {
	return &completionServiceImpl{
		orderRepo:      orderRepo,
		completionRepo: completionRepo,
		fiscalRepo:     fiscalRepo,
		txManager:      txManager,
		dispatcher:     d,
		logger:         logger,
	}
}

// Complete stores the completion record, the issued fiscal document and the order status
// in one transaction, then announces order.completed. Replaying a payload for a session
// that was already stored is a no-op.
func (s *completionServiceImpl) Complete(ctx context.Context, payload completion.Payload) error {
	s.logger.Info("Persisting completion",
		"order_id", payload.ServiceOrderID,
		"session_id", payload.SessionID,
	)

	existing, err := s.completionRepo.GetBySessionID(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("check existing completion: %w", err)
	}
	if existing != nil {
		s.logger.Info("Completion already stored for session", "session_id", payload.SessionID, "completion_id", existing.ID)
		return nil
	}

	record := newCompletionRecord(payload)

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		order, err := s.orderRepo.GetByID(txCtx, payload.ServiceOrderID)
		if err != nil {
			return fmt.Errorf("get service order: %w", err)
		}
		if order == nil {
			return fmt.Errorf("%w: service order %d", port.ErrNotFound, payload.ServiceOrderID)
		}
		if order.Status == entity.OrderStatusCompleted {
			return fmt.Errorf("%w: order %d", ErrOrderAlreadyCompleted, order.ID)
		}

		if err := s.completionRepo.Create(txCtx, record); err != nil {
			return fmt.Errorf("create completion: %w", err)
		}

		if doc := newFiscalDocument(payload); doc != nil {
			if err := s.fiscalRepo.Create(txCtx, doc); err != nil {
				return fmt.Errorf("create fiscal document: %w", err)
			}
		}

		if err := s.orderRepo.MarkCompleted(txCtx, order.ID, record.FiscalDocumentID, payload.CompletedAt); err != nil {
			return fmt.Errorf("mark order completed: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to persist completion", "error", err, "order_id", payload.ServiceOrderID)
		return err
	}

	s.logger.Info("Completion persisted",
		"order_id", payload.ServiceOrderID,
		"completion_id", record.ID,
		"fiscal_document_id", record.FiscalDocumentID,
	)

	if s.dispatcher != nil {
		s.dispatcher.PublishAsync(ctx, event.NewEvent(event.TypeOrderCompleted, payload.ServiceOrderID, payload.SessionID, map[string]interface{}{
			"completion_id":      record.ID,
			"fiscal_document_id": record.FiscalDocumentID,
			"total_amount":       payload.TotalAmount,
			"completed_by":       payload.CompletedBy,
		}))
	}

	return nil
}

// GetCompletion returns the stored completion of an order, or nil
func (s *completionServiceImpl) GetCompletion(ctx context.Context, orderID int64) (*entity.CompletionRecord, error) {
	record, err := s.completionRepo.GetByServiceOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return record, nil
}

func newCompletionRecord(p completion.Payload) *entity.CompletionRecord {
	record := &entity.CompletionRecord{
		ServiceOrderID:          p.ServiceOrderID,
		SessionID:               p.SessionID,
		TechnicalReport:         p.TechnicalReport,
		Attachments:             append([]string{}, p.Attachments...),
		TechnicianSignature:     p.TechnicianSignature,
		ClientSignature:         p.ClientSignature,
		AdministrativeBypass:    p.AdministrativeBypass,
		PaymentConfirmed:        p.PaymentConfirmed,
		FiscalDocumentRequested: p.FiscalDocumentRequested,
		FiscalSkipped:           p.FiscalSkipped,
		TotalAmount:             p.TotalAmount,
		CompletedBy:             p.CompletedBy,
		CompletedAt:             p.CompletedAt,
		CreatedAt:               time.Now(),
	}
	if p.FiscalDocumentResult != nil {
		record.FiscalDocumentID = p.FiscalDocumentResult.ID
	}
	return record
}

func newFiscalDocument(p completion.Payload) *entity.FiscalDocument {
	if p.FiscalDocumentResult == nil {
		return nil
	}
	doc := &entity.FiscalDocument{
		ServiceOrderID:   p.ServiceOrderID,
		ExternalID:       p.FiscalDocumentResult.ID,
		VerificationCode: p.FiscalDocumentResult.VerificationCode,
		Status:           p.FiscalDocumentResult.Status,
		IssuedAt:         p.FiscalDocumentResult.IssuedAt,
		CreatedAt:        time.Now(),
	}
	if p.FiscalDocumentDraft != nil {
		doc.Description = p.FiscalDocumentDraft.Description
		doc.ServiceCode = p.FiscalDocumentDraft.ServiceCode
		doc.Amount = p.FiscalDocumentDraft.Amount
	}
	return doc
}

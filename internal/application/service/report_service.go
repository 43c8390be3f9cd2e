package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/entity"
	"github.com/garyjia/field-service/internal/domain/event"
)

// ErrCompletionNotFound is returned when an order has no stored completion
var ErrCompletionNotFound = errors.New("completion not found")

// Report is a rendered completion report
type Report struct {
	FileName    string
	ContentType string
	Path        string
	Content     []byte
}

// ReportService renders and archives completion reports
type ReportService interface {
	GenerateCompletionReport(ctx context.Context, orderID int64) (*Report, error)
	// HandleOrderCompleted is the order.completed event handler
	HandleOrderCompleted(ctx context.Context, evt *event.Event) error
}

type reportServiceImpl struct {
	orderRepo      port.ServiceOrderRepository
	completionRepo port.CompletionRepository
	fiscalRepo     port.FiscalDocumentRepository
	renderer       port.ReportRenderer
	storage        port.FileStorage
	logger         Logger
}

// NewReportService creates a new ReportService
func NewReportService(
	orderRepo port.ServiceOrderRepository,
	completionRepo port.CompletionRepository,
	fiscalRepo port.FiscalDocumentRepository,
	renderer port.ReportRenderer,
	storage port.FileStorage,
	logger Logger,
) ReportService {
	return &reportServiceImpl{
		orderRepo:      orderRepo,
		completionRepo: completionRepo,
		fiscalRepo:     fiscalRepo,
		renderer:       renderer,
		storage:        storage,
		logger:         logger,
	}
}

// GenerateCompletionReport renders the report of a completed order and stores a copy
func (s *reportServiceImpl) GenerateCompletionReport(ctx context.Context, orderID int64) (*Report, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get service order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: service order %d", port.ErrNotFound, orderID)
	}

	record, err := s.completionRepo.GetByServiceOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: order %d", ErrCompletionNotFound, orderID)
	}

	var doc *entity.FiscalDocument
	if record.FiscalDocumentID != "" {
		doc, err = s.fiscalRepo.GetByServiceOrderID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("get fiscal document: %w", err)
		}
	}

	content, err := s.renderer.Render(port.CompletionReport{
		Order:          order,
		Completion:     record,
		FiscalDocument: doc,
	})
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	fileName := fmt.Sprintf("%s-completion%s", reportCode(order), s.renderer.Extension())
	path := fmt.Sprintf("%s/%s", entity.CategoryReport, fileName)
	if err := s.storage.Save(ctx, path, content, s.renderer.ContentType()); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	s.logger.Info("Completion report generated",
		"order_id", orderID,
		"path", path,
		"size", len(content),
	)

	return &Report{
		FileName:    fileName,
		ContentType: s.renderer.ContentType(),
		Path:        path,
		Content:     content,
	}, nil
}

// HandleOrderCompleted generates the report as soon as the order is completed
func (s *reportServiceImpl) HandleOrderCompleted(ctx context.Context, evt *event.Event) error {
	if evt.Type != event.TypeOrderCompleted {
		return nil
	}
	completionID, _ := evt.Int64("completion_id")
	total, _ := evt.Amount("total_amount")
	if _, err := s.GenerateCompletionReport(ctx, evt.ServiceOrderID); err != nil {
		s.logger.Error("Failed to generate completion report",
			"error", err,
			"order_id", evt.ServiceOrderID,
			"completion_id", completionID,
			"fiscal_document_id", evt.Text("fiscal_document_id"),
			"total_amount", total,
			"correlation_id", evt.CorrelationID,
		)
		return err
	}
	return nil
}

func reportCode(order *entity.ServiceOrder) string {
	if order.Code != "" {
		return order.Code
	}
	return fmt.Sprintf("order-%d", order.ID)
}

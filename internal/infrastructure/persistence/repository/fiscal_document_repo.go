package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/entity"
	"github.com/garyjia/field-service/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// FiscalDocumentRepository implements port.FiscalDocumentRepository
type FiscalDocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFiscalDocumentRepository creates a new fiscal document repository
func NewFiscalDocumentRepository(db *sql.DB, logger *zap.Logger) port.FiscalDocumentRepository {
	return &FiscalDocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists an issued fiscal document
func (r *FiscalDocumentRepository) Create(ctx context.Context, doc *entity.FiscalDocument) error {
	query := `
		INSERT INTO fiscal_documents (
			service_order_id, external_id, verification_code, status,
			description, service_code, amount, issued_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		doc.ServiceOrderID,
		doc.ExternalID,
		doc.VerificationCode,
		doc.Status,
		doc.Description,
		doc.ServiceCode,
		doc.Amount,
		doc.IssuedAt,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create fiscal document",
			zap.Int64("service_order_id", doc.ServiceOrderID),
			zap.String("external_id", doc.ExternalID),
			zap.Error(err))
		return fmt.Errorf("failed to create fiscal document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	doc.ID = id
	doc.CreatedAt = now
	return nil
}

// GetByServiceOrderID retrieves the most recent fiscal document of an order
func (r *FiscalDocumentRepository) GetByServiceOrderID(ctx context.Context, orderID int64) (*entity.FiscalDocument, error) {
	query := `
		SELECT id, service_order_id, external_id, verification_code, status,
			description, service_code, amount, issued_at, created_at
		FROM fiscal_documents
		WHERE service_order_id = ?
		ORDER BY id DESC
		LIMIT 1
	`

	var doc entity.FiscalDocument
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, orderID).Scan(
		&doc.ID,
		&doc.ServiceOrderID,
		&doc.ExternalID,
		&doc.VerificationCode,
		&doc.Status,
		&doc.Description,
		&doc.ServiceCode,
		&doc.Amount,
		&doc.IssuedAt,
		&doc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get fiscal document", zap.Int64("service_order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to get fiscal document: %w", err)
	}
	return &doc, nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/entity"
	"github.com/garyjia/field-service/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// CompletionRepository implements port.CompletionRepository.
// Attachment URLs are stored as a JSON array column.
type CompletionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCompletionRepository creates a new completion repository
func NewCompletionRepository(db *sql.DB, logger *zap.Logger) port.CompletionRepository {
	return &CompletionRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a completion record
func (r *CompletionRepository) Create(ctx context.Context, record *entity.CompletionRecord) error {
	attachments := record.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}

	query := `
		INSERT INTO completions (
			service_order_id, session_id, technical_report, attachments,
			technician_signature, client_signature, administrative_bypass,
			payment_confirmed, fiscal_document_requested, fiscal_skipped,
			fiscal_document_id, total_amount, completed_by, completed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		record.ServiceOrderID,
		record.SessionID,
		record.TechnicalReport,
		string(attachmentsJSON),
		record.TechnicianSignature,
		record.ClientSignature,
		record.AdministrativeBypass,
		record.PaymentConfirmed,
		record.FiscalDocumentRequested,
		record.FiscalSkipped,
		record.FiscalDocumentID,
		record.TotalAmount,
		record.CompletedBy,
		record.CompletedAt,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create completion",
			zap.Int64("service_order_id", record.ServiceOrderID),
			zap.String("session_id", record.SessionID),
			zap.Error(err))
		return fmt.Errorf("failed to create completion: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	record.CreatedAt = now
	return nil
}

const completionColumns = `
	id, service_order_id, session_id, technical_report, attachments,
	technician_signature, client_signature, administrative_bypass,
	payment_confirmed, fiscal_document_requested, fiscal_skipped,
	fiscal_document_id, total_amount, completed_by, completed_at, created_at
`

// GetByServiceOrderID retrieves the completion of an order
func (r *CompletionRepository) GetByServiceOrderID(ctx context.Context, orderID int64) (*entity.CompletionRecord, error) {
	query := `SELECT ` + completionColumns + ` FROM completions WHERE service_order_id = ?`

	record, err := r.scan(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, orderID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get completion by order", zap.Int64("service_order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	return record, nil
}

// GetBySessionID retrieves the completion produced by a session
func (r *CompletionRepository) GetBySessionID(ctx context.Context, sessionID string) (*entity.CompletionRecord, error) {
	query := `SELECT ` + completionColumns + ` FROM completions WHERE session_id = ?`

	record, err := r.scan(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get completion by session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	return record, nil
}

func (r *CompletionRepository) scan(row rowScanner) (*entity.CompletionRecord, error) {
	var record entity.CompletionRecord
	var attachmentsJSON string

	err := row.Scan(
		&record.ID,
		&record.ServiceOrderID,
		&record.SessionID,
		&record.TechnicalReport,
		&attachmentsJSON,
		&record.TechnicianSignature,
		&record.ClientSignature,
		&record.AdministrativeBypass,
		&record.PaymentConfirmed,
		&record.FiscalDocumentRequested,
		&record.FiscalSkipped,
		&record.FiscalDocumentID,
		&record.TotalAmount,
		&record.CompletedBy,
		&record.CompletedAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(attachmentsJSON), &record.Attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}
	return &record, nil
}

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

// ServiceOrderRepository implements port.ServiceOrderRepository
type ServiceOrderRepository struct {
	db     *sql.DB
	tx     *sqlite.TxManager
	logger *zap.Logger
}

// NewServiceOrderRepository creates a new service order repository
func NewServiceOrderRepository(db *sql.DB, logger *zap.Logger) port.ServiceOrderRepository {
	return &ServiceOrderRepository{
		db:     db,
		tx:     sqlite.NewTxManager(db, logger),
		logger: logger,
	}
}

const serviceOrderColumns = `
	id, code, client_name, client_phone, equipment, address, description,
	status, technician, fiscal_document_id, completed_at, created_at, updated_at
`

// Create inserts the order and its line items in one transaction
func (r *ServiceOrderRepository) Create(ctx context.Context, order *entity.ServiceOrder) error {
	if order.Status == "" {
		order.Status = entity.OrderStatusOpen
	}
	now := time.Now()

	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO service_orders (
				code, client_name, client_phone, equipment, address, description,
				status, technician, fiscal_document_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`

		result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
			order.Code,
			order.ClientName,
			order.ClientPhone,
			order.Equipment,
			order.Address,
			order.Description,
			order.Status,
			order.Technician,
			order.FiscalDocumentID,
			now,
			now,
		)
		if err != nil {
			r.logger.Error("Failed to create service order", zap.String("code", order.Code), zap.Error(err))
			return fmt.Errorf("failed to create service order: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		order.ID = id
		order.CreatedAt = now
		order.UpdatedAt = now

		for i := range order.LineItems {
			item := &order.LineItems[i]
			item.OrderID = id
			if err := r.insertLineItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ServiceOrderRepository) insertLineItem(ctx context.Context, item *entity.LineItem) error {
	query := `INSERT INTO line_items (order_id, description, quantity, unit_price) VALUES (?, ?, ?, ?)`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		item.OrderID,
		item.Description,
		item.Quantity,
		item.UnitPrice,
	)
	if err != nil {
		r.logger.Error("Failed to create line item", zap.Int64("order_id", item.OrderID), zap.Error(err))
		return fmt.Errorf("failed to create line item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	return nil
}

// GetByID retrieves a service order with its line items
func (r *ServiceOrderRepository) GetByID(ctx context.Context, id int64) (*entity.ServiceOrder, error) {
	query := `SELECT ` + serviceOrderColumns + ` FROM service_orders WHERE id = ?`

	order, err := scanServiceOrder(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get service order by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get service order: %w", err)
	}

	if order.LineItems, err = r.lineItems(ctx, id); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *ServiceOrderRepository) lineItems(ctx context.Context, orderID int64) ([]entity.LineItem, error) {
	query := `
		SELECT id, order_id, description, quantity, unit_price
		FROM line_items
		WHERE order_id = ?
		ORDER BY id
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, orderID)
	if err != nil {
		r.logger.Error("Failed to list line items", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	defer rows.Close()

	items := []entity.LineItem{}
	for rows.Next() {
		var item entity.LineItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Description, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateStatus updates the status of a service order
func (r *ServiceOrderRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE service_orders SET status = ?, updated_at = ? WHERE id = ?`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update status", zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update status: %w", err)
	}
	return requireRow(result, id)
}

// MarkCompleted moves an open order to COMPLETED. An empty fiscalDocumentID keeps
// whatever document the order already carried.
func (r *ServiceOrderRepository) MarkCompleted(ctx context.Context, id int64, fiscalDocumentID string, completedAt time.Time) error {
	query := `
		UPDATE service_orders
		SET status = ?,
			fiscal_document_id = CASE WHEN ? = '' THEN fiscal_document_id ELSE ? END,
			completed_at = ?,
			updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		entity.OrderStatusCompleted,
		fiscalDocumentID,
		fiscalDocumentID,
		completedAt,
		time.Now(),
		id,
		entity.OrderStatusCompleted,
		entity.OrderStatusCancelled,
	)
	if err != nil {
		r.logger.Error("Failed to mark service order completed", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark service order completed: %w", err)
	}
	return requireRow(result, id)
}

// List retrieves service orders with pagination, newest first
func (r *ServiceOrderRepository) List(ctx context.Context, limit, offset int) ([]*entity.ServiceOrder, error) {
	query := `SELECT ` + serviceOrderColumns + ` FROM service_orders ORDER BY id DESC LIMIT ? OFFSET ?`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list service orders", zap.Error(err))
		return nil, fmt.Errorf("failed to list service orders: %w", err)
	}

	var orders []*entity.ServiceOrder
	for rows.Next() {
		order, err := scanServiceOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan service order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// release the cursor first; with a single pooled connection the item queries would block on it
	rows.Close()

	for _, order := range orders {
		if order.LineItems, err = r.lineItems(ctx, order.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanServiceOrder(row rowScanner) (*entity.ServiceOrder, error) {
	var order entity.ServiceOrder
	var completedAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.Code,
		&order.ClientName,
		&order.ClientPhone,
		&order.Equipment,
		&order.Address,
		&order.Description,
		&order.Status,
		&order.Technician,
		&order.FiscalDocumentID,
		&completedAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		order.CompletedAt = &completedAt.Time
	}
	return &order, nil
}

func requireRow(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: service order %d", port.ErrNotFound, id)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/entity"
	"github.com/garyjia/field-service/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/field-service/migrations"
	"github.com/garyjia/field-service/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	logger := zap.NewNop()

	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "field.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.NewMigrator(db, logger).Up(ctx, migrations.FS)
	require.NoError(t, err)
	return db.DB
}

func sampleOrder() *entity.ServiceOrder {
	return &entity.ServiceOrder{
		Code:        "OS-0001",
		ClientName:  "Maria Souza",
		ClientPhone: "+5511999990000",
		Equipment:   "Split AC 12000 BTU",
		Description: "AC not cooling",
		Status:      entity.OrderStatusInProgress,
		LineItems: []entity.LineItem{
			{Description: "Gas recharge", Quantity: 1, UnitPrice: 250},
			{Description: "Labour hour", Quantity: 2.5, UnitPrice: 120.2},
		},
	}
}

func TestServiceOrderRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewServiceOrderRepository(setupDB(t), zap.NewNop())

	order := sampleOrder()
	require.NoError(t, repo.Create(ctx, order))
	require.NotZero(t, order.ID)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "OS-0001", got.Code)
	assert.Equal(t, entity.OrderStatusInProgress, got.Status)
	require.Len(t, got.LineItems, 2)
	assert.Equal(t, "Gas recharge", got.LineItems[0].Description)
	assert.Equal(t, 550.5, got.Total())
	assert.Nil(t, got.CompletedAt)
}

func TestServiceOrderRepository_GetMissing(t *testing.T) {
	repo := NewServiceOrderRepository(setupDB(t), zap.NewNop())

	got, err := repo.GetByID(context.Background(), 42)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestServiceOrderRepository_MarkCompleted(t *testing.T) {
	ctx := context.Background()
	repo := NewServiceOrderRepository(setupDB(t), zap.NewNop())

	order := sampleOrder()
	require.NoError(t, repo.Create(ctx, order))

	completedAt := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkCompleted(ctx, order.ID, "NFSE-001", completedAt))

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCompleted, got.Status)
	assert.Equal(t, "NFSE-001", got.FiscalDocumentID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completedAt.Equal(*got.CompletedAt))

	err = repo.MarkCompleted(ctx, order.ID, "NFSE-002", completedAt)
	assert.True(t, errors.Is(err, port.ErrNotFound), "completed orders cannot be completed again")
}

func TestServiceOrderRepository_MarkCompletedKeepsExistingDocument(t *testing.T) {
	ctx := context.Background()
	repo := NewServiceOrderRepository(setupDB(t), zap.NewNop())

	order := sampleOrder()
	order.FiscalDocumentID = "NFSE-EARLY"
	require.NoError(t, repo.Create(ctx, order))

	require.NoError(t, repo.MarkCompleted(ctx, order.ID, "", time.Now()))

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "NFSE-EARLY", got.FiscalDocumentID)
}

func TestServiceOrderRepository_UpdateStatusAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewServiceOrderRepository(setupDB(t), zap.NewNop())

	first := sampleOrder()
	require.NoError(t, repo.Create(ctx, first))
	second := sampleOrder()
	second.Code = "OS-0002"
	second.LineItems = nil
	require.NoError(t, repo.Create(ctx, second))

	require.NoError(t, repo.UpdateStatus(ctx, first.ID, entity.OrderStatusCancelled))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, 999, entity.OrderStatusCancelled), port.ErrNotFound)

	orders, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "OS-0002", orders[0].Code)
	assert.Empty(t, orders[0].LineItems)
	assert.Equal(t, entity.OrderStatusCancelled, orders[1].Status)
	assert.Len(t, orders[1].LineItems, 2)
}

func TestCompletionRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	orders := NewServiceOrderRepository(db, zap.NewNop())
	repo := NewCompletionRepository(db, zap.NewNop())

	order := sampleOrder()
	require.NoError(t, orders.Create(ctx, order))

	record := &entity.CompletionRecord{
		ServiceOrderID:          order.ID,
		SessionID:               "session-1",
		TechnicalReport:         "Recharged gas",
		Attachments:             []string{"https://files/a.jpg", "https://files/b.jpg"},
		TechnicianSignature:     "https://files/tech.png",
		ClientSignature:         "https://files/client.png",
		PaymentConfirmed:        true,
		FiscalDocumentRequested: true,
		FiscalDocumentID:        "NFSE-001",
		TotalAmount:             550.5,
		CompletedBy:             "tech-1",
		CompletedAt:             time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, record))
	require.NotZero(t, record.ID)

	byOrder, err := repo.GetByServiceOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, byOrder)
	assert.Equal(t, record.Attachments, byOrder.Attachments)
	assert.True(t, byOrder.PaymentConfirmed)
	assert.False(t, byOrder.AdministrativeBypass)
	assert.Equal(t, "NFSE-001", byOrder.FiscalDocumentID)

	bySession, err := repo.GetBySessionID(ctx, "session-1")
	require.NoError(t, err)
	require.NotNil(t, bySession)
	assert.Equal(t, byOrder.ID, bySession.ID)

	missing, err := repo.GetBySessionID(ctx, "session-2")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	// one completion per order
	dup := *record
	dup.SessionID = "session-3"
	assert.Error(t, repo.Create(ctx, &dup))
}

func TestCompletionRepository_EmptyAttachments(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	orders := NewServiceOrderRepository(db, zap.NewNop())
	repo := NewCompletionRepository(db, zap.NewNop())

	order := sampleOrder()
	require.NoError(t, orders.Create(ctx, order))

	require.NoError(t, repo.Create(ctx, &entity.CompletionRecord{
		ServiceOrderID:       order.ID,
		SessionID:            "session-1",
		AdministrativeBypass: true,
		CompletedAt:          time.Now(),
	}))

	got, err := repo.GetByServiceOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Attachments)
	assert.True(t, got.AdministrativeBypass)
}

func TestFiscalDocumentRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	orders := NewServiceOrderRepository(db, zap.NewNop())
	repo := NewFiscalDocumentRepository(db, zap.NewNop())

	order := sampleOrder()
	require.NoError(t, orders.Create(ctx, order))

	none, err := repo.GetByServiceOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	doc := &entity.FiscalDocument{
		ServiceOrderID:   order.ID,
		ExternalID:       "NFSE-001",
		VerificationCode: "ABC123",
		Status:           entity.FiscalStatusIssued,
		Description:      "AC maintenance",
		ServiceCode:      "14.01",
		Amount:           550.5,
		IssuedAt:         time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, doc))

	got, err := repo.GetByServiceOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ABC123", got.VerificationCode)
	assert.Equal(t, 550.5, got.Amount)
	assert.True(t, doc.IssuedAt.Equal(got.IssuedAt))
}

func TestTransaction_RollsBackAcrossRepositories(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	txManager := sqlite.NewTxManager(db, zap.NewNop())
	orders := NewServiceOrderRepository(db, zap.NewNop())
	completions := NewCompletionRepository(db, zap.NewNop())

	order := sampleOrder()
	require.NoError(t, orders.Create(ctx, order))

	boom := errors.New("fiscal insert failed")
	err := txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := completions.Create(ctx, &entity.CompletionRecord{
			ServiceOrderID: order.ID,
			SessionID:      "session-1",
			CompletedAt:    time.Now(),
		}); err != nil {
			return err
		}
		if err := orders.MarkCompleted(ctx, order.ID, "", time.Now()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	record, err := completions.GetBySessionID(ctx, "session-1")
	require.NoError(t, err)
	assert.Nil(t, record)

	got, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusInProgress, got.Status)
}

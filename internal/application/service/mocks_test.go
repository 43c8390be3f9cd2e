package service

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/entity"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type mockOrderRepo struct {
	getByIDFunc       func(ctx context.Context, id int64) (*entity.ServiceOrder, error)
	markCompletedFunc func(ctx context.Context, id int64, fiscalDocumentID string, completedAt time.Time) error
}

func (m *mockOrderRepo) Create(ctx context.Context, order *entity.ServiceOrder) error {
	return nil
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id int64) (*entity.ServiceOrder, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.ServiceOrder{ID: id, Code: "OS-0001", Status: entity.OrderStatusInProgress}, nil
}

func (m *mockOrderRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	return nil
}

func (m *mockOrderRepo) MarkCompleted(ctx context.Context, id int64, fiscalDocumentID string, completedAt time.Time) error {
	if m.markCompletedFunc != nil {
		return m.markCompletedFunc(ctx, id, fiscalDocumentID, completedAt)
	}
	return nil
}

func (m *mockOrderRepo) List(ctx context.Context, limit, offset int) ([]*entity.ServiceOrder, error) {
	return nil, nil
}

type mockCompletionRepo struct {
	created                 []*entity.CompletionRecord
	createFunc              func(ctx context.Context, record *entity.CompletionRecord) error
	getBySessionIDFunc      func(ctx context.Context, sessionID string) (*entity.CompletionRecord, error)
	getByServiceOrderIDFunc func(ctx context.Context, orderID int64) (*entity.CompletionRecord, error)
}

func (m *mockCompletionRepo) Create(ctx context.Context, record *entity.CompletionRecord) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, record); err != nil {
			return err
		}
	}
	record.ID = int64(len(m.created) + 1)
	m.created = append(m.created, record)
	return nil
}

func (m *mockCompletionRepo) GetByServiceOrderID(ctx context.Context, orderID int64) (*entity.CompletionRecord, error) {
	if m.getByServiceOrderIDFunc != nil {
		return m.getByServiceOrderIDFunc(ctx, orderID)
	}
	return nil, nil
}

func (m *mockCompletionRepo) GetBySessionID(ctx context.Context, sessionID string) (*entity.CompletionRecord, error) {
	if m.getBySessionIDFunc != nil {
		return m.getBySessionIDFunc(ctx, sessionID)
	}
	return nil, nil
}

type mockFiscalRepo struct {
	created                 []*entity.FiscalDocument
	getByServiceOrderIDFunc func(ctx context.Context, orderID int64) (*entity.FiscalDocument, error)
}

func (m *mockFiscalRepo) Create(ctx context.Context, doc *entity.FiscalDocument) error {
	doc.ID = int64(len(m.created) + 1)
	m.created = append(m.created, doc)
	return nil
}

func (m *mockFiscalRepo) GetByServiceOrderID(ctx context.Context, orderID int64) (*entity.FiscalDocument, error) {
	if m.getByServiceOrderIDFunc != nil {
		return m.getByServiceOrderIDFunc(ctx, orderID)
	}
	return nil, nil
}

// mockTxManager runs fn directly and records whether it failed
type mockTxManager struct {
	calls      int
	rolledBack bool
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	if err := fn(ctx); err != nil {
		m.rolledBack = true
		return err
	}
	return nil
}

type mockNotifier struct {
	channel  string
	notices  []port.CompletionNotice
	notifyFn func(ctx context.Context, notice port.CompletionNotice) error
}

func (m *mockNotifier) Channel() string {
	return m.channel
}

func (m *mockNotifier) NotifyCompletion(ctx context.Context, notice port.CompletionNotice) error {
	m.notices = append(m.notices, notice)
	if m.notifyFn != nil {
		return m.notifyFn(ctx, notice)
	}
	return nil
}

type mockRenderer struct {
	rendered []port.CompletionReport
	renderFn func(report port.CompletionReport) ([]byte, error)
}

func (m *mockRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (m *mockRenderer) Extension() string {
	return ".xlsx"
}

func (m *mockRenderer) Render(report port.CompletionReport) ([]byte, error) {
	m.rendered = append(m.rendered, report)
	if m.renderFn != nil {
		return m.renderFn(report)
	}
	return []byte("xlsx"), nil
}

type mockStorage struct {
	saved map[string][]byte
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte, contentType string) error {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[path] = content
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	return m.saved[path], nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	_, ok := m.saved[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	delete(m.saved, path)
	return nil
}

func (m *mockStorage) URL(path string) string {
	return "file://" + path
}

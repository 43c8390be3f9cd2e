package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/field-service/internal/application/dispatcher"
	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/completion"
	"github.com/garyjia/field-service/internal/domain/entity"
	"github.com/garyjia/field-service/internal/domain/event"
)

const (
	defaultIdleTimeout       = 30 * time.Minute
	defaultUploadConcurrency = 4
)

// Manager owns the open completion sessions. At most one session is open per service
// order; sessions idle for longer than the idle timeout are discarded by SweepIdle.
type Manager struct {
	orders   port.ServiceOrderRepository
	uploader port.FileUploader
	emitter  port.FiscalEmitter
	sink     port.CompletionSink

	dispatcher        dispatcher.Dispatcher
	metrics           port.WorkflowMetrics
	logger            Logger
	clock             func() time.Time
	idleTimeout       time.Duration
	uploadConcurrency int
	fiscalServiceCode string

	mu       sync.RWMutex
	sessions map[string]*Session
	byOrder  map[int64]string
}

// ManagerOption configures the session manager
type ManagerOption func(*Manager)

// WithDispatcher sets the event dispatcher for session events
func WithDispatcher(d dispatcher.Dispatcher) ManagerOption {
	return func(m *Manager) {
		m.dispatcher = d
	}
}

// WithMetrics sets the workflow metrics recorder
func WithMetrics(metrics port.WorkflowMetrics) ManagerOption {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithLogger sets a logger for the manager and its sessions
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithIdleTimeout sets how long a session may stay untouched before it is discarded
func WithIdleTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.idleTimeout = timeout
		}
	}
}

// WithUploadConcurrency bounds concurrent uploads within one batch
func WithUploadConcurrency(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.uploadConcurrency = n
		}
	}
}

// WithFiscalServiceCode sets the service code pre-filled into new fiscal drafts
func WithFiscalServiceCode(code string) ManagerOption {
	return func(m *Manager) {
		m.fiscalServiceCode = code
	}
}

// WithClock overrides the time source
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager creates a session manager
func NewManager(
	orders port.ServiceOrderRepository,
	uploader port.FileUploader,
	emitter port.FiscalEmitter,
	sink port.CompletionSink,
	opts ...ManagerOption,
) *Manager {
	m := &Manager{
		orders:            orders,
		uploader:          uploader,
		emitter:           emitter,
		sink:              sink,
		metrics:           nopMetrics{},
		logger:            nopLogger{},
		clock:             time.Now,
		idleTimeout:       defaultIdleTimeout,
		uploadConcurrency: defaultUploadConcurrency,
		sessions:          make(map[string]*Session),
		byOrder:           make(map[int64]string),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Open starts a completion session for a service order
func (m *Manager) Open(ctx context.Context, orderID int64, operator Operator) (*Session, error) {
	m.mu.RLock()
	existing, exists := m.byOrder[orderID]
	m.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: order %d, session %s", ErrSessionExists, orderID, existing)
	}

	order, err := m.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load service order %d: %w", orderID, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: service order %d", port.ErrNotFound, orderID)
	}
	if !order.IsCompletable() {
		return nil, fmt.Errorf("%w: order %d is %s", ErrOrderNotCompletable, orderID, order.Status)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	now := m.clock()
	s := &Session{
		id:                uuid.NewString(),
		order:             *order,
		operator:          operator,
		total:             order.Total(),
		openedAt:          now,
		uploader:          m.uploader,
		emitter:           m.emitter,
		sink:              m.sink,
		dispatcher:        m.dispatcher,
		metrics:           m.metrics,
		logger:            m.logger,
		clock:             m.clock,
		uploadConcurrency: m.uploadConcurrency,
		fiscalServiceCode: m.fiscalServiceCode,
		onClose:           m.remove,
		ctx:               sessionCtx,
		cancel:            cancel,
		draft:             completion.NewDraft(order.HasFiscalDocument()),
		current:           completion.StepEvidence,
		lastActivity:      now,
	}
	s.order.LineItems = append([]entity.LineItem(nil), order.LineItems...)

	m.mu.Lock()
	if existing, exists := m.byOrder[orderID]; exists {
		m.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: order %d, session %s", ErrSessionExists, orderID, existing)
	}
	m.sessions[s.id] = s
	m.byOrder[orderID] = s.id
	m.mu.Unlock()

	m.metrics.SessionOpened()
	m.logger.Info("Completion session opened",
		"session_id", s.id,
		"order_id", orderID,
		"operator", operator.ID,
		"fiscal_document_issued", order.HasFiscalDocument(),
	)
	if m.dispatcher != nil {
		m.dispatcher.PublishAsync(ctx, event.NewEvent(event.TypeSessionOpened, orderID, s.id, map[string]interface{}{
			"operator": operator.ID,
		}))
	}

	return s, nil
}

// Get returns an open session
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, exists := m.sessions[id]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// FindByOrder returns the open session for a service order
func (m *Manager) FindByOrder(orderID int64) (*Session, error) {
	m.mu.RLock()
	id, exists := m.byOrder[orderID]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: order %d", ErrSessionNotFound, orderID)
	}
	return m.Get(id)
}

// Close cancels a session and discards its draft
func (m *Manager) Close(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Close(ctx, CloseReasonCancelled)
	return nil
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SweepIdle closes sessions whose last activity is older than the idle timeout and
// returns how many were closed. Sessions waiting on a collaborator are left alone.
func (m *Manager) SweepIdle(ctx context.Context) int {
	now := m.clock()

	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	expired := 0
	for _, s := range candidates {
		if now.Sub(s.LastActivity()) < m.idleTimeout {
			continue
		}
		if s.awaitingCollaborator() {
			continue
		}
		s.Close(ctx, CloseReasonExpired)
		expired++
	}

	if expired > 0 {
		m.logger.Info("Idle completion sessions expired", "count", expired)
	}
	return expired
}

// Shutdown closes every open session
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		s.Close(ctx, CloseReasonShutdown)
	}
}

// remove forgets a closed session
func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, s.id)
	if m.byOrder[s.order.ID] == s.id {
		delete(m.byOrder, s.order.ID)
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker is a background loop owned by the WorkerManager
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// WorkerStatus is one row of the manager's health report
type WorkerStatus struct {
	Name    string
	Running bool
}

// WorkerManager starts workers in registration order and stops them in reverse
type WorkerManager struct {
	logger *zap.Logger

	mu      sync.Mutex
	workers []Worker
	started []Worker
	cancel  context.CancelFunc
}

// NewWorkerManager creates an empty manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{logger: logger}
}

// Register adds a worker. Workers cannot be added while the manager is running.
func (m *WorkerManager) Register(w Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("cannot register %s: workers already running", w.Name())
	}
	for _, existing := range m.workers {
		if existing.Name() == w.Name() {
			return fmt.Errorf("worker %s already registered", w.Name())
		}
	}
	m.workers = append(m.workers, w)
	return nil
}

// StartAll starts every worker. If one fails, the ones already started are
// stopped again and the error is returned.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	for _, w := range m.workers {
		if err := w.Start(runCtx); err != nil {
			cancel()
			stopErr := stopReverse(m.started, m.logger)
			m.started = nil
			return errors.Join(fmt.Errorf("start %s: %w", w.Name(), err), stopErr)
		}
		m.started = append(m.started, w)
		m.logger.Info("Worker started", zap.String("worker_name", w.Name()))
	}

	m.cancel = cancel
	m.logger.Info("All workers started", zap.Int("count", len(m.started)))
	return nil
}

// StopAll stops the running workers, newest first. Stopping an idle manager is a no-op.
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.cancel = nil

	err := stopReverse(m.started, m.logger)
	m.started = nil
	return err
}

// Status reports every registered worker
func (m *WorkerManager) Status() []WorkerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := make(map[string]bool, len(m.started))
	for _, w := range m.started {
		running[w.Name()] = true
	}
	out := make([]WorkerStatus, len(m.workers))
	for i, w := range m.workers {
		out[i] = WorkerStatus{Name: w.Name(), Running: running[w.Name()]}
	}
	return out
}

// IsRunning returns whether workers are running
func (m *WorkerManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func stopReverse(workers []Worker, logger *zap.Logger) error {
	var errs []error
	for i := len(workers) - 1; i >= 0; i-- {
		w := workers[i]
		if err := w.Stop(); err != nil {
			logger.Error("Failed to stop worker", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", w.Name(), err))
			continue
		}
		logger.Info("Worker stopped", zap.String("worker_name", w.Name()))
	}
	return errors.Join(errs...)
}

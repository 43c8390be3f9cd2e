package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdleSweeper closes sessions that have been idle too long
type IdleSweeper interface {
	SweepIdle(ctx context.Context) int
}

// SessionSweeper periodically discards abandoned completion sessions
type SessionSweeper struct {
	interval time.Duration
	sessions IdleSweeper
	logger   *zap.Logger

	mu           sync.RWMutex
	cancel       context.CancelFunc
	done         chan struct{}
	isRunning    bool
	lastSweep    time.Time
	sweeps       int
	expiredCount int
}

// SweeperStats is a snapshot of the sweeper counters
type SweeperStats struct {
	Running      bool
	LastSweep    time.Time
	Sweeps       int
	ExpiredCount int
}

// NewSessionSweeper creates a sweeper that runs every interval
func NewSessionSweeper(interval time.Duration, sessions IdleSweeper, logger *zap.Logger) *SessionSweeper {
	return &SessionSweeper{
		interval: interval,
		sessions: sessions,
		logger:   logger,
	}
}

// Start begins the sweep loop
func (w *SessionSweeper) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("session sweeper interval must be positive, got %s", w.interval)
	}

	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("session sweeper already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	done := w.done
	w.mu.Unlock()

	w.logger.Info("SessionSweeper started", zap.Duration("interval", w.interval))

	go w.sweepLoop(loopCtx, done)
	return nil
}

// Stop terminates the loop and waits for an in-progress sweep to finish
func (w *SessionSweeper) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("SessionSweeper stopped",
		zap.Int("sweeps", stats.Sweeps),
		zap.Int("expired_count", stats.ExpiredCount))
	return nil
}

// Name returns the worker name for identification
func (w *SessionSweeper) Name() string {
	return "SessionSweeper"
}

// Stats returns the sweeper counters
func (w *SessionSweeper) Stats() SweeperStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return SweeperStats{
		Running:      w.isRunning,
		LastSweep:    w.lastSweep,
		Sweeps:       w.sweeps,
		ExpiredCount: w.expiredCount,
	}
}

func (w *SessionSweeper) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired := w.sessions.SweepIdle(ctx)

			w.mu.Lock()
			w.lastSweep = time.Now()
			w.sweeps++
			w.expiredCount += expired
			w.mu.Unlock()
		}
	}
}

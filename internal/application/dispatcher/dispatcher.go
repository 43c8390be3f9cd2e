package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/garyjia/field-service/internal/domain/event"
)

// Dispatcher fans workflow events out to the subscribers of their type
type Dispatcher interface {
	// Subscribe registers a named handler. Names are unique per event type;
	// subscribing an existing name replaces its handler.
	Subscribe(eventType event.Type, name string, handler Handler, opts ...SubscribeOption)

	// Publish runs every handler in registration order and returns all their failures joined
	Publish(ctx context.Context, evt *event.Event) error

	// PublishAsync runs handlers in the background on a context detached from ctx's
	// cancellation, each bounded by the async timeout
	PublishAsync(ctx context.Context, evt *event.Event)

	// Subscriptions lists handler names for an event type
	Subscriptions(eventType event.Type) []string

	// Pending is the number of async handler runs not finished yet
	Pending() int

	// Close rejects further events and waits for pending async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ErrClosed is returned when publishing on a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

const (
	defaultAsyncTimeout = 30 * time.Second
	defaultMaxInFlight  = 16
)

type eventDispatcher struct {
	mu            sync.RWMutex
	subscriptions map[event.Type][]subscription
	logger        Logger

	asyncTimeout time.Duration
	maxInFlight  int64
	inFlight     *semaphore.Weighted
	pending      atomic.Int64
	sleep        func(ctx context.Context, d time.Duration) error

	// closeMu orders wg.Add in PublishAsync against Close's wg.Wait
	closeMu sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithAsyncTimeout bounds how long an async handler may run, retries included
func WithAsyncTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) {
		if timeout > 0 {
			d.asyncTimeout = timeout
		}
	}
}

// WithMaxInFlight caps how many async handler runs execute at once
func WithMaxInFlight(n int) Option {
	return func(d *eventDispatcher) {
		if n > 0 {
			d.maxInFlight = int64(n)
		}
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		subscriptions: make(map[event.Type][]subscription),
		asyncTimeout:  defaultAsyncTimeout,
		maxInFlight:   defaultMaxInFlight,
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.inFlight = semaphore.NewWeighted(d.maxInFlight)
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler, opts ...SubscribeOption) {
	sub := newSubscription(name, handler, opts)

	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.subscriptions[eventType]
	replaced := false
	for i := range subs {
		if subs[i].name == name {
			subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		d.subscriptions[eventType] = append(subs, sub)
	}

	d.logInfo("Handler subscribed",
		"event_type", eventType,
		"handler_name", name,
		"attempts", sub.attempts,
		"replaced", replaced,
	)
}

func (d *eventDispatcher) Publish(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if d.isClosed() {
		return ErrClosed
	}

	subs := d.snapshot(evt.Type)
	d.logInfo("Publishing event",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"order_id", evt.ServiceOrderID,
		"handler_count", len(subs),
	)

	var errs []error
	for _, sub := range subs {
		if err := d.run(ctx, evt, sub); err != nil {
			errs = append(errs, fmt.Errorf("handler %s: %w", sub.name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) PublishAsync(ctx context.Context, evt *event.Event) {
	if evt == nil {
		return
	}
	subs := d.snapshot(evt.Type)

	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		d.logError("Dropped event, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
		)
		return
	}
	if len(subs) == 0 {
		d.closeMu.Unlock()
		return
	}
	d.wg.Add(len(subs))
	d.pending.Add(int64(len(subs)))
	d.closeMu.Unlock()

	d.logInfo("Publishing event asynchronously",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"order_id", evt.ServiceOrderID,
		"handler_count", len(subs),
	)

	// The HTTP request that produced the event usually ends before the handlers do
	detached := context.WithoutCancel(ctx)

	for _, sub := range subs {
		go func(sub subscription) {
			defer d.wg.Done()
			defer d.pending.Add(-1)

			hctx, cancel := context.WithTimeout(detached, d.asyncTimeout)
			defer cancel()

			if err := d.inFlight.Acquire(hctx, 1); err != nil {
				d.logError("Async handler not started",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", sub.name,
					"error", err,
				)
				return
			}
			defer d.inFlight.Release(1)

			_ = d.run(hctx, evt, sub)
		}(sub)
	}
}

func (d *eventDispatcher) Subscriptions(eventType event.Type) []string {
	subs := d.snapshot(eventType)
	names := make([]string, len(subs))
	for i, sub := range subs {
		names[i] = sub.name
	}
	return names
}

func (d *eventDispatcher) Pending() int {
	return int(d.pending.Load())
}

func (d *eventDispatcher) Close() error {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.closeMu.Unlock()

	d.logInfo("Closing dispatcher", "pending", d.Pending())
	d.wg.Wait()
	d.logInfo("Dispatcher closed")
	return nil
}

func (d *eventDispatcher) isClosed() bool {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	return d.closed
}

func (d *eventDispatcher) snapshot(eventType event.Type) []subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]subscription(nil), d.subscriptions[eventType]...)
}

// run executes one subscription with its retry policy and logs the final failure
func (d *eventDispatcher) run(ctx context.Context, evt *event.Event, sub subscription) error {
	backoff := sub.backoff
	var err error
	for attempt := 1; attempt <= sub.attempts; attempt++ {
		if err = d.invoke(ctx, evt, sub); err == nil {
			return nil
		}
		if attempt == sub.attempts {
			break
		}
		d.logError("Handler failed, retrying",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"handler_name", sub.name,
			"attempt", attempt,
			"error", err,
		)
		if serr := d.sleep(ctx, backoff); serr != nil {
			err = errors.Join(err, serr)
			break
		}
		backoff *= 2
	}

	d.logError("Handler failed",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"handler_name", sub.name,
		"error", err,
	)
	return err
}

// invoke calls the handler, turning a panic into an error
func (d *eventDispatcher) invoke(ctx context.Context, evt *event.Event, sub subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *eventDispatcher) logError(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, keysAndValues...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

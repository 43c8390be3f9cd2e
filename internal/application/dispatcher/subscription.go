package dispatcher

import (
	"context"
	"time"

	"github.com/garyjia/field-service/internal/domain/event"
)

// Handler reacts to a workflow event
type Handler func(ctx context.Context, evt *event.Event) error

// SubscribeOption tunes a single subscription
type SubscribeOption func(*subscription)

// WithRetry re-runs a failing handler up to attempts times in total, waiting backoff
// between tries. The wait doubles after each failure.
func WithRetry(attempts int, backoff time.Duration) SubscribeOption {
	return func(s *subscription) {
		if attempts > 1 {
			s.attempts = attempts
		}
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

type subscription struct {
	name     string
	handler  Handler
	attempts int
	backoff  time.Duration
}

func newSubscription(name string, handler Handler, opts []SubscribeOption) subscription {
	s := subscription{
		name:     name,
		handler:  handler,
		attempts: 1,
		backoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/completion"
)

const defaultNotifyTimeout = 10 * time.Second

// NotificationService sends post-completion notices. Delivery never gates completion:
// every failure comes back as a warning string.
type NotificationService interface {
	NotifyCompletion(ctx context.Context, payload completion.Payload) []string
}

type notificationServiceImpl struct {
	orderRepo port.ServiceOrderRepository
	notifiers []port.Notifier
	timeout   time.Duration
	logger    Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	orderRepo port.ServiceOrderRepository,
	notifiers []port.Notifier,
	timeout time.Duration,
	logger Logger,
) NotificationService {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &notificationServiceImpl{
		orderRepo: orderRepo,
		notifiers: notifiers,
		timeout:   timeout,
		logger:    logger,
	}
}

// NotifyCompletion delivers the completion notice on every configured channel
func (s *notificationServiceImpl) NotifyCompletion(ctx context.Context, payload completion.Payload) []string {
	if len(s.notifiers) == 0 {
		return nil
	}

	order, err := s.orderRepo.GetByID(ctx, payload.ServiceOrderID)
	if err == nil && order == nil {
		err = fmt.Errorf("%w: service order %d", port.ErrNotFound, payload.ServiceOrderID)
	}
	if err != nil {
		s.logger.Error("Failed to load order for notification", "error", err, "order_id", payload.ServiceOrderID)
		return []string{fmt.Sprintf("notification skipped: %v", err)}
	}

	notice := port.CompletionNotice{Order: order, Payload: payload}

	var warnings []string
	for _, n := range s.notifiers {
		nctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := n.NotifyCompletion(nctx, notice)
		cancel()

		if err != nil {
			s.logger.Error("Completion notification failed",
				"channel", n.Channel(),
				"order_id", payload.ServiceOrderID,
				"error", err,
			)
			warnings = append(warnings, fmt.Sprintf("%s notification failed: %v", n.Channel(), err))
			continue
		}

		s.logger.Info("Completion notification sent",
			"channel", n.Channel(),
			"order_id", payload.ServiceOrderID,
		)
	}

	return warnings
}

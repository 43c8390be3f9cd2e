package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/entity"
)

func TestNotificationService_NotifyCompletion(t *testing.T) {
	whatsapp := &mockNotifier{channel: "whatsapp"}
	lark := &mockNotifier{channel: "lark"}
	svc := NewNotificationService(&mockOrderRepo{}, []port.Notifier{whatsapp, lark}, time.Second, &mockLogger{})

	warnings := svc.NotifyCompletion(context.Background(), samplePayload())

	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
	if len(whatsapp.notices) != 1 || len(lark.notices) != 1 {
		t.Fatalf("expected one notice per channel, got %d and %d", len(whatsapp.notices), len(lark.notices))
	}
	if whatsapp.notices[0].Order.Code != "OS-0001" {
		t.Errorf("expected order to travel with notice, got %+v", whatsapp.notices[0].Order)
	}
}

func TestNotificationService_FailureBecomesWarning(t *testing.T) {
	whatsapp := &mockNotifier{
		channel: "whatsapp",
		notifyFn: func(ctx context.Context, notice port.CompletionNotice) error {
			return errors.New("recipient phone number not in allowed list")
		},
	}
	lark := &mockNotifier{channel: "lark"}
	logger := &mockLogger{}
	svc := NewNotificationService(&mockOrderRepo{}, []port.Notifier{whatsapp, lark}, time.Second, logger)

	warnings := svc.NotifyCompletion(context.Background(), samplePayload())

	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
	if !strings.HasPrefix(warnings[0], "whatsapp notification failed") {
		t.Errorf("unexpected warning %q", warnings[0])
	}
	if len(lark.notices) != 1 {
		t.Error("expected remaining channels to be notified")
	}
	if len(logger.errors) != 1 {
		t.Errorf("expected 1 error log, got %d", len(logger.errors))
	}
}

func TestNotificationService_BoundsEachChannel(t *testing.T) {
	slow := &mockNotifier{
		channel: "whatsapp",
		notifyFn: func(ctx context.Context, notice port.CompletionNotice) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	svc := NewNotificationService(&mockOrderRepo{}, []port.Notifier{slow}, 10*time.Millisecond, &mockLogger{})

	warnings := svc.NotifyCompletion(context.Background(), samplePayload())
	if len(warnings) != 1 || !strings.Contains(warnings[0], "deadline exceeded") {
		t.Errorf("expected timeout warning, got %v", warnings)
	}
}

func TestNotificationService_MissingOrder(t *testing.T) {
	orderRepo := &mockOrderRepo{
		getByIDFunc: func(ctx context.Context, id int64) (*entity.ServiceOrder, error) {
			return nil, nil
		},
	}
	notifier := &mockNotifier{channel: "lark"}
	svc := NewNotificationService(orderRepo, []port.Notifier{notifier}, time.Second, &mockLogger{})

	warnings := svc.NotifyCompletion(context.Background(), samplePayload())
	if len(warnings) != 1 {
		t.Errorf("expected 1 warning, got %v", warnings)
	}
	if len(notifier.notices) != 0 {
		t.Error("expected no delivery without an order")
	}
}

func TestNotificationService_NoNotifiers(t *testing.T) {
	svc := NewNotificationService(&mockOrderRepo{}, nil, 0, &mockLogger{})
	if warnings := svc.NotifyCompletion(context.Background(), samplePayload()); warnings != nil {
		t.Errorf("expected nil warnings, got %v", warnings)
	}
}

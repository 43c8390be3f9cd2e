// Package whatsapp sends customer completion notices through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/pkg/utils"
)

// ErrNoRecipient is returned when the order carries no usable client phone
var ErrNoRecipient = errors.New("client has no phone number")

// Config holds Cloud API settings
type Config struct {
	BaseURL        string // defaults to https://graph.facebook.com/v19.0
	PhoneNumberID  string
	AccessToken    string
	DefaultCountry string // prepended to local numbers, e.g. "55"
	RatePerSecond  float64
	Timeout        time.Duration
}

// Notifier implements port.Notifier. Sends are rate limited and guarded by a circuit
// breaker so a failing API is not hammered on every completion.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewNotifier creates a WhatsApp notifier
func NewNotifier(cfg Config, logger *zap.Logger) *Notifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.DefaultCountry == "" {
		cfg.DefaultCountry = "55"
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// recipient problems say nothing about API health
			return err == nil || errors.Is(err, ErrNoRecipient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1),
		breaker:    breaker,
		logger:     logger,
	}
}

// Channel implements port.Notifier
func (n *Notifier) Channel() string {
	return "whatsapp"
}

// NotifyCompletion texts the client that the service order was completed
func (n *Notifier) NotifyCompletion(ctx context.Context, notice port.CompletionNotice) error {
	if notice.Order == nil || notice.Order.ClientPhone == "" {
		return ErrNoRecipient
	}
	to, err := utils.NormalizePhone(notice.Order.ClientPhone, n.cfg.DefaultCountry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoRecipient, err)
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	_, err = n.breaker.Execute(func() (interface{}, error) {
		return nil, n.send(ctx, to, FormatNotice(notice))
	})
	if err != nil {
		return err
	}

	n.logger.Info("WhatsApp completion notice sent",
		zap.Int64("order_id", notice.Payload.ServiceOrderID),
		zap.String("to", maskPhone(to)))
	return nil
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (n *Notifier) send(ctx context.Context, to, body string) error {
	msg := textMessage{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = body

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", n.cfg.BaseURL, n.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.cfg.AccessToken)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("whatsapp API error %d: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("whatsapp API status %d", resp.StatusCode)
	}
	return nil
}

// FormatNotice renders the customer-facing text
func FormatNotice(notice port.CompletionNotice) string {
	var b strings.Builder
	order := notice.Order
	payload := notice.Payload

	name := order.ClientName
	if name == "" {
		name = "customer"
	}
	fmt.Fprintf(&b, "Hello %s, your service order %s has been completed.\n", name, order.Code)
	if order.Equipment != "" {
		fmt.Fprintf(&b, "Equipment: %s\n", order.Equipment)
	}
	fmt.Fprintf(&b, "Total: R$ %.2f\n", payload.TotalAmount)
	if result := payload.FiscalDocumentResult; result != nil {
		fmt.Fprintf(&b, "Service invoice: %s (verification code %s)\n", result.ID, result.VerificationCode)
	}
	b.WriteString("Thank you!")
	return b.String()
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

var _ port.Notifier = (*Notifier)(nil)

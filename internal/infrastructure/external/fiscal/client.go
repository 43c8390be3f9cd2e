// Package fiscal talks to the NFS-e emission gateway.
package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/completion"
	"github.com/garyjia/field-service/internal/domain/entity"
)

// maxErrorBody caps how much of a rejection body is read for the operator message
const maxErrorBody = 4 << 10

// Config holds the emission gateway settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements port.FiscalEmitter over the gateway's JSON API.
// It never retries; the operator decides what happens after a failure.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type emitRequest struct {
	Description string  `json:"description"`
	ServiceCode string  `json:"service_code"`
	Amount      float64 `json:"amount"`
}

type emitResponse struct {
	ID               string    `json:"id"`
	VerificationCode string    `json:"verification_code"`
	IssuedAt         time.Time `json:"issued_at"`
	Status           string    `json:"status"`
}

// Emit issues a service invoice for the draft
func (c *Client) Emit(ctx context.Context, draft completion.FiscalDraft) (*completion.FiscalResult, error) {
	body, err := json.Marshal(emitRequest{
		Description: draft.Description,
		ServiceCode: draft.ServiceCode,
		Amount:      entity.RoundCents(draft.Amount),
	})
	if err != nil {
		return nil, fmt.Errorf("encode emission request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/nfse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build emission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Fiscal gateway unreachable", zap.Error(err))
		return nil, fmt.Errorf("fiscal gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		emissionErr := &port.FiscalEmissionError{
			StatusCode: resp.StatusCode,
			Message:    ExtractMessage(raw),
		}
		c.logger.Error("Fiscal emission rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("message", emissionErr.Message),
			zap.Duration("elapsed", time.Since(start)))
		return nil, emissionErr
	}

	var out emitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode emission response: %w", err)
	}
	if out.ID == "" {
		return nil, &port.FiscalEmissionError{StatusCode: resp.StatusCode, Message: "fiscal gateway returned no document id"}
	}
	if out.Status == "" {
		out.Status = entity.FiscalStatusIssued
	}
	if out.IssuedAt.IsZero() {
		out.IssuedAt = time.Now()
	}

	c.logger.Info("Fiscal document issued",
		zap.String("document_id", out.ID),
		zap.String("status", out.Status),
		zap.Duration("elapsed", time.Since(start)))

	return &completion.FiscalResult{
		ID:               out.ID,
		VerificationCode: out.VerificationCode,
		IssuedAt:         out.IssuedAt,
		Status:           out.Status,
	}, nil
}

// ExtractMessage pulls the operator-facing text out of a rejection body: a JSON
// "message" field, then "error" (string or {"message": ...}), then the trimmed plain
// text. It returns "" when nothing usable is present.
func ExtractMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var structured map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &structured); err == nil {
		for _, key := range []string{"message", "error"} {
			raw, ok := structured[key]
			if !ok {
				continue
			}
			var text string
			if json.Unmarshal(raw, &text) == nil && text != "" {
				return text
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
		return ""
	}

	if trimmed[0] == '<' {
		// html error pages are not operator text
		return ""
	}
	return string(trimmed)
}

var _ port.FiscalEmitter = (*Client)(nil)

package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/field-service/internal/application/port"
)

// messageCreator is the IM message API used by TeamNotifier
type messageCreator interface {
	Create(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error)
}

// TeamNotifier posts completion cards to the team's Lark group chat.
// Implements port.Notifier.
type TeamNotifier struct {
	messages messageCreator
	chatID   string
	logger   *zap.Logger
}

// NewTeamNotifier creates a notifier that posts into chatID
func NewTeamNotifier(client *lark.Client, chatID string, logger *zap.Logger) *TeamNotifier {
	return &TeamNotifier{
		messages: client.Im.Message,
		chatID:   chatID,
		logger:   logger,
	}
}

// Channel implements port.Notifier
func (n *TeamNotifier) Channel() string {
	return "lark"
}

// NotifyCompletion sends an interactive card summarizing the completion
func (n *TeamNotifier) NotifyCompletion(ctx context.Context, notice port.CompletionNotice) error {
	if n.chatID == "" {
		return fmt.Errorf("lark chat id is not configured")
	}

	cardJSON, err := json.Marshal(BuildCompletionCard(notice))
	if err != nil {
		return fmt.Errorf("failed to marshal card content: %w", err)
	}

	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(n.chatID).
			MsgType("interactive").
			Content(string(cardJSON)).
			Build()).
		Build()

	resp, err := n.messages.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send completion card", zap.String("chat_id", n.chatID), zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		n.logger.Error("API returned failure",
			zap.String("chat_id", n.chatID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	n.logger.Info("Completion card sent",
		zap.String("message_id", messageID),
		zap.Int64("order_id", notice.Payload.ServiceOrderID))

	return nil
}

// card is the subset of the Lark message card schema we render
type card struct {
	Config   cardConfig    `json:"config"`
	Header   cardHeader    `json:"header"`
	Elements []cardElement `json:"elements"`
}

type cardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

type cardHeader struct {
	Template string   `json:"template"`
	Title    cardText `json:"title"`
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type cardElement struct {
	Tag  string    `json:"tag"`
	Text *cardText `json:"text,omitempty"`
}

// BuildCompletionCard renders the team-facing summary of a completion
func BuildCompletionCard(notice port.CompletionNotice) interface{} {
	order := notice.Order
	payload := notice.Payload

	var lines []string
	lines = append(lines, fmt.Sprintf("**Client:** %s", order.ClientName))
	if order.Equipment != "" {
		lines = append(lines, fmt.Sprintf("**Equipment:** %s", order.Equipment))
	}
	lines = append(lines,
		fmt.Sprintf("**Total:** R$ %.2f", payload.TotalAmount),
		fmt.Sprintf("**Payment confirmed:** %s", yesNo(payload.PaymentConfirmed)),
		fmt.Sprintf("**Attachments:** %d", len(payload.Attachments)),
	)

	switch {
	case payload.FiscalDocumentResult != nil:
		lines = append(lines, fmt.Sprintf("**Fiscal document:** %s (%s)",
			payload.FiscalDocumentResult.ID, payload.FiscalDocumentResult.VerificationCode))
	case payload.FiscalSkipped:
		lines = append(lines, "**Fiscal document:** skipped after a failed emission")
	case !payload.FiscalDocumentRequested:
		lines = append(lines, "**Fiscal document:** not requested")
	}
	if payload.AdministrativeBypass {
		lines = append(lines, "**Signatures:** administrative bypass")
	}
	lines = append(lines, fmt.Sprintf("**Completed by:** %s at %s",
		payload.CompletedBy, payload.CompletedAt.Format("2006-01-02 15:04")))

	template := "green"
	if payload.FiscalSkipped || payload.AdministrativeBypass {
		template = "orange"
	}

	return card{
		Config: cardConfig{WideScreenMode: true},
		Header: cardHeader{
			Template: template,
			Title:    cardText{Tag: "plain_text", Content: fmt.Sprintf("Service order %s completed", order.Code)},
		},
		Elements: []cardElement{
			{Tag: "div", Text: &cardText{Tag: "lark_md", Content: strings.Join(lines, "\n")}},
		},
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

var _ port.Notifier = (*TeamNotifier)(nil)

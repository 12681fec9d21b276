// Package notify delivers out-of-band alerts to chat sinks.
//
// Two sinks are supported: the Telegram bot API and Lark incoming webhooks.
// A Notifier fans one message out to every configured sink. No sinks
// configured is a silent no-op; delivery failures are logged, never fatal —
// an alert must not take the engine down with it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sink delivers one textual message.
type Sink interface {
	Send(ctx context.Context, text string) error
	Name() string
}

// Notifier fans messages out to all registered sinks.
type Notifier struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewNotifier creates a notifier over the given sinks. Nil sinks are dropped.
func NewNotifier(logger *slog.Logger, sinks ...Sink) *Notifier {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Notifier{sinks: kept, logger: logger.With("component", "notify")}
}

// Notify sends text to every sink. Errors are logged per sink and swallowed.
func (n *Notifier) Notify(ctx context.Context, text string) {
	for _, s := range n.sinks {
		if err := s.Send(ctx, text); err != nil {
			n.logger.Error("notification failed", "sink", s.Name(), "error", err)
		}
	}
}

func newSinkClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
}

// ————————————————————————————————————————————————————————————————————————
// Telegram
// ————————————————————————————————————————————————————————————————————————

// TelegramSink posts messages via the bot API's sendMessage method.
type TelegramSink struct {
	http   *resty.Client
	chatID string
}

// NewTelegramSink returns a nil Sink when token or chat id is empty, so it
// can be passed straight to NewNotifier.
func NewTelegramSink(token, chatID string) Sink {
	if token == "" || chatID == "" {
		return nil
	}
	return &TelegramSink{
		http:   newSinkClient("https://api.telegram.org/bot" + token),
		chatID: chatID,
	}
}

func (t *TelegramSink) Name() string { return "telegram" }

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts one message to the configured chat.
func (t *TelegramSink) Send(ctx context.Context, text string) error {
	var out telegramResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		SetResult(&out).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || !out.OK {
		return fmt.Errorf("telegram send: status %d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Lark
// ————————————————————————————————————————————————————————————————————————

// LarkSink posts messages to a Lark incoming webhook.
type LarkSink struct {
	http *resty.Client
}

// NewLarkSink returns a nil Sink when the webhook URL is empty.
func NewLarkSink(webhookURL string) Sink {
	if webhookURL == "" {
		return nil
	}
	return &LarkSink{http: newSinkClient(webhookURL)}
}

func (l *LarkSink) Name() string { return "lark" }

type larkResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Send posts one text message to the webhook.
func (l *LarkSink) Send(ctx context.Context, text string) error {
	var out larkResponse
	resp, err := l.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"msg_type": "text",
			"content":  map[string]string{"text": text},
		}).
		SetResult(&out).
		Post("")
	if err != nil {
		return fmt.Errorf("lark send: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || out.Code != 0 {
		return fmt.Errorf("lark send: status %d code %d: %s", resp.StatusCode(), out.Code, out.Msg)
	}
	return nil
}

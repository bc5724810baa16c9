// Package notify delivers order lifecycle events out-of-band. Delivery is
// best-effort: callers log failures and move on, a lost message never fails
// or rolls back the operation that produced it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-courier/internal/model"
)

type Notifier interface {
	OrderEvent(ctx context.Context, chatID int64, orderNumber string, status model.Status, notes string) error
}

// Telegram sends order events as chat messages. Sends are bounded by the
// underlying HTTP client timeout.
type Telegram struct {
	api *tgbotapi.BotAPI
	log *slog.Logger
}

func NewTelegram(token string, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint,
		&http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	log.Info("telegram notifier ready", "bot", api.Self.UserName)
	return &Telegram{api: api, log: log}, nil
}

func (t *Telegram) OrderEvent(ctx context.Context, chatID int64, orderNumber string, status model.Status, notes string) error {
	if chatID == 0 {
		return nil // account has no linked chat
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	text := fmt.Sprintf("Order %s: %s", orderNumber, status)
	if notes != "" {
		text += "\n" + notes
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

// Nop is used when no messaging channel is configured.
type Nop struct{}

func (Nop) OrderEvent(context.Context, int64, string, model.Status, string) error {
	return nil
}

// Package notify pushes high-severity alerts to operators.
package notify

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"store-sentinel/internal/models"
)

// Telegram forwards critical alerts to a chat. Lower severities are dropped
// silently. Messages are rate limited so an alert storm cannot hit the
// Telegram API limits.
type Telegram struct {
	bot     *bot.Bot
	chatID  int64
	limiter *rate.Limiter
	ctx     context.Context
	logger  *logrus.Logger
}

func NewTelegram(ctx context.Context, token string, chatID int64, logger *logrus.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("missing telegram chat id")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return &Telegram{
		bot:     b,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		ctx:     ctx,
		logger:  logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Emit(ev models.AlertEvent) error {
	if ev.Severity != models.SeverityCritical {
		return nil
	}
	if err := t.limiter.Wait(t.ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}

	text := fmt.Sprintf("*%s*\nStation: %s\nSeverity: %s\nEvent ID: %s",
		ev.EventName, ev.StationID, ev.Severity, ev.EventID)
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text += fmt.Sprintf("\n%s: %v", k, ev.Data[k])
	}

	params := &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "Markdown",
	}
	if _, err := t.bot.SendMessage(t.ctx, params); err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
	}
	return nil
}

func (t *Telegram) Close() error { return nil }

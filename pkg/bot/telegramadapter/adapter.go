package telegramadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"jobybot/pkg/bot"
	"jobybot/pkg/ports/botport"
)

// Package telegramadapter implements botport.BotPort on top of the Telegram client.

type telegramClient interface {
	SendMessage(chatID int64, text string, markup interface{}) (tgbotapi.Message, error)
}

// Adapter wraps a Telegram client and satisfies botport.BotPort.
type Adapter struct {
	client telegramClient
	logger *zap.Logger
}

var _ telegramClient = (*bot.Client)(nil)
var _ botport.BotPort = (*Adapter)(nil)

// New constructs a Telegram adapter with the provided bot client and logger.
func New(client telegramClient, logger *zap.Logger) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("telegramadapter: client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		client: client,
		logger: logger,
	}, nil
}

// SendMessage dispatches a new Telegram message and returns a botport.BotMessage record.
func (a *Adapter) SendMessage(ctx context.Context, chatID int64, text string, keyboard *botport.Keyboard) (botport.BotMessage, error) {
	if err := ctx.Err(); err != nil {
		return botport.BotMessage{}, wrapContextError("send_message", err)
	}
	markup := toReplyMarkup(keyboard)
	msg, err := a.client.SendMessage(chatID, text, markup)
	if err != nil {
		return botport.BotMessage{}, a.wrapAndLogError("send_message", chatID, err)
	}
	bm := toBotMessage(msg, markup)
	a.logger.Debug("botport op", zap.String("op", "send_message"), zap.Int64("chat_id", bm.ChatID), zap.Int("message_id", bm.MessageID))
	return bm, nil
}

func (a *Adapter) wrapAndLogError(op string, chatID int64, err error) error {
	wrapped := wrapTelegramError(op, err)
	a.logger.Warn("botport op failed",
		zap.String("op", op),
		zap.Int64("chat_id", chatID),
		zap.String("code", getBotErrorCode(wrapped)),
		zap.Error(err),
	)
	return wrapped
}

// toReplyMarkup renders a keyboard as Telegram reply markup. A nil keyboard sends no markup.
func toReplyMarkup(kb *botport.Keyboard) interface{} {
	if kb == nil {
		return nil
	}
	if kb.Remove || len(kb.Rows) == 0 {
		return tgbotapi.NewRemoveKeyboard(false)
	}

	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		row := make([]tgbotapi.KeyboardButton, 0, len(r))
		for _, b := range r {
			if b.RequestContact {
				row = append(row, tgbotapi.NewKeyboardButtonContact(b.Text))
			} else {
				row = append(row, tgbotapi.NewKeyboardButton(b.Text))
			}
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(row...))
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.InputFieldPlaceholder = kb.Placeholder
	return markup
}

func toBotMessage(msg tgbotapi.Message, markup interface{}) botport.BotMessage {
	payload := msg.Text
	if payload == "" {
		payload = msg.Caption
	}
	return botport.BotMessage{
		ChatID:    chatIDFromMessage(msg),
		MessageID: msg.MessageID,
		Transport: "telegram",
		Payload:   payload,
		Meta:      metaFromMarkup(markup),
	}
}

func metaFromMarkup(markup interface{}) map[string]string {
	if markup == nil {
		return nil
	}
	meta := map[string]string{
		"markup_type": fmt.Sprintf("%T", markup),
	}
	if raw, err := json.Marshal(markup); err == nil {
		meta["raw_markup"] = string(raw)
	}
	return meta
}

func chatIDFromMessage(msg tgbotapi.Message) int64 {
	if msg.Chat != nil {
		return msg.Chat.ID
	}
	return 0
}

func wrapContextError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return &botport.BotError{Op: op, Code: "context_canceled", Wrapped: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &botport.BotError{Op: op, Code: "context_deadline", Wrapped: err}
	}
	return &botport.BotError{Op: op, Code: "context_error", Wrapped: err}
}

func wrapTelegramError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapContextError(op, err)
	}
	code, retry := classifyTelegramError(err)
	return &botport.BotError{
		Op:         op,
		Code:       code,
		RetryAfter: retry,
		Wrapped:    err,
	}
}

var retryAfterRegex = regexp.MustCompile(`(?i)retry after (\d+)`)

func classifyTelegramError(err error) (string, time.Duration) {
	if err == nil {
		return "unknown", 0
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too many requests"):
		retry := time.Duration(bot.RetryAfter(err)) * time.Second
		if retry == 0 {
			retry = extractRetryAfter(msg)
		}
		return "rate_limited", retry
	case strings.Contains(msg, "bad request"):
		return "bad_request", 0
	case strings.Contains(msg, "forbidden"):
		return "forbidden", 0
	default:
		return "unknown", 0
	}
}

func extractRetryAfter(msg string) time.Duration {
	matches := retryAfterRegex.FindStringSubmatch(msg)
	if len(matches) != 2 {
		return 0
	}
	seconds, err := time.ParseDuration(matches[1] + "s")
	if err != nil {
		return 0
	}
	return seconds
}

func getBotErrorCode(err error) string {
	var be *botport.BotError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

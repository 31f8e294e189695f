package bot

import (
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Client struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
	Self   *tgbotapi.User
}

func NewClient(token string, logger *zap.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api instance: %w", err)
	}

	api.Debug = false

	logger.Info("Verifying API token...")
	me, err := api.GetMe()
	if err != nil {
		return nil, fmt.Errorf("failed to verify bot token with GetMe(): %w", err)
	}
	logger.Info("Token verified successfully", zap.String("bot", me.UserName))

	return &Client{
		api:    api,
		logger: logger,
		Self:   &me,
	}, nil
}

func (c *Client) SendMessage(chatID int64, text string, markup interface{}) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)

	msg.ParseMode = ""

	if markup != nil {
		msg.ReplyMarkup = markup
	}

	sentMsg, err := c.api.Send(msg)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("failed to send message: %w", err)
	}
	return sentMsg, nil
}

// SetWebhook registers url as the update endpoint of the bot.
func (c *Client) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if _, err := c.api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	info, err := c.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("failed to read webhook info: %w", err)
	}
	if info.LastErrorDate != 0 {
		c.logger.Warn("Telegram reports webhook delivery errors", zap.String("error", info.LastErrorMessage))
	}
	c.logger.Info("Webhook set", zap.Int("pending_updates", info.PendingUpdateCount))
	return nil
}

// DeleteWebhook unregisters the webhook so updates can be polled again.
func (c *Client) DeleteWebhook(dropPending bool) error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	c.logger.Info("Webhook deleted")
	return nil
}

// GetUpdatesChan starts long polling. StopReceivingUpdates closes the channel.
func (c *Client) GetUpdatesChan(timeout int) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout

	return c.api.GetUpdatesChan(u)
}

func (c *Client) StopReceivingUpdates() {
	c.api.StopReceivingUpdates()
}

// RetryAfter extracts the flood-control delay Telegram attached to err, in seconds.
func RetryAfter(err error) int {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

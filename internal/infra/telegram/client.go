package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

type Client struct {
	api     *tgbotapi.BotAPI
	logger  *slog.Logger
	limiter *rate.Limiter
	updates <-chan tgbotapi.Update
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewClient(token string, logger *slog.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	// Telegram allows ~30 messages per second bot-wide.
	limiter := rate.NewLimiter(30, 1)

	return &Client{
		api:     bot,
		logger:  logger,
		limiter: limiter,
	}, nil
}

// Start begins long polling for updates.
func (c *Client) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	c.updates = c.api.GetUpdatesChan(u)

	c.logger.Info("telegram bot started", "username", c.api.Self.UserName)
	return nil
}

func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.api.StopReceivingUpdates()
	c.logger.Info("telegram bot stopped")
}

func (c *Client) GetUpdates() <-chan tgbotapi.Update {
	return c.updates
}

func (c *Client) GetBotAPI() *tgbotapi.BotAPI {
	return c.api
}

// SendMessage sends a plain text message with rate limiting.
func (c *Client) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := c.Send(msg)
	return err
}

// SendKeyboard sends a message with an inline keyboard.
func (c *Client) SendKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	_, err := c.Send(msg)
	return err
}

// SendStarsInvoice sends a Telegram Stars invoice (currency XTR, no provider
// token). The payload carries the local payment id for the successful_payment
// handler.
func (c *Client) SendStarsInvoice(chatID int64, title, description, payload string, stars int64) error {
	invoice := tgbotapi.NewInvoice(
		chatID,
		title,
		description,
		payload,
		"", // provider token is empty for Stars
		"",
		"XTR",
		[]tgbotapi.LabeledPrice{{Label: title, Amount: int(stars)}},
	)
	invoice.SuggestedTipAmounts = []int{}

	if _, err := c.Send(invoice); err != nil {
		return fmt.Errorf("send stars invoice: %w", err)
	}
	return nil
}

// AnswerPreCheckoutQuery must be answered within Telegram's window (10s).
func (c *Client) AnswerPreCheckoutQuery(queryID string, ok bool, errorMessage string) error {
	cfg := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: queryID,
		OK:                 ok,
		ErrorMessage:       errorMessage,
	}
	if _, err := c.Request(cfg); err != nil {
		return fmt.Errorf("answer pre_checkout_query: %w", err)
	}
	return nil
}

// Send sends any chattable with rate limiting.
func (c *Client) Send(chattable tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := c.wait(); err != nil {
		return tgbotapi.Message{}, err
	}

	message, err := c.api.Send(chattable)
	if err != nil {
		c.logger.Error("telegram send failed", slog.Any("error", err))
		return tgbotapi.Message{}, fmt.Errorf("telegram send: %w", err)
	}

	return message, nil
}

// Request performs a raw API request with rate limiting.
func (c *Client) Request(chattable tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if err := c.wait(); err != nil {
		return nil, err
	}

	resp, err := c.api.Request(chattable)
	if err != nil {
		c.logger.Error("telegram request failed", slog.Any("error", err))
		return nil, fmt.Errorf("telegram request: %w", err)
	}

	return resp, nil
}

func (c *Client) wait() error {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiting: %w", err)
	}
	return nil
}

package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"remna-shop/internal/gateways"
	"remna-shop/internal/stories/cart"
	"remna-shop/internal/stories/checkout"
	"remna-shop/internal/stories/payment"
	"remna-shop/internal/stories/topup"
	"remna-shop/internal/stories/users"
	"remna-shop/internal/telegram/messages"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type userService interface {
	GetOrCreateByTelegramID(ctx context.Context, telegramID int64, referrerID *int64) (*users.User, error)
	ResolveReferrer(ctx context.Context, referrerTelegramID, newUserTelegramID int64) (*int64, error)
}

type topupService interface {
	CreateTopup(ctx context.Context, userID, chatID int64, provider string, amount int64, currency, description string) (*topup.Handle, error)
	Confirm(ctx context.Context, p *payment.Payment, externalID string, amount int64) (topup.Result, error)
	CheckStatus(ctx context.Context, p *payment.Payment) error
}

type paymentStore interface {
	GetPayment(ctx context.Context, criteria payment.GetCriteria) (*payment.Payment, error)
}

type gatewayRegistry interface {
	Enabled() []gateways.Adapter
}

// starsConverter re-derives the rouble amount from the paid star count, the
// only amount source trusted for in-app payments.
type starsConverter interface {
	AmountForStars(stars int64) int64
}

type cartStore interface {
	Get(ctx context.Context, userID int64) (*cart.Cart, error)
	Delete(ctx context.Context, userID int64) error
}

type checkoutService interface {
	PurchaseFromCart(ctx context.Context, user *users.User, c *cart.Cart) error
}

// botClient is the slice of the bot client the router needs.
type botClient interface {
	SendMessage(chatID int64, text string) error
	SendKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error
	Request(chattable tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	AnswerPreCheckoutQuery(queryID string, ok bool, errorMessage string) error
}

type Router struct {
	client       botClient
	userService  userService
	topupService topupService
	payments     paymentStore
	registry     gatewayRegistry
	stars        starsConverter
	carts        cartStore
	checkout     checkoutService
	adminChecker *AdminChecker
	logger       *slog.Logger
}

func NewRouter(
	client botClient,
	userSvc userService,
	topupSvc topupService,
	payments paymentStore,
	registry gatewayRegistry,
	stars starsConverter,
	carts cartStore,
	checkout checkoutService,
	adminChecker *AdminChecker,
	logger *slog.Logger,
) *Router {
	return &Router{
		client:       client,
		userService:  userSvc,
		topupService: topupSvc,
		payments:     payments,
		registry:     registry,
		stars:        stars,
		carts:        carts,
		checkout:     checkout,
		adminChecker: adminChecker,
		logger:       logger,
	}
}

// SetupBotCommands регистрирует команды в меню бота
func (r *Router) SetupBotCommands() error {
	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Главное меню"},
		tgbotapi.BotCommand{Command: "balance", Description: "Баланс"},
		tgbotapi.BotCommand{Command: "topup", Description: "Пополнить баланс"},
	)
	_, err := r.client.Request(commands)
	return err
}

func (r *Router) Route(update *tgbotapi.Update) error {
	ctx := context.Background()

	// pre_checkout_query приходит без message, обрабатываем первым: у
	// Telegram жесткий таймаут на ответ
	if update.PreCheckoutQuery != nil {
		return r.handlePreCheckout(update.PreCheckoutQuery)
	}

	telegramID := extractUserID(update)
	if telegramID == 0 {
		return nil // Некорректный update
	}

	user, err := r.getOrCreateUser(ctx, update, telegramID)
	if err != nil {
		_ = r.client.SendMessage(extractChatID(update), messages.Error)
		return err
	}

	if update.Message != nil && update.Message.SuccessfulPayment != nil {
		return r.handleSuccessfulPayment(ctx, update.Message)
	}

	if update.Message != nil && update.Message.IsCommand() {
		return r.handleCommand(ctx, update, user)
	}

	if update.CallbackQuery != nil {
		return r.handleCallback(ctx, update, user)
	}

	return r.sendMainMenu(extractChatID(update), user)
}

func (r *Router) getOrCreateUser(ctx context.Context, update *tgbotapi.Update, telegramID int64) (*users.User, error) {
	var referrerID *int64
	if update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "start" {
		if refTgID := parseReferralPayload(update.Message.CommandArguments()); refTgID != 0 {
			var err error
			referrerID, err = r.userService.ResolveReferrer(ctx, refTgID, telegramID)
			if err != nil {
				r.logger.Warn("failed to resolve referrer", "telegram_id", telegramID, "error", err)
			}
		}
	}
	return r.userService.GetOrCreateByTelegramID(ctx, telegramID, referrerID)
}

func (r *Router) handleCommand(ctx context.Context, update *tgbotapi.Update, user *users.User) error {
	chatID := update.Message.Chat.ID

	switch update.Message.Command() {
	case "start":
		return r.sendMainMenu(chatID, user)
	case "balance":
		return r.client.SendMessage(chatID, messages.Balance(user.Balance))
	case "topup":
		return r.sendProviderKeyboard(chatID)
	default:
		return r.sendMainMenu(chatID, user)
	}
}

func (r *Router) handleCallback(ctx context.Context, update *tgbotapi.Update, user *users.User) error {
	data := update.CallbackQuery.Data
	chatID := extractChatID(update)

	// Снимаем "часики" на кнопке
	callback := tgbotapi.NewCallback(update.CallbackQuery.ID, "")
	_, _ = r.client.Request(callback)

	switch {
	case data == "cancel" || data == "main_menu":
		return r.sendMainMenu(chatID, user)
	case data == "balance":
		return r.client.SendMessage(chatID, messages.Balance(user.Balance))
	case data == "topup":
		return r.sendProviderKeyboard(chatID)
	case strings.HasPrefix(data, "tpv_"):
		return r.sendAmountKeyboard(chatID, strings.TrimPrefix(data, "tpv_"))
	case strings.HasPrefix(data, "tpa_"):
		return r.startTopup(ctx, user, chatID, strings.TrimPrefix(data, "tpa_"))
	case strings.HasPrefix(data, "pay_check_"):
		return r.checkPayment(ctx, chatID, strings.TrimPrefix(data, "pay_check_"))
	case data == "cart_resume":
		return r.resumeCart(ctx, user, chatID)
	case data == "cart_drop":
		return r.dropCart(ctx, user, chatID)
	}

	return nil
}

// resumeCart завершает отложенную покупку с баланса по кнопке из
// напоминания после пополнения.
func (r *Router) resumeCart(ctx context.Context, user *users.User, chatID int64) error {
	c, err := r.carts.Get(ctx, user.ID)
	if err != nil {
		r.logger.Error("failed to load cart", "user_id", user.ID, "error", err)
		return r.client.SendMessage(chatID, messages.Error)
	}
	if c == nil {
		return r.client.SendMessage(chatID, messages.CartExpired)
	}

	if err := r.checkout.PurchaseFromCart(ctx, user, c); err != nil {
		if errors.Is(err, checkout.ErrInsufficientBalance) {
			return r.client.SendMessage(chatID, messages.CartNotEnough)
		}
		r.logger.Error("cart purchase failed", "user_id", user.ID, "plan_id", c.PlanID, "error", err)
		return r.client.SendMessage(chatID, messages.CartResumeFailed)
	}

	if err := r.carts.Delete(ctx, user.ID); err != nil {
		r.logger.Error("failed to clear cart after purchase", "user_id", user.ID, "error", err)
	}
	return r.client.SendMessage(chatID, messages.CartPurchased)
}

func (r *Router) dropCart(ctx context.Context, user *users.User, chatID int64) error {
	if err := r.carts.Delete(ctx, user.ID); err != nil {
		r.logger.Error("failed to drop cart", "user_id", user.ID, "error", err)
		return r.client.SendMessage(chatID, messages.Error)
	}
	return r.client.SendMessage(chatID, messages.CartDropped)
}

func (r *Router) checkPayment(ctx context.Context, chatID int64, rawID string) error {
	paymentID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil
	}
	p, err := r.payments.GetPayment(ctx, payment.GetCriteria{ID: &paymentID})
	if err != nil || p == nil {
		return r.client.SendMessage(chatID, messages.Error)
	}
	if p.Paid {
		return nil // уведомление уже отправлено пайплайном эффектов
	}
	if err := r.topupService.CheckStatus(ctx, p); err != nil {
		r.logger.Error("manual payment check failed", "payment_id", p.ID, "error", err)
		return r.client.SendMessage(chatID, messages.Error)
	}
	return nil
}

func (r *Router) sendMainMenu(chatID int64, user *users.User) error {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(messages.ButtonBalance, "balance"),
			tgbotapi.NewInlineKeyboardButtonData(messages.ButtonTopup, "topup"),
		),
	)
	return r.client.SendKeyboard(chatID, messages.Welcome, keyboard)
}

// parseReferralPayload extracts the referrer's telegram id from a /start
// deep link payload like "ref123456".
func parseReferralPayload(args string) int64 {
	args = strings.TrimSpace(args)
	if !strings.HasPrefix(args, "ref") {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "ref"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func extractUserID(update *tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	case update.PreCheckoutQuery != nil && update.PreCheckoutQuery.From != nil:
		return update.PreCheckoutQuery.From.ID
	}
	return 0
}

func extractChatID(update *tgbotapi.Update) int64 {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID
	}
	return 0
}

package messages

import "fmt"

// Общие
const (
	Error    = "❌ Ошибка. Пожалуйста, попробуйте позже."
	Cancel   = "Отменено"
	MainMenu = "Главное меню"
)

// Кнопки
const (
	ButtonTopup       = "💳 Пополнить баланс"
	ButtonBalance     = "💰 Баланс"
	ButtonMainMenu    = "🏠 Главное меню"
	ButtonCancel      = "❌ Отменить"
	ButtonPay         = "💳 Перейти к оплате"
	ButtonResumeCart  = "🛒 Завершить покупку"
	ButtonCheckStatus = "🔄 Проверить оплату"
)

// Приветствие
const (
	Welcome = `👋 Добро пожаловать!

Пополняйте баланс и оплачивайте подписку прямо в боте.`
)

// Пополнение
const (
	TopupChooseProvider = "Выберите способ оплаты:"
	TopupChooseAmount   = "Выберите сумму пополнения:"
	TopupProviderOff    = "❌ Этот способ оплаты сейчас недоступен"
	TopupAmountInvalid  = "❌ Недопустимая сумма. Попробуйте другую."
	TopupCreateFailed   = "❌ Не удалось создать платеж. Попробуйте позже."
	TopupDescription    = "Пополнение баланса"
)

// Названия способов оплаты
var ProviderTitles = map[string]string{
	"stars":         "⭐ Telegram Stars",
	"yookassa":      "💳 ЮKassa",
	"cryptobot":     "🪙 CryptoBot",
	"tribute":       "💙 Tribute",
	"mulenpay":      "💳 MulenPay",
	"pal24":         "💳 Pal24",
	"platega":       "💳 Platega",
	"wata":          "💳 Wata",
	"cloudpayments": "💳 CloudPayments",
}

func Balance(balance int64) string {
	return fmt.Sprintf("💰 Ваш баланс: %s ₽", FormatAmount(balance))
}

func TopupLink(amount int64, url string) string {
	return fmt.Sprintf("Счет на %s ₽ создан.\n\nОплатите по ссылке: %s", FormatAmount(amount), url)
}

func TopupCredited(amount, newBalance int64) string {
	return fmt.Sprintf("✅ Баланс пополнен на %s ₽.\n\n💰 Текущий баланс: %s ₽",
		FormatAmount(amount), FormatAmount(newBalance))
}

func AdminTopup(telegramID, amount int64, provider string) string {
	return fmt.Sprintf("💰 Пополнение: %s ₽\nПользователь: %d\nСпособ: %s",
		FormatAmount(amount), telegramID, provider)
}

func ResumeCheckout(price int64) string {
	return fmt.Sprintf("🛒 У вас есть незавершенная покупка на %s ₽. Завершить?", FormatAmount(price))
}

// Корзина
const (
	CartExpired      = "🛒 Корзина не найдена или устарела."
	CartDropped      = "Корзина очищена."
	CartPurchased    = "✅ Покупка завершена!"
	CartNotEnough    = "❌ Недостаточно средств. Пополните баланс и попробуйте снова."
	CartResumeFailed = "❌ Не удалось завершить покупку. Попробуйте позже."
)

// FormatAmount renders minor units as a decimal rouble amount, dropping the
// kopeck part when it is zero.
func FormatAmount(minor int64) string {
	if minor%100 == 0 {
		return fmt.Sprintf("%d", minor/100)
	}
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

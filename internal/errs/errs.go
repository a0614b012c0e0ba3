// Package errs определяет сентинельные ошибки контроллера доступа.
//
// Каждая ошибка соответствует одной категории таксономии сервиса:
// валидация входа, аутентификация, запрет по предусловию, отсутствие
// сущности, конфликт состояния и отказ внешней зависимости. Обработчики
// HTTP сопоставляют их со статус-кодами через errors.Is, не полагаясь
// на текст. Тексты — готовые сообщения для клиента, без внутренних
// идентификаторов.
package errs

import "errors"

var (
	// ErrInvalidPlatform платформа не входит в закрытый список продуктов.
	ErrInvalidPlatform = errors.New("unknown platform")

	// ErrEmailNotVerified активация триала требует подтвержденного email.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrPhoneNotVerified активация триала требует подтвержденного телефона.
	ErrPhoneNotVerified = errors.New("phone not verified")

	// ErrTrialAlreadyActive триал для этой платформы уже запущен.
	ErrTrialAlreadyActive = errors.New("trial already active")

	// ErrTrialAlreadyUsed триал для этой платформы уже был использован,
	// повторная активация запрещена навсегда.
	ErrTrialAlreadyUsed = errors.New("trial already used")

	// ErrAccessDenied доступ к платформе сейчас закрыт.
	ErrAccessDenied = errors.New("access denied")

	// ErrUserNotFound пользователь не найден.
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyBetaTester у пользователя уже есть действующий бета-доступ.
	ErrAlreadyBetaTester = errors.New("user is already a beta tester")

	// ErrInvalidBetaDays срок бета-доступа вне диапазона 1–365 дней.
	ErrInvalidBetaDays = errors.New("beta days must be between 1 and 365")

	// ErrBillingUnavailable биллинговый провайдер недоступен или вернул ошибку.
	ErrBillingUnavailable = errors.New("billing provider unavailable")

	// ErrReferralExhausted не удалось подобрать уникальный реферальный код
	// за отведенное число попыток.
	ErrReferralExhausted = errors.New("could not generate unique referral code")
)

package models

import "time"

// TrialStatus состояние пробного периода для пары (пользователь, платформа).
//
// Переходы: none -> active при активации, active -> expired по истечении
// окна, active -> converted при обнаружении оплаченной подписки.
// Обратных переходов нет; после выхода из none повторная активация
// запрещена навсегда.
type TrialStatus string

const (
	TrialNone      TrialStatus = "none"
	TrialActive    TrialStatus = "active"
	TrialExpired   TrialStatus = "expired"
	TrialConverted TrialStatus = "converted"
)

// AccessType режим доступа, вычисляемый на чтении. Не хранится в базе.
// При одновременном выполнении нескольких условий действует приоритет
// paid > beta > trialing > none.
type AccessType string

const (
	AccessPaid     AccessType = "paid"
	AccessBeta     AccessType = "beta"
	AccessTrialing AccessType = "trialing"
	AccessNone     AccessType = "none"
)

// PlatformAccess запись доступа пользователя к конкретной платформе.
// Создается с TrialStatus = none и UsageCount = 0, физически не удаляется.
type PlatformAccess struct {
	UserUID        string
	Platform       Platform
	TrialStatus    TrialStatus
	TrialStartDate *time.Time // Начало пробного окна, nil пока триал не активирован
	TrialEndDate   *time.Time // Конец пробного окна (начало + 14 дней)
	UsageCount     int        // Счетчик учтенных действий, только растет
	UsageLimit     int        // Лимит действий на время триала, задается конфигурацией платформы
	UpdatedAt      time.Time
}

// AccessStatus результат определения доступа.
type AccessStatus struct {
	CanAccess          bool       `json:"can_access"`
	AccessType         AccessType `json:"access_type"`
	TrialDaysRemaining *int       `json:"trial_days_remaining,omitempty"`
	UsageCount         int        `json:"usage_count"`
	UsageLimit         int        `json:"usage_limit"`
	Message            string     `json:"message"`
}

// TrialWindow параметры активированного пробного периода.
type TrialWindow struct {
	Platform      Platform  `json:"platform"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	DaysRemaining int       `json:"days_remaining"`
	UsageLimit    int       `json:"usage_limit"`
}

// UsageStats результат учета действия: новые значения счетчиков
// и режим доступа после инкремента.
type UsageStats struct {
	Platform           Platform   `json:"platform"`
	Action             string     `json:"action"`
	UsageCount         int        `json:"usage_count"`
	UsageLimit         int        `json:"usage_limit"`
	UsageRemaining     int        `json:"usage_remaining"`
	TrialDaysRemaining *int       `json:"trial_days_remaining,omitempty"`
	AccessType         AccessType `json:"access_type"`
}

// UsageEvent запись журнала действий. Журнал только дополняется.
type UsageEvent struct {
	UserUID   string
	Platform  Platform
	Action    string
	Metadata  map[string]any
	CreatedAt time.Time
}

// BetaGrant результат выдачи бета-доступа.
type BetaGrant struct {
	Email         string    `json:"email"`
	BetaDays      int       `json:"beta_days"`
	BetaExpiresAt time.Time `json:"beta_expires_at"`
	DaysRemaining int       `json:"days_remaining"`
}

// ReferralCode результат выпуска или чтения реферального кода.
type ReferralCode struct {
	Code  string `json:"referral_code"`
	IsNew bool   `json:"is_new"`
}

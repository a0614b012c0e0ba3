package models

import "time"

// User представляет зарегистрированного пользователя.
//
// Флаги подтверждения email и телефона принадлежат подсистеме
// аутентификации и читаются контроллером доступа как предусловия
// активации триала. Бета-доступ выдается на аккаунт целиком и
// действует на всех платформах.
type User struct {
	UID               string     // Уникальный идентификатор пользователя
	Email             string     // Электронная почта (уникальная)
	Username          string     // Имя пользователя (уникальное)
	PasswordHash      string     // bcrypt-хэш пароля
	Role              string     // Роль: admin или user
	EmailVerified     bool       // Подтвержден ли email
	PhoneVerified     bool       // Подтвержден ли телефон
	BetaAccessExpires *time.Time // Срок действия бета-доступа, nil если не выдавался
	ReferralCode      *string    // Реферальный код, nil пока не выпущен
	CreatedAt         time.Time
}

// IsAdmin сообщает, есть ли у пользователя административная роль.
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// HasActiveBeta сообщает, действует ли бета-доступ на момент now.
func (u *User) HasActiveBeta(now time.Time) bool {
	return u.BetaAccessExpires != nil && u.BetaAccessExpires.After(now)
}

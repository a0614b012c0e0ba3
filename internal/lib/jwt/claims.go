// Package jwt реализует выпуск и проверку JWT токенов доступа.
//
// В claims токена кроме стандартных полей хранится имя пользователя,
// его uid и роль — роль admin открывает административные операции
// (выдача бета-доступа).
package jwt

import (
	"time"
)

// Maker описывает интерфейс выпуска и разбора JWT токенов.
type Maker interface {
	// GenerateToken создает токен для пользователя с указанной ролью.
	GenerateToken(username, role, userUID string) (string, error)
	// ParseToken проверяет подпись токена и возвращает его claims.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует Maker на симметричном секретном ключе.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewJWTMaker создает MakerImpl с секретным ключом и временем жизни токена.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}

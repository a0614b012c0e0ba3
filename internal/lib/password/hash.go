// Package password отвечает за безопасное хранение паролей пользователей.
//
// GetHash формирует bcrypt-хэш для записи в базу данных,
// CompareHash проверяет введённый пароль против сохранённого хэша.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GetHash возвращает bcrypt-хэш пароля.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// CompareHash сравнивает сохранённый хэш с введённым паролем.
// Возвращает nil при совпадении.
func CompareHash(originalHash, rawPassword string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(rawPassword)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

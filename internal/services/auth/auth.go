// Package auth содержит бизнес-логику регистрации, входа и проверки токенов.
package auth

import (
	"context"
	"errors"

	"github.com/medguard/platform-access/internal/lib/jwt"
	"github.com/medguard/platform-access/internal/lib/password"
	"github.com/medguard/platform-access/internal/models"
)

// UserRepository описывает контракт работы с пользователями в базе данных.
type UserRepository interface {
	// RegisterUser сохраняет нового пользователя и возвращает его UID.
	RegisterUser(ctx context.Context, user models.User) (string, error)
	// GetUserByUsername возвращает пользователя по имени.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// MarkContactVerified проставляет флаг подтверждения email или телефона.
	MarkContactVerified(ctx context.Context, userUID, channel string) error
}

// Service отвечает за регистрацию, вход и валидацию JWT.
type Service struct {
	users    UserRepository
	jwtMaker jwt.Maker
}

// NewService создает Service.
func NewService(users UserRepository, jwtMaker jwt.Maker) *Service {
	return &Service{
		users:    users,
		jwtMaker: jwtMaker,
	}
}

// Register создает пользователя с bcrypt-хэшем пароля и ролью user.
// Контакты при регистрации не подтверждены; флаги проставляются,
// когда внешний поток верификации завершится.
func (s *Service) Register(ctx context.Context, email, username, rawPassword string) (string, error) {
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return "", err
	}
	user := models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hashed,
		Role:         "user",
	}
	return s.users.RegisterUser(ctx, user)
}

// Login проверяет пароль и выпускает JWT с ролью и uid пользователя.
func (s *Service) Login(ctx context.Context, username, rawPassword string) (token, role string, err error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", "", err
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", "", errors.New("invalid credentials")
	}
	token, err = s.jwtMaker.GenerateToken(user.Username, user.Role, user.UID)
	if err != nil {
		return "", "", err
	}
	return token, user.Role, nil
}

// ConfirmContact фиксирует успешное подтверждение контакта.
// Сам код подтверждения проверяет внешний сервис верификации,
// сюда приходит только факт завершения.
func (s *Service) ConfirmContact(ctx context.Context, userUID, channel string) error {
	return s.users.MarkContactVerified(ctx, userUID, channel)
}

// ValidateToken проверяет JWT и возвращает данные пользователя из claims.
func (s *Service) ValidateToken(_ context.Context, token string) (*jwt.CustomClaims, error) {
	return s.jwtMaker.ParseToken(token)
}

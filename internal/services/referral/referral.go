// Package referral реализует выпуск реферальных кодов.
//
// Код выпускается один раз и дальше возвращается без изменений.
// Кандидат собирается из первых букв имени пользователя и четырех
// случайных байт; уникальность обеспечивает индекс в базе, коллизии
// разрешаются повторными попытками с жестким потолком.
package referral

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/medguard/platform-access/internal/errs"
	"github.com/medguard/platform-access/internal/models"
)

// maxAttempts потолок попыток подбора уникального кода. При 32 битах
// случайности сюда практически невозможно упереться, но бесконечного
// цикла быть не должно.
const maxAttempts = 10

// Repository определяет методы хранилища для работы с реферальными кодами.
type Repository interface {
	// GetUser возвращает пользователя по UID.
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	// TrySetReferralCode закрепляет код за пользователем;
	// false — код занят или у пользователя уже есть код.
	TrySetReferralCode(ctx context.Context, userUID, code string) (bool, error)
}

// Service реализует выпуск реферальных кодов.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// NewService создает Service.
func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// GetOrCreateCode возвращает реферальный код пользователя, выпуская его
// при первом обращении. Повторные вызовы идемпотентны: возвращается тот
// же код с is_new = false.
func (s *Service) GetOrCreateCode(ctx context.Context, userUID string) (*models.ReferralCode, error) {
	const op = "services.referral.GetOrCreateCode"

	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.ReferralCode != nil {
		return &models.ReferralCode{Code: *user.ReferralCode, IsNew: false}, nil
	}

	prefix := codePrefix(user.Username)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		candidate, err := appendRandomSuffix(prefix)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		applied, err := s.repo.TrySetReferralCode(ctx, userUID, candidate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if applied {
			s.log.Info("referral code issued",
				slog.String("user_uid", userUID), slog.Int("attempt", attempt))
			return &models.ReferralCode{Code: candidate, IsNew: true}, nil
		}

		// Либо коллизия кода, либо конкурентный запрос успел выпустить
		// код этому же пользователю — перечитываем и различаем.
		user, err = s.repo.GetUser(ctx, userUID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if user.ReferralCode != nil {
			return &models.ReferralCode{Code: *user.ReferralCode, IsNew: false}, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", op, errs.ErrReferralExhausted)
}

// codePrefix строит префикс кода: первые четыре буквы имени в верхнем
// регистре, при нехватке добивается из "USER".
func codePrefix(name string) string {
	var letters []rune
	for _, r := range name {
		if unicode.IsLetter(r) && r < unicode.MaxASCII {
			letters = append(letters, unicode.ToUpper(r))
			if len(letters) == 4 {
				break
			}
		}
	}
	prefix := string(letters)
	if len(prefix) < 4 {
		prefix += "USER"[:4-len(prefix)]
	}
	return prefix
}

// appendRandomSuffix дописывает к префиксу четыре случайных байта
// в шестнадцатеричном виде, верхним регистром.
func appendRandomSuffix(prefix string) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + strings.ToUpper(fmt.Sprintf("%x", buf)), nil
}

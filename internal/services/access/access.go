// Package access реализует ядро контроллера доступа: определение режима
// доступа пользователя к платформе, активацию пробного периода, учет
// действий и выдачу бета-доступа.
//
// Режим доступа вычисляется на каждом чтении в строгом порядке
// приоритетов paid > beta > trialing > none. Хранимый trial_status
// может отставать от реальности, поэтому истечение окна всегда
// перепроверяется по датам, а не по флагу.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medguard/platform-access/internal/billing"
	"github.com/medguard/platform-access/internal/errs"
	"github.com/medguard/platform-access/internal/lib/days"
	"github.com/medguard/platform-access/internal/lib/sl"
	"github.com/medguard/platform-access/internal/models"
)

const (
	// TrialDays фиксированная длительность пробного периода.
	TrialDays = 14
	// DefaultBetaDays срок бета-доступа, если администратор его не указал.
	DefaultBetaDays = 60
	// MaxBetaDays верхняя граница срока бета-доступа.
	MaxBetaDays = 365
	// defaultUsageLimit подстраховка на случай платформы без лимита в конфиге.
	defaultUsageLimit = 100
)

// Repository определяет методы хранилища, нужные контроллеру доступа.
type Repository interface {
	// GetUser возвращает пользователя по UID.
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	// GetUserByEmail возвращает пользователя по email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetPlatformAccess возвращает запись доступа, (nil, nil) если записи нет.
	GetPlatformAccess(ctx context.Context, userUID string, platform models.Platform) (*models.PlatformAccess, error)
	// ActivateTrial атомарно переводит trial_status из none в active.
	ActivateTrial(ctx context.Context, userUID string, platform models.Platform,
		startDate, endDate time.Time, usageLimit int) (bool, models.TrialStatus, error)
	// IncrementUsage атомарно увеличивает счетчик и возвращает новое значение.
	IncrementUsage(ctx context.Context, userUID string, platform models.Platform) (int, error)
	// AppendUsageEvent дописывает событие в журнал действий.
	AppendUsageEvent(ctx context.Context, event models.UsageEvent) error
	// MarkTrialConverted переводит активный триал в converted.
	MarkTrialConverted(ctx context.Context, userUID string, platform models.Platform) error
	// GrantBetaAccess условно выставляет срок бета-доступа по email.
	GrantBetaAccess(ctx context.Context, email string, expires time.Time) (bool, error)
}

// BillingProvider описывает клиента биллингового провайдера.
type BillingProvider interface {
	ListSubscriptions(ctx context.Context, email string) ([]billing.Subscription, error)
}

// Cache описывает методы кеширования ответов биллинга.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// DeniedError возвращается учетом действий, когда доступ закрыт.
// Несет результат определения доступа, чтобы обработчик мог передать
// клиенту исходное сообщение без изменений.
type DeniedError struct {
	Status models.AccessStatus
}

func (e *DeniedError) Error() string {
	return "access denied: " + e.Status.Message
}

func (e *DeniedError) Unwrap() error {
	return errs.ErrAccessDenied
}

// Service реализует операции контроллера доступа.
type Service struct {
	repo            Repository
	billing         BillingProvider
	cache           Cache
	trialLimits     map[string]int
	billingCacheTTL time.Duration
	log             *slog.Logger
	now             func() time.Time
}

// NewService создает Service. trialLimits — лимиты действий пробного
// периода по платформам из конфигурации.
func NewService(repo Repository, billingClient BillingProvider, cacheStore Cache,
	trialLimits map[string]int, billingCacheTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:            repo,
		billing:         billingClient,
		cache:           cacheStore,
		trialLimits:     trialLimits,
		billingCacheTTL: billingCacheTTL,
		log:             log,
		now:             time.Now,
	}
}

// DetermineAccess вычисляет текущий режим доступа пользователя к платформе.
//
// Порядок проверок строгий, первая сработавшая побеждает:
// оплаченная подписка, действующий бета-доступ, активный триал, ничего.
func (s *Service) DetermineAccess(ctx context.Context, userUID string, platform models.Platform) (*models.AccessStatus, error) {
	const op = "services.access.DetermineAccess"

	if !models.ValidPlatform(platform) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidPlatform)
	}

	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	record, err := s.repo.GetPlatformAccess(ctx, userUID, platform)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	usageCount, usageLimit := 0, 0
	if record != nil {
		usageCount, usageLimit = record.UsageCount, record.UsageLimit
	}

	now := s.now().UTC()

	// 1. Оплаченная подписка — источник истины у биллингового провайдера.
	paid, err := s.hasPaidSubscription(ctx, user.Email, platform)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if paid {
		if record != nil && record.TrialStatus == models.TrialActive {
			// Оплата перекрывает триал: лениво фиксируем конверсию.
			if err := s.repo.MarkTrialConverted(ctx, userUID, platform); err != nil {
				s.log.Warn("failed to mark trial converted", sl.Err(err))
			}
		}
		return &models.AccessStatus{
			CanAccess:  true,
			AccessType: models.AccessPaid,
			UsageCount: usageCount,
			UsageLimit: usageLimit,
			Message:    "active subscription",
		}, nil
	}

	// 2. Бета-доступ — независимая выдача на уровне аккаунта.
	if user.HasActiveBeta(now) {
		return &models.AccessStatus{
			CanAccess:          true,
			AccessType:         models.AccessBeta,
			TrialDaysRemaining: days.RemainingPtr(now, *user.BetaAccessExpires),
			UsageCount:         usageCount,
			UsageLimit:         usageLimit,
			Message:            "beta access",
		}, nil
	}

	// 3. Пробный период. Хранимому active не верим: окно и лимит
	// перепроверяются на каждом чтении.
	if record != nil && record.TrialStatus == models.TrialActive && record.TrialEndDate != nil {
		if now.After(*record.TrialEndDate) {
			return &models.AccessStatus{
				CanAccess:  false,
				AccessType: models.AccessNone,
				UsageCount: usageCount,
				UsageLimit: usageLimit,
				Message:    "trial expired",
			}, nil
		}
		if usageCount >= usageLimit {
			return &models.AccessStatus{
				CanAccess:          false,
				AccessType:         models.AccessTrialing,
				TrialDaysRemaining: days.RemainingPtr(now, *record.TrialEndDate),
				UsageCount:         usageCount,
				UsageLimit:         usageLimit,
				Message:            "trial usage limit reached",
			}, nil
		}
		return &models.AccessStatus{
			CanAccess:          true,
			AccessType:         models.AccessTrialing,
			TrialDaysRemaining: days.RemainingPtr(now, *record.TrialEndDate),
			UsageCount:         usageCount,
			UsageLimit:         usageLimit,
			Message:            "trial active",
		}, nil
	}

	// 4. Ничего не подошло.
	return &models.AccessStatus{
		CanAccess:  false,
		AccessType: models.AccessNone,
		UsageCount: usageCount,
		UsageLimit: usageLimit,
		Message:    "no active access",
	}, nil
}

// ActivateTrial запускает пробный период для пары (пользователь, платформа).
//
// Предусловия проверяются по порядку, первое нарушенное и сообщается:
// известная платформа, подтвержденный email, подтвержденный телефон,
// триал ранее не активировался. Сама активация — одно условное
// обновление в хранилище, конкурентные запросы не продублируют ее.
func (s *Service) ActivateTrial(ctx context.Context, userUID string, platform models.Platform) (*models.TrialWindow, error) {
	const op = "services.access.ActivateTrial"

	if !models.ValidPlatform(platform) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidPlatform)
	}

	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !user.EmailVerified {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrEmailNotVerified)
	}
	if !user.PhoneVerified {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrPhoneNotVerified)
	}

	limit, ok := s.trialLimits[string(platform)]
	if !ok {
		s.log.Warn("no trial usage limit configured, using default",
			slog.String("platform", string(platform)), slog.Int("default", defaultUsageLimit))
		limit = defaultUsageLimit
	}

	now := s.now().UTC()
	endDate := now.AddDate(0, 0, TrialDays)

	activated, status, err := s.repo.ActivateTrial(ctx, userUID, platform, now, endDate, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !activated {
		if status == models.TrialActive {
			return nil, fmt.Errorf("%s: %w", op, errs.ErrTrialAlreadyActive)
		}
		return nil, fmt.Errorf("%s: %w", op, errs.ErrTrialAlreadyUsed)
	}

	s.log.Info("trial activated",
		slog.String("user_uid", userUID), slog.String("platform", string(platform)))

	return &models.TrialWindow{
		Platform:      platform,
		StartDate:     now,
		EndDate:       endDate,
		DaysRemaining: days.Remaining(now, endDate),
		UsageLimit:    limit,
	}, nil
}

// TrackUsage учитывает одно действие пользователя на платформе.
//
// Сначала определяется доступ: закрытый доступ означает отказ без записи
// чего-либо. Затем счетчик атомарно увеличивается, событие дописывается
// в журнал, и доступ определяется повторно — N-е действие (N равно
// лимиту) проходит, N+1-е уже нет.
func (s *Service) TrackUsage(ctx context.Context, userUID string, platform models.Platform,
	action string, metadata map[string]any) (*models.UsageStats, error) {
	const op = "services.access.TrackUsage"

	status, err := s.DetermineAccess(ctx, userUID, platform)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !status.CanAccess {
		return nil, &DeniedError{Status: *status}
	}

	newCount, err := s.repo.IncrementUsage(ctx, userUID, platform)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	event := models.UsageEvent{
		UserUID:   userUID,
		Platform:  platform,
		Action:    action,
		Metadata:  metadata,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AppendUsageEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	after, err := s.DetermineAccess(ctx, userUID, platform)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	remaining := after.UsageLimit - newCount
	if remaining < 0 {
		remaining = 0
	}

	return &models.UsageStats{
		Platform:           platform,
		Action:             action,
		UsageCount:         newCount,
		UsageLimit:         after.UsageLimit,
		UsageRemaining:     remaining,
		TrialDaysRemaining: after.TrialDaysRemaining,
		AccessType:         after.AccessType,
	}, nil
}

// GrantBeta выдает бета-доступ пользователю по email на betaDays дней.
// betaDays = 0 означает срок по умолчанию. Повторная выдача при
// действующем бета-доступе отклоняется.
func (s *Service) GrantBeta(ctx context.Context, targetEmail string, betaDays int) (*models.BetaGrant, error) {
	const op = "services.access.GrantBeta"

	if betaDays == 0 {
		betaDays = DefaultBetaDays
	}
	if betaDays < 1 || betaDays > MaxBetaDays {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidBetaDays)
	}

	user, err := s.repo.GetUserByEmail(ctx, targetEmail)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	expires := now.AddDate(0, 0, betaDays)

	granted, err := s.repo.GrantBetaAccess(ctx, user.Email, expires)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !granted {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrAlreadyBetaTester)
	}

	s.log.Info("beta access granted",
		slog.String("email", user.Email), slog.Int("days", betaDays))

	return &models.BetaGrant{
		Email:         user.Email,
		BetaDays:      betaDays,
		BetaExpiresAt: expires,
		DaysRemaining: days.Remaining(now, expires),
	}, nil
}

// hasPaidSubscription спрашивает у биллингового провайдера, есть ли у
// клиента активная подписка на платформу. Ответы провайдера недолго
// живут в кеше: оплаченное состояние меняется редко, а корректность
// счетчиков от кеша не зависит.
func (s *Service) hasPaidSubscription(ctx context.Context, email string, platform models.Platform) (bool, error) {
	const op = "services.access.hasPaidSubscription"

	cacheKey := "billing:subs:" + email
	var subs []billing.Subscription
	found, err := s.cache.Get(cacheKey, &subs)
	if err != nil {
		s.log.Warn("billing cache read failed", sl.Err(err))
		found = false
	}
	if !found {
		subs, err = s.billing.ListSubscriptions(ctx, email)
		if err != nil {
			s.log.Error("billing provider request failed", sl.Err(err))
			return false, fmt.Errorf("%s: %w", op, errs.ErrBillingUnavailable)
		}
		if err := s.cache.Set(cacheKey, subs, s.billingCacheTTL); err != nil {
			s.log.Warn("billing cache write failed", sl.Err(err))
		}
	}

	for _, sub := range subs {
		if sub.IsActive() && sub.Platform() == string(platform) {
			return true, nil
		}
	}
	return false, nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medguard/platform-access/internal/models"
)

// GetPlatformAccess возвращает запись доступа для пары (пользователь, платформа).
// Отсутствие записи не является ошибкой: возвращается (nil, nil),
// отсутствующая запись трактуется вызывающим кодом как access_type none.
func (s *Storage) GetPlatformAccess(ctx context.Context, userUID string, platform models.Platform) (*models.PlatformAccess, error) {
	const op = "storage.GetPlatformAccess"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_uid, platform, trial_status, trial_start_date, trial_end_date,
			      usage_count, usage_limit, updated_at
			  FROM platform_access
			  WHERE user_uid = $1 AND platform = $2`
	row := s.DB.QueryRowContext(ctx, query, userUID, platform)

	var pa models.PlatformAccess
	var startDate, endDate sql.NullTime
	err := row.Scan(&pa.UserUID, &pa.Platform, &pa.TrialStatus, &startDate, &endDate,
		&pa.UsageCount, &pa.UsageLimit, &pa.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if startDate.Valid {
		pa.TrialStartDate = &startDate.Time
	}
	if endDate.Valid {
		pa.TrialEndDate = &endDate.Time
	}
	return &pa, nil
}

// ActivateTrial атомарно переводит trial_status из none в active.
// Проверка состояния и запись выполняются одним условным обновлением,
// поэтому из двух конкурентных активаций пройдет ровно одна.
//
// Возвращает (true, active, nil) при успехе; (false, текущее состояние, nil),
// если триал уже был активирован или использован.
func (s *Storage) ActivateTrial(ctx context.Context, userUID string, platform models.Platform,
	startDate, endDate time.Time, usageLimit int) (bool, models.TrialStatus, error) {
	const op = "storage.ActivateTrial"
	select {
	case <-ctx.Done():
		return false, "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO platform_access (user_uid, platform, trial_status, trial_start_date,
			      trial_end_date, usage_count, usage_limit)
			  VALUES ($1, $2, 'active', $3, $4, 0, $5)
			  ON CONFLICT (user_uid, platform) DO UPDATE
			  SET trial_status = 'active', trial_start_date = EXCLUDED.trial_start_date,
			      trial_end_date = EXCLUDED.trial_end_date, usage_count = 0,
			      usage_limit = EXCLUDED.usage_limit, updated_at = now()
			  WHERE platform_access.trial_status = 'none'
			  RETURNING trial_status`
	var status models.TrialStatus
	err := s.DB.QueryRowContext(ctx, query, userUID, platform, startDate, endDate, usageLimit).Scan(&status)
	if err == nil {
		return true, status, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, "", fmt.Errorf("%s: %w", op, err)
	}

	// Условное обновление не прошло: читаем фактическое состояние,
	// чтобы различить "уже активен" и "уже использован".
	current, err := s.GetPlatformAccess(ctx, userUID, platform)
	if err != nil {
		return false, "", fmt.Errorf("%s: %w", op, err)
	}
	if current == nil {
		return false, "", fmt.Errorf("%s: access record disappeared", op)
	}
	return false, current.TrialStatus, nil
}

// IncrementUsage атомарно увеличивает usage_count на единицу и возвращает
// новое значение счетчика. Инкремент выполняется на стороне базы, а не
// чтением-записью из приложения, поэтому конкурентные запросы не теряют
// обновлений. Для пользователей без записи доступа (paid или beta без
// активированного триала) запись создается с первым учтенным действием.
func (s *Storage) IncrementUsage(ctx context.Context, userUID string, platform models.Platform) (int, error) {
	const op = "storage.IncrementUsage"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO platform_access (user_uid, platform, usage_count)
			  VALUES ($1, $2, 1)
			  ON CONFLICT (user_uid, platform) DO UPDATE
			  SET usage_count = platform_access.usage_count + 1, updated_at = now()
			  RETURNING usage_count`
	var newCount int
	if err := s.DB.QueryRowContext(ctx, query, userUID, platform).Scan(&newCount); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newCount, nil
}

// AppendUsageEvent дописывает событие в журнал действий.
// Журнал только растет, записи никогда не изменяются и не удаляются.
func (s *Storage) AppendUsageEvent(ctx context.Context, event models.UsageEvent) error {
	const op = "storage.AppendUsageEvent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	query := `INSERT INTO usage_events (user_uid, platform, action, metadata)
			  VALUES ($1, $2, $3, $4)`
	if _, err := s.DB.ExecContext(ctx, query, event.UserUID, event.Platform, event.Action, metadata); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkTrialConverted переводит активный триал в состояние converted.
// Вызывается, когда определение доступа обнаружило оплаченную подписку
// на ту же платформу. Обновление условное: уже не-активный триал не трогаем.
func (s *Storage) MarkTrialConverted(ctx context.Context, userUID string, platform models.Platform) error {
	const op = "storage.MarkTrialConverted"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE platform_access
			  SET trial_status = 'converted', updated_at = now()
			  WHERE user_uid = $1 AND platform = $2 AND trial_status = 'active'`
	if _, err := s.DB.ExecContext(ctx, query, userUID, platform); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SweepExpiredTrials переводит все активные триалы с истекшим окном
// в expired и возвращает число обновленных записей. Хранимый статус
// может отставать от реальности (ленивое истечение на чтении),
// планировщик подтягивает его для аудита и аналитики.
func (s *Storage) SweepExpiredTrials(ctx context.Context) (int64, error) {
	const op = "storage.SweepExpiredTrials"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE platform_access
			  SET trial_status = 'expired', updated_at = now()
			  WHERE trial_status = 'active' AND trial_end_date < now()`
	result, err := s.DB.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected, nil
}

// FindTrialsExpiringToday возвращает активные триалы, окно которых
// заканчивается сегодня, вместе с контактами владельцев.
func (s *Storage) FindTrialsExpiringToday(ctx context.Context) ([]*models.TrialExpiryInfo, error) {
	const op = "storage.FindTrialsExpiringToday"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.email, u.username, pa.platform, pa.trial_end_date
			  FROM platform_access pa
			  JOIN users u ON u.uid = pa.user_uid
			  WHERE pa.trial_status = 'active'
			    AND pa.trial_end_date::DATE = CURRENT_DATE`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.TrialExpiryInfo
	for rows.Next() {
		var info models.TrialExpiryInfo
		if err := rows.Scan(&info.Email, &info.Username, &info.Platform, &info.TrialEndDate); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

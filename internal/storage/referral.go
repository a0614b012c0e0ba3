package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medguard/platform-access/internal/errs"
)

// uniqueViolation код ошибки PostgreSQL для нарушения уникального индекса.
const uniqueViolation = "23505"

// GetReferralCode возвращает реферальный код пользователя,
// nil — если код еще не выпускался.
func (s *Storage) GetReferralCode(ctx context.Context, userUID string) (*string, error) {
	const op = "storage.GetReferralCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	u, err := s.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u.ReferralCode, nil
}

// TrySetReferralCode пытается закрепить код за пользователем.
//
// Возвращаемые значения:
//   - (true, nil)  — код записан;
//   - (false, nil) — код занят другим пользователем (коллизия уникального
//     индекса) либо у пользователя уже появился код, конкурентный запрос
//     успел раньше. Вызывающий код перечитывает состояние и решает,
//     повторять ли попытку с новым кандидатом.
func (s *Storage) TrySetReferralCode(ctx context.Context, userUID, code string) (bool, error) {
	const op = "storage.TrySetReferralCode"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET referral_code = $2
			  WHERE uid = $1 AND referral_code IS NULL`
	result, err := s.DB.ExecContext(ctx, query, userUID, code)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		// Пользователь не существует либо код у него уже есть.
		if _, err := s.GetUser(ctx, userUID); err != nil {
			return false, fmt.Errorf("%s: %w", op, errs.ErrUserNotFound)
		}
		return false, nil
	}
	return true, nil
}

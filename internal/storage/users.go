package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/medguard/platform-access/internal/errs"
	"github.com/medguard/platform-access/internal/models"
)

const userColumns = `uid, email, username, password_hash, role, email_verified,
			      phone_verified, beta_access_expires, referral_code, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var betaExpires sql.NullTime
	var referralCode sql.NullString
	if err := row.Scan(&u.UID, &u.Email, &u.Username, &u.PasswordHash, &u.Role,
		&u.EmailVerified, &u.PhoneVerified, &betaExpires, &referralCode, &u.CreatedAt); err != nil {
		return nil, err
	}
	if betaExpires.Valid {
		u.BetaAccessExpires = &betaExpires.Time
	}
	if referralCode.Valid {
		u.ReferralCode = &referralCode.String
	}
	return u, nil
}

// RegisterUser сохраняет нового пользователя и возвращает его UID.
func (s *Storage) RegisterUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newUID string
	query := `INSERT INTO users (email, username, password_hash, role)
			  VALUES ($1, $2, $3, $4)
			  RETURNING uid`
	if err := s.DB.QueryRowContext(ctx, query,
		user.Email, user.Username, user.PasswordHash, user.Role).Scan(&newUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByUsername возвращает пользователя по username.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// MarkContactVerified проставляет флаг подтверждения контакта:
// channel принимает значения "email" или "phone".
func (s *Storage) MarkContactVerified(ctx context.Context, userUID, channel string) error {
	const op = "storage.MarkContactVerified"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var query string
	switch channel {
	case "email":
		query = `UPDATE users SET email_verified = TRUE WHERE uid = $1`
	case "phone":
		query = `UPDATE users SET phone_verified = TRUE WHERE uid = $1`
	default:
		return fmt.Errorf("%s: unknown channel %q", op, channel)
	}

	result, err := s.DB.ExecContext(ctx, query, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrUserNotFound)
	}
	return nil
}

// GrantBetaAccess условно выставляет срок бета-доступа пользователю.
// Обновление проходит только если действующего бета-доступа нет;
// возвращает false, если пользователь уже бета-тестер.
func (s *Storage) GrantBetaAccess(ctx context.Context, email string, expires time.Time) (bool, error) {
	const op = "storage.GrantBetaAccess"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET beta_access_expires = $2
			  WHERE email = $1
			    AND (beta_access_expires IS NULL OR beta_access_expires <= now())`
	result, err := s.DB.ExecContext(ctx, query, email, expires)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

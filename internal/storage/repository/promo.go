package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
)

const uniqueViolation = "23505"

// CreatePromoCode заводит новый промокод. Дубликат кода - ErrPromoDuplicate.
func (s *Storage) CreatePromoCode(ctx context.Context, code string, months, maxUses int, expiresAt *time.Time) (*models.PromoCode, error) {
	const op = "storage.CreatePromoCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO promo_codes (code, months, max_uses, expires_at)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id, code, months, max_uses, current_uses, is_active, expires_at, created_at`
	var promo models.PromoCode
	err := s.DB.QueryRowContext(ctx, query, code, months, maxUses, expiresAt).Scan(
		&promo.ID, &promo.Code, &promo.Months, &promo.MaxUses,
		&promo.CurrentUses, &promo.IsActive, &promo.ExpiresAt, &promo.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%s: %w", op, ErrPromoDuplicate)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &promo, nil
}

// GetPromoByCode возвращает промокод или ErrPromoNotFound.
func (s *Storage) GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	const op = "storage.GetPromoByCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, code, months, max_uses, current_uses, is_active, expires_at, created_at
			  FROM promo_codes WHERE code = $1`
	var promo models.PromoCode
	err := s.DB.QueryRowContext(ctx, query, code).Scan(
		&promo.ID, &promo.Code, &promo.Months, &promo.MaxUses,
		&promo.CurrentUses, &promo.IsActive, &promo.ExpiresAt, &promo.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrPromoNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &promo, nil
}

// RedeemPromo атомарно активирует промокод: валидация, запись в журнал
// активаций (уникальная пара пользователь-код), инкремент счётчика с
// проверкой лимита и продление подписки - всё в одной транзакции.
// Запись в журнал идёт раньше проверки лимита: повторная активация той
// же парой отвечает ErrPromoAlreadyUsed даже на исчерпанном коде, и
// только чужая попытка на исчерпанном коде - ErrPromoExhausted. Две
// конкурентные активации на последнем использовании не могут пройти
// обе: проигравшая получает ErrPromoExhausted.
func (s *Storage) RedeemPromo(ctx context.Context, telegramID int64, code string, now time.Time) (*models.PromoCode, time.Time, error) {
	const op = "storage.RedeemPromo"
	select {
	case <-ctx.Done():
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var promo models.PromoCode
	err = tx.QueryRowContext(ctx,
		`SELECT id, code, months, max_uses, current_uses, is_active, expires_at, created_at
		 FROM promo_codes WHERE code = $1 FOR UPDATE`, code).Scan(
		&promo.ID, &promo.Code, &promo.Months, &promo.MaxUses,
		&promo.CurrentUses, &promo.IsActive, &promo.ExpiresAt, &promo.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, fmt.Errorf("%s: %w", op, ErrPromoNotFound)
		}
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case !promo.IsActive:
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, ErrPromoInactive)
	case promo.ExpiresAt != nil && promo.ExpiresAt.Before(now):
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, ErrPromoExpired)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO promo_redemptions (telegram_id, promocode_id) VALUES ($1, $2)`,
		telegramID, promo.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, time.Time{}, fmt.Errorf("%s: %w", op, ErrPromoAlreadyUsed)
		}
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	// Лимит проверяет условный инкремент: строка заблокирована FOR UPDATE,
	// условие в запросе держит инвариант на стороне СУБД.
	result, err := tx.ExecContext(ctx,
		`UPDATE promo_codes SET current_uses = current_uses + 1
		 WHERE id = $1 AND current_uses < max_uses`, promo.ID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, ErrPromoExhausted)
	}

	newEnd, err := extendSubscriptionTx(ctx, tx, telegramID, promo.Months)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	promo.CurrentUses++
	return &promo, newEnd, nil
}

// ListPromoCodes возвращает все промокоды (админский обзор).
func (s *Storage) ListPromoCodes(ctx context.Context) ([]*models.PromoCode, error) {
	const op = "storage.ListPromoCodes"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, code, months, max_uses, current_uses, is_active, expires_at, created_at
			  FROM promo_codes ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.PromoCode
	for rows.Next() {
		var promo models.PromoCode
		if err := rows.Scan(&promo.ID, &promo.Code, &promo.Months, &promo.MaxUses,
			&promo.CurrentUses, &promo.IsActive, &promo.ExpiresAt, &promo.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &promo)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
)

// CreatePendingPayment фиксирует выставленный счёт провайдера.
func (s *Storage) CreatePendingPayment(ctx context.Context, payment models.PendingPayment) error {
	const op = "storage.CreatePendingPayment"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO pending_payments (payment_id, telegram_id, months, invoice_message_ref)
			  VALUES ($1, $2, $3, $4)`
	_, err := s.DB.ExecContext(ctx, query,
		payment.PaymentID, payment.TelegramID, payment.Months, payment.InvoiceMessageRef)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClaimPendingPaymentAndExtend атомарно закрывает ожидающий платёж и
// продлевает подписку в одной транзакции. Повторная доставка того же
// payment_id не находит записи и возвращает (nil, zero, nil) - продление
// случается ровно один раз.
func (s *Storage) ClaimPendingPaymentAndExtend(ctx context.Context, paymentID string) (*models.PendingPayment, time.Time, error) {
	const op = "storage.ClaimPendingPaymentAndExtend"
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

	var payment models.PendingPayment
	err = tx.QueryRowContext(ctx,
		`DELETE FROM pending_payments WHERE payment_id = $1
		 RETURNING payment_id, telegram_id, months, invoice_message_ref, created_at`,
		paymentID).Scan(&payment.PaymentID, &payment.TelegramID, &payment.Months,
		&payment.InvoiceMessageRef, &payment.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Уже обработан или неизвестен - зачислять нечего.
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	newEnd, err := extendSubscriptionTx(ctx, tx, payment.TelegramID, payment.Months)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return &payment, newEnd, nil
}

// PrunePendingPayments удаляет зависшие счета старше cutoff
// (провайдер так и не подтвердил оплату).
func (s *Storage) PrunePendingPayments(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "storage.PrunePendingPayments"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`DELETE FROM pending_payments WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected, nil
}

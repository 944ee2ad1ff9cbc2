package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
)

const userColumns = `id, telegram_id, full_name, username, registration_date,
	subscription_end, profile_blob, panel_client_id, enabled_in_panel,
	notified_expiring, balance, device_limit, is_admin`

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.FullName, &u.Username,
		&u.RegistrationDate, &u.SubscriptionEnd, &u.ProfileBlob,
		&u.PanelClientID, &u.EnabledInPanel, &u.NotifiedExpiring,
		&u.Balance, &u.DeviceLimit, &u.IsAdmin)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByTelegramID возвращает пользователя или ErrUserNotFound.
func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const op = "storage.GetUserByTelegramID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	user, err := scanUser(s.DB.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// CreateUser заводит пользователя с пробным окном в trialDays дней.
// Повторный вызов для существующего telegram_id возвращает уже
// существующую запись, ничего не меняя.
func (s *Storage) CreateUser(ctx context.Context, telegramID int64, fullName, username string, trialDays int) (*models.User, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (telegram_id, full_name, username, subscription_end)
			  VALUES ($1, $2, $3, NOW() + ($4 * INTERVAL '1 day'))
			  ON CONFLICT (telegram_id) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query, telegramID, fullName, username, trialDays); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetUserByTelegramID(ctx, telegramID)
}

// ListUsersWithSubscription возвращает всех пользователей с непустым
// subscription_end - население для фонового обхода.
func (s *Storage) ListUsersWithSubscription(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListUsersWithSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE subscription_end IS NOT NULL`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, user)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListActiveProvisioned возвращает пользователей с действующей подпиской
// и выданным профилем - вход задачи сверки с панелью.
func (s *Storage) ListActiveProvisioned(ctx context.Context, now time.Time) ([]*models.User, error) {
	const op = "storage.ListActiveProvisioned"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users
			  WHERE subscription_end IS NOT NULL
			    AND subscription_end > $1
			    AND profile_blob IS NOT NULL`
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, user)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SaveProfile сохраняет дескриптор профиля при условии, что его ещё нет.
// Гард от двух конкурентных писателей: второй получает ErrAlreadyProvisioned.
func (s *Storage) SaveProfile(ctx context.Context, telegramID int64, profileBlob, panelClientID string) error {
	const op = "storage.SaveProfile"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET profile_blob = $2, panel_client_id = $3, enabled_in_panel = TRUE
			  WHERE telegram_id = $1 AND profile_blob IS NULL`
	result, err := s.DB.ExecContext(ctx, query, telegramID, profileBlob, panelClientID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrAlreadyProvisioned)
	}
	return nil
}

// ClearProfile стирает профиль при окончательном демонтаже клиента.
// Пользователь не удаляется, только профильные поля.
func (s *Storage) ClearProfile(ctx context.Context, telegramID int64) error {
	const op = "storage.ClearProfile"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET profile_blob = NULL, panel_client_id = NULL,
			      enabled_in_panel = FALSE, notified_expiring = FALSE
			  WHERE telegram_id = $1`
	if _, err := s.DB.ExecContext(ctx, query, telegramID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetEnabledInPanel фиксирует последнее известное состояние клиента в панели.
// Вызывается только после подтверждённой мутации панели.
func (s *Storage) SetEnabledInPanel(ctx context.Context, telegramID int64, enabled bool) error {
	const op = "storage.SetEnabledInPanel"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET enabled_in_panel = $2 WHERE telegram_id = $1`
	if _, err := s.DB.ExecContext(ctx, query, telegramID, enabled); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkNotifiedExpiring выставляет дебаунс уведомления "скоро истекает".
func (s *Storage) MarkNotifiedExpiring(ctx context.Context, telegramID int64) error {
	const op = "storage.MarkNotifiedExpiring"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET notified_expiring = TRUE WHERE telegram_id = $1`
	if _, err := s.DB.ExecContext(ctx, query, telegramID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// extendSubscriptionTx продлевает подписку внутри уже открытой транзакции.
// Будущий конец наращивается (+months*30d), истёкший заякоривается на NOW().
func extendSubscriptionTx(ctx context.Context, tx *sql.Tx, telegramID int64, months int) (time.Time, error) {
	query := `UPDATE users
			  SET subscription_end = CASE
			          WHEN subscription_end IS NOT NULL AND subscription_end > NOW()
			          THEN subscription_end
			          ELSE NOW()
			      END + ($2 * INTERVAL '30 days'),
			      notified_expiring = FALSE
			  WHERE telegram_id = $1
			  RETURNING subscription_end`
	var newEnd time.Time
	if err := tx.QueryRowContext(ctx, query, telegramID, months).Scan(&newEnd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrUserNotFound
		}
		return time.Time{}, err
	}
	return newEnd, nil
}

// ExtendSubscription продлевает подписку вне платёжного потока
// (админ, реферал). Возвращает новый конец окна.
func (s *Storage) ExtendSubscription(ctx context.Context, telegramID int64, months int) (time.Time, error) {
	const op = "storage.ExtendSubscription"
	select {
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	newEnd, err := extendSubscriptionTx(ctx, tx, telegramID, months)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return newEnd, nil
}

// RevokeSubscription обнуляет окно подписки (админский отзыв).
func (s *Storage) RevokeSubscription(ctx context.Context, telegramID int64) error {
	const op = "storage.RevokeSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET subscription_end = NOW(), notified_expiring = FALSE
			  WHERE telegram_id = $1`
	if _, err := s.DB.ExecContext(ctx, query, telegramID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DebitBalanceAndExtend списывает amount с баланса и в той же транзакции
// продлевает подписку. Недостаточный баланс - ErrInsufficientBalance,
// списания не происходит.
func (s *Storage) DebitBalanceAndExtend(ctx context.Context, telegramID int64, amount float64, months int) (time.Time, error) {
	const op = "storage.DebitBalanceAndExtend"
	select {
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = balance - $2
		 WHERE telegram_id = $1 AND balance >= $2`, telegramID, amount)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return time.Time{}, fmt.Errorf("%s: %w", op, ErrInsufficientBalance)
	}

	newEnd, err := extendSubscriptionTx(ctx, tx, telegramID, months)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return newEnd, nil
}

// AddBalance пополняет баланс пользователя.
func (s *Storage) AddBalance(ctx context.Context, telegramID int64, amount float64) error {
	const op = "storage.AddBalance"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET balance = balance + $2 WHERE telegram_id = $1`
	if _, err := s.DB.ExecContext(ctx, query, telegramID, amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

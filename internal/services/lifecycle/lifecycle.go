// Package lifecycle реализует машину состояний подписки: начисление
// права доступа из платежей, промокодов и админских команд, периодический
// обход с уведомлением и отзывом, проверку доступа на момент подключения.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/metrics"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
	"github.com/magabrotheeeer/vpn-access-manager/internal/panel"
	"github.com/magabrotheeeer/vpn-access-manager/internal/paymentprovider"
)

// sweepConcurrency ограничивает число одновременно обрабатываемых
// пользователей в обходе.
const sweepConcurrency = 8

// expiringWindow - горизонт уведомления "подписка скоро истекает".
const expiringWindow = 24 * time.Hour

// pendingPaymentTTL - сколько живёт неподтверждённый счёт; старше -
// провайдер уже не пришлёт колбэк, запись вычищается обходом.
const pendingPaymentTTL = 24 * time.Hour

// ErrUnknownPlan - запрошенный срок отсутствует в тарифной таблице.
var ErrUnknownPlan = errors.New("lifecycle: unknown subscription plan")

// Repository описывает методы хранилища, нужные оркестратору.
type Repository interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	CreateUser(ctx context.Context, telegramID int64, fullName, username string, trialDays int) (*models.User, error)
	ListUsersWithSubscription(ctx context.Context) ([]*models.User, error)
	MarkNotifiedExpiring(ctx context.Context, telegramID int64) error
	SetEnabledInPanel(ctx context.Context, telegramID int64, enabled bool) error
	ExtendSubscription(ctx context.Context, telegramID int64, months int) (time.Time, error)
	RevokeSubscription(ctx context.Context, telegramID int64) error
	RedeemPromo(ctx context.Context, telegramID int64, code string, now time.Time) (*models.PromoCode, time.Time, error)
	CreatePendingPayment(ctx context.Context, payment models.PendingPayment) error
	ClaimPendingPaymentAndExtend(ctx context.Context, paymentID string) (*models.PendingPayment, time.Time, error)
	PrunePendingPayments(ctx context.Context, cutoff time.Time) (int64, error)
	DebitBalanceAndExtend(ctx context.Context, telegramID int64, amount float64, months int) (time.Time, error)
}

// PanelAdapter описывает нужную часть адаптера панели.
type PanelAdapter interface {
	SetClientEnabled(ctx context.Context, inboundID int, email string, enabled bool) error
}

// EventPublisher публикует события жизненного цикла для внешнего
// доставщика уведомлений.
type EventPublisher interface {
	Publish(routingKey string, message any) error
}

// InvoiceCreator выставляет счёт у платёжного провайдера.
type InvoiceCreator interface {
	CreatePayment(ctx context.Context, req paymentprovider.CreatePaymentRequest) (*paymentprovider.CreatePaymentResponse, error)
}

// Service - оркестратор жизненного цикла подписки.
type Service struct {
	repo     Repository
	panel    PanelAdapter
	events   EventPublisher
	provider InvoiceCreator
	cfg      config.Subscription
	panelCfg config.Panel
	returns  string
	log      *slog.Logger
}

// New создаёт оркестратор.
func New(repo Repository, panelAdapter PanelAdapter, events EventPublisher,
	provider InvoiceCreator, cfg config.Subscription, panelCfg config.Panel,
	returnURL string, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		panel:    panelAdapter,
		events:   events,
		provider: provider,
		cfg:      cfg,
		panelCfg: panelCfg,
		returns:  returnURL,
		log:      log,
	}
}

// State - вычисляемое состояние подписки пользователя.
type State string

// Состояния подписки. Disabled означает "истекла и доступ в панели
// отозван", Expired - переходное "истекла, отзыв ещё не применён";
// обход сводит Expired к Disabled за один интервал.
const (
	StateNone         State = "none"
	StateActive       State = "active"
	StateExpiringSoon State = "expiring_soon"
	StateExpired      State = "expired"
	StateDisabled     State = "disabled"
)

// StateOf выводит состояние из сохранённых полей; отдельного поля
// состояния в хранилище нет.
func StateOf(u *models.User, now time.Time) State {
	switch {
	case u.SubscriptionEnd == nil:
		return StateNone
	case u.SubscriptionEnd.After(now):
		if u.SubscriptionEnd.Sub(now) < expiringWindow {
			return StateExpiringSoon
		}
		return StateActive
	case u.EnabledInPanel:
		return StateExpired
	default:
		return StateDisabled
	}
}

// RegisterUser заводит пользователя с пробным окном. Повторный вызов
// для известного telegram_id ничего не меняет.
func (s *Service) RegisterUser(ctx context.Context, telegramID int64, fullName, username string) (*models.User, error) {
	return s.repo.CreateUser(ctx, telegramID, fullName, username, s.cfg.TrialDays)
}

// GrantEntitlement продлевает подписку на months месяцев из источника
// source. Будущий конец наращивается (стек), истёкший заякоривается на
// "сейчас". Если доступ в панели был отозван, клиент включается обратно.
// Дедупликацию повторных платёжных колбэков делает HandlePaymentSucceeded,
// сюда попадают уже однократные начисления.
func (s *Service) GrantEntitlement(ctx context.Context, telegramID int64, months int, source models.EntitlementSource) (time.Time, error) {
	const op = "lifecycle.GrantEntitlement"

	newEnd, err := s.repo.ExtendSubscription(ctx, telegramID, months)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.reactivate(ctx, telegramID); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("entitlement granted",
		slog.Int64("telegram_id", telegramID),
		slog.Int("months", months),
		slog.String("source", string(source)),
		slog.Time("new_end", newEnd))
	return newEnd, nil
}

// reactivate включает клиента в панели обратно, если он был отключён.
// Флаг в хранилище меняется только после подтверждённой мутации панели.
func (s *Service) reactivate(ctx context.Context, telegramID int64) error {
	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	if user.EnabledInPanel || user.ProfileBlob == nil {
		return nil
	}

	email := panel.ClientEmail(telegramID)
	if err := s.panel.SetClientEnabled(ctx, s.panelCfg.InboundID, email, true); err != nil {
		return err
	}
	return s.repo.SetEnabledInPanel(ctx, telegramID, true)
}

// CreateInvoice выставляет счёт у провайдера и фиксирует ожидающий
// платёж. Возвращает ссылку подтверждения для пользователя.
func (s *Service) CreateInvoice(ctx context.Context, telegramID int64, months int) (string, error) {
	const op = "lifecycle.CreateInvoice"

	price, ok := s.cfg.Prices[months]
	if !ok {
		return "", fmt.Errorf("%s: %w", op, ErrUnknownPlan)
	}

	resp, err := s.provider.CreatePayment(ctx, paymentprovider.CreatePaymentRequest{
		Amount: paymentprovider.Amount{
			Value:    strconv.Itoa(price) + ".00",
			Currency: "RUB",
		},
		Capture: true,
		Confirmation: paymentprovider.Confirmation{
			Type:      "redirect",
			ReturnURL: s.returns,
		},
		Description: fmt.Sprintf("Subscription for %d month(s)", months),
		Metadata: map[string]string{
			"telegram_id": strconv.FormatInt(telegramID, 10),
			"months":      strconv.Itoa(months),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	err = s.repo.CreatePendingPayment(ctx, models.PendingPayment{
		PaymentID:  resp.ID,
		TelegramID: telegramID,
		Months:     months,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("invoice created",
		slog.Int64("telegram_id", telegramID),
		slog.String("payment_id", resp.ID),
		slog.Int("months", months))
	return resp.Confirmation.ConfirmationURL, nil
}

// HandlePaymentSucceeded обрабатывает подтверждение оплаты. Закрытие
// ожидающего платежа и продление подписки происходят в одной транзакции
// хранилища, поэтому повторная доставка того же payment_id зачисляет
// ровно ноль: записи уже нет, колбэк подтверждается как обработанный.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, paymentID string) (*models.PendingPayment, error) {
	const op = "lifecycle.HandlePaymentSucceeded"

	payment, newEnd, err := s.repo.ClaimPendingPaymentAndExtend(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payment == nil {
		s.log.Info("payment already processed or unknown, acking",
			slog.String("payment_id", paymentID))
		return nil, nil
	}

	if err := s.reactivate(ctx, payment.TelegramID); err != nil {
		// Подписка уже продлена; включение догонит ближайшее начисление
		// или ручная сверка. Ошибку не возвращаем, чтобы провайдер не
		// ретраил уже зачисленный платёж.
		s.log.Error("re-enable after payment failed",
			slog.Int64("telegram_id", payment.TelegramID), sl.Err(err))
	}

	s.log.Info("payment credited",
		slog.String("payment_id", paymentID),
		slog.Int64("telegram_id", payment.TelegramID),
		slog.Int("months", payment.Months),
		slog.Time("new_end", newEnd))
	return payment, nil
}

// RedeemPromo активирует промокод для пользователя. Неизвестному
// telegram_id сперва заводится учётка с пробным окном. Отказы типизированы
// сентинелами хранилища: не найден, неактивен, истёк, исчерпан, уже
// активирован этой учёткой.
func (s *Service) RedeemPromo(ctx context.Context, telegramID int64, code string) (*models.PromoCode, time.Time, error) {
	const op = "lifecycle.RedeemPromo"

	if _, err := s.repo.CreateUser(ctx, telegramID, "", "", s.cfg.TrialDays); err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	promo, newEnd, err := s.repo.RedeemPromo(ctx, telegramID, code, time.Now())
	if err != nil {
		return nil, time.Time{}, err
	}

	if err := s.reactivate(ctx, telegramID); err != nil {
		s.log.Error("re-enable after promo failed",
			slog.Int64("telegram_id", telegramID), sl.Err(err))
	}

	s.log.Info("promo redeemed",
		slog.Int64("telegram_id", telegramID),
		slog.String("code", promo.Code),
		slog.Time("new_end", newEnd))
	return promo, newEnd, nil
}

// PayWithBalance оплачивает подписку с внутреннего баланса: списание и
// продление в одной транзакции, недостаточный баланс - типизированный отказ.
func (s *Service) PayWithBalance(ctx context.Context, telegramID int64, months int) (time.Time, error) {
	const op = "lifecycle.PayWithBalance"

	price, ok := s.cfg.Prices[months]
	if !ok {
		return time.Time{}, fmt.Errorf("%s: %w", op, ErrUnknownPlan)
	}

	newEnd, err := s.repo.DebitBalanceAndExtend(ctx, telegramID, float64(price), months)
	if err != nil {
		return time.Time{}, err
	}

	if err := s.reactivate(ctx, telegramID); err != nil {
		s.log.Error("re-enable after balance payment failed",
			slog.Int64("telegram_id", telegramID), sl.Err(err))
	}

	s.log.Info("subscription paid from balance",
		slog.Int64("telegram_id", telegramID),
		slog.Int("months", months),
		slog.Time("new_end", newEnd))
	return newEnd, nil
}

// RevokeEntitlement отзывает подписку немедленно (админская операция):
// окно закрывается, клиент в панели отключается, публикуется событие.
func (s *Service) RevokeEntitlement(ctx context.Context, telegramID int64) error {
	const op = "lifecycle.RevokeEntitlement"

	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.RevokeSubscription(ctx, telegramID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if user.EnabledInPanel {
		if err := s.disableRemote(ctx, telegramID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// HasAccess отвечает, действует ли подписка пользователя прямо сейчас.
// Ответ авторитетен из хранилища; панель не опрашивается, её состояние
// может отставать на время доставки отключения.
func (s *Service) HasAccess(ctx context.Context, telegramID int64) (bool, *time.Time, error) {
	const op = "lifecycle.HasAccess"

	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return false, nil, fmt.Errorf("%s: %w", op, err)
	}
	state := StateOf(user, time.Now())
	return state == StateActive || state == StateExpiringSoon, user.SubscriptionEnd, nil
}

// Sweep - один проход обхода по всем пользователям с непустым окном
// подписки. Скоро истекающим публикуется уведомление (один раз на окно),
// истёкшие и всё ещё включённые отключаются в панели. Ошибки по одному
// пользователю не останавливают проход по остальным.
func (s *Service) Sweep(ctx context.Context, now time.Time) error {
	const op = "lifecycle.Sweep"

	users, err := s.repo.ListUsersWithSubscription(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, user := range users {
		user := user
		g.Go(func() error {
			metrics.SweepUsersExamined.Inc()
			if err := s.sweepUser(gctx, user, now); err != nil {
				metrics.SweepFailures.Inc()
				s.log.Error("sweep user failed",
					slog.Int64("telegram_id", user.TelegramID), sl.Err(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Заодно вычищаются зависшие счета, по которым колбэк так и не пришёл.
	pruned, err := s.repo.PrunePendingPayments(ctx, now.Add(-pendingPaymentTTL))
	if err != nil {
		s.log.Error("prune pending payments failed", sl.Err(err))
	} else if pruned > 0 {
		s.log.Info("stale pending payments pruned", slog.Int64("count", pruned))
	}
	return nil
}

// sweepUser применяет переход, предписанный текущим состоянием
// пользователя. Решение принимает StateOf - та же машина состояний,
// что и проверка доступа.
func (s *Service) sweepUser(ctx context.Context, user *models.User, now time.Time) error {
	switch StateOf(user, now) {
	case StateExpiringSoon:
		if user.NotifiedExpiring {
			return nil
		}
		if err := s.events.Publish("expiring", models.ExpiringNotification{
			TelegramID:      user.TelegramID,
			SubscriptionEnd: *user.SubscriptionEnd,
		}); err != nil {
			return err
		}
		return s.repo.MarkNotifiedExpiring(ctx, user.TelegramID)
	case StateExpired:
		return s.disableRemote(ctx, user.TelegramID)
	default:
		return nil
	}
}

// disableRemote отключает клиента в панели и после подтверждения
// фиксирует это в хранилище и публикует событие отзыва. Отсутствие
// клиента в панели считается уже выполненным отключением.
func (s *Service) disableRemote(ctx context.Context, telegramID int64) error {
	email := panel.ClientEmail(telegramID)
	err := s.panel.SetClientEnabled(ctx, s.panelCfg.InboundID, email, false)
	if err != nil && !errors.Is(err, panel.ErrClientNotFound) {
		return err
	}
	if err := s.repo.SetEnabledInPanel(ctx, telegramID, false); err != nil {
		return err
	}
	metrics.SweepRevoked.Inc()
	if err := s.events.Publish("revoked", models.RevokedNotification{
		TelegramID: telegramID,
		RevokedAt:  time.Now(),
	}); err != nil {
		s.log.Error("publish revoked event failed",
			slog.Int64("telegram_id", telegramID), sl.Err(err))
	}
	s.log.Info("access revoked in panel", slog.Int64("telegram_id", telegramID))
	return nil
}

// RunSweeper запускает периодический обход до отмены контекста.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx, time.Now()); err != nil {
				s.log.Error("sweep failed", sl.Err(err))
			}
		}
	}
}

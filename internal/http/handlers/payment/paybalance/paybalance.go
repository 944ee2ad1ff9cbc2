// Package paybalance реализует оплату подписки с внутреннего баланса.
package paybalance

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/services/lifecycle"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

// Service описывает оплату с баланса.
type Service interface {
	PayWithBalance(ctx context.Context, telegramID int64, months int) (time.Time, error)
}

// Handler управляет запросами оплаты с баланса.
type Handler struct {
	log      *slog.Logger
	service  Service
	method   *config.PaymentMethodHolder
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service, method *config.PaymentMethodHolder) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		method:   method,
		validate: validator.New(),
	}
}

// Request - тело запроса оплаты с баланса.
type Request struct {
	TelegramID int64 `json:"telegram_id" validate:"required"`
	Months     int   `json:"months" validate:"required,gt=0"`
}

// ServeHTTP godoc
// @Summary Оплатить подписку с баланса
// @Description Списывает стоимость тарифа с внутреннего баланса и продлевает подписку. Отклоняется при недостаточном балансе или если оплата балансом выключена.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body Request true "Параметры оплаты"
// @Success 200 {object} map[string]any "Новый конец подписки"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 402 {object} response.ErrorResponse "Недостаточно средств"
// @Failure 409 {object} response.ErrorResponse "Оплата балансом отключена"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или неизвестный тариф"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /payments/balance [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.paybalance"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if m := h.method.Get(); m.Method == config.PaymentMethodYooKassa {
		log.Info("balance payments disabled by payment method",
			slog.String("method", m.Method))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("balance payments are disabled"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	newEnd, err := h.service.PayWithBalance(r.Context(), req.TelegramID, req.Months)
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance):
		log.Info("insufficient balance", slog.Int64("telegram_id", req.TelegramID))
		w.WriteHeader(http.StatusPaymentRequired)
		render.JSON(w, r, response.Error("insufficient balance"))
		return
	case errors.Is(err, lifecycle.ErrUnknownPlan):
		log.Error("unknown plan", slog.Int("months", req.Months))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("unknown subscription plan"))
		return
	case err != nil:
		log.Error("failed to pay with balance", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not process payment"))
		return
	}

	log.Info("subscription paid from balance", slog.Int64("telegram_id", req.TelegramID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription_end": newEnd,
	}))
}

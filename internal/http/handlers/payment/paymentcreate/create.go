// Package paymentcreate реализует выставление счёта у платёжного провайдера.
package paymentcreate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/services/lifecycle"
)

// Service описывает выставление счёта.
type Service interface {
	CreateInvoice(ctx context.Context, telegramID int64, months int) (string, error)
}

// Handler управляет запросами на выставление счёта.
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

// Request - тело запроса на выставление счёта.
type Request struct {
	TelegramID int64 `json:"telegram_id" validate:"required"`
	Months     int   `json:"months" validate:"required,gt=0"`
}

// ServeHTTP godoc
// @Summary Выставить счёт на оплату подписки
// @Description Создаёт счёт у платёжного провайдера и возвращает ссылку подтверждения. Отклоняется, если внешние платежи выключены текущим методом оплаты.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body Request true "Параметры счёта"
// @Success 200 {object} map[string]any "Ссылка подтверждения"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 409 {object} response.ErrorResponse "Внешние платежи отключены"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или неизвестный тариф"
// @Failure 500 {object} response.ErrorResponse "Ошибка провайдера"
// @Router /payments [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if m := h.method.Get(); m.Method == config.PaymentMethodBalance {
		log.Info("external payments disabled by payment method",
			slog.String("method", m.Method))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("external payments are disabled"))
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

	confirmationURL, err := h.service.CreateInvoice(r.Context(), req.TelegramID, req.Months)
	if err != nil {
		if errors.Is(err, lifecycle.ErrUnknownPlan) {
			log.Error("unknown plan", slog.Int("months", req.Months))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("unknown subscription plan"))
			return
		}
		log.Error("failed to create invoice", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create invoice"))
		return
	}

	log.Info("invoice created", slog.Int64("telegram_id", req.TelegramID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"confirmation_url": confirmationURL,
	}))
}

// Package redeem реализует активацию промокода пользователем.
//
// Каждый отказ типизирован и превращается в короткое понятное сообщение;
// конфликтные исходы (уже активирован, лимит исчерпан) - это ожидаемые
// ответы, а не серверные ошибки.
package redeem

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

	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

// Service описывает активацию промокода.
type Service interface {
	RedeemPromo(ctx context.Context, telegramID int64, code string) (*models.PromoCode, time.Time, error)
}

// Handler управляет запросами активации промокодов.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// Request - тело запроса активации.
type Request struct {
	TelegramID int64  `json:"telegram_id" validate:"required"`
	Code       string `json:"code" validate:"required"`
}

// ServeHTTP godoc
// @Summary Активировать промокод
// @Description Продлевает подписку по промокоду. Отказы типизированы: не найден, неактивен, истёк, лимит исчерпан, уже активирован этим пользователем.
// @Tags Promo
// @Accept json
// @Produce json
// @Param request body Request true "Промокод"
// @Success 200 {object} map[string]any "Новый конец подписки"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Промокод не найден"
// @Failure 409 {object} response.ErrorResponse "Промокод недоступен"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /promo/redeem [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.promo.redeem"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

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

	promo, newEnd, err := h.service.RedeemPromo(r.Context(), req.TelegramID, req.Code)
	if err != nil {
		status, msg := rejectionOf(err)
		if status == http.StatusInternalServerError {
			log.Error("failed to redeem promo", sl.Err(err))
		} else {
			log.Info("promo rejected",
				slog.String("code", req.Code), slog.String("reason", msg))
		}
		w.WriteHeader(status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("promo redeemed",
		slog.Int64("telegram_id", req.TelegramID), slog.String("code", promo.Code))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"months":           promo.Months,
		"subscription_end": newEnd,
	}))
}

func rejectionOf(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrPromoNotFound):
		return http.StatusNotFound, "promo code not found"
	case errors.Is(err, repository.ErrPromoInactive):
		return http.StatusConflict, "promo code is inactive"
	case errors.Is(err, repository.ErrPromoExpired):
		return http.StatusConflict, "promo code has expired"
	case errors.Is(err, repository.ErrPromoExhausted):
		return http.StatusConflict, "promo code usage limit reached"
	case errors.Is(err, repository.ErrPromoAlreadyUsed):
		return http.StatusConflict, "promo code already used"
	default:
		return http.StatusInternalServerError, "could not redeem promo code"
	}
}

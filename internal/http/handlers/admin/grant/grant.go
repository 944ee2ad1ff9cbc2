// Package grant реализует админское продление подписки пользователю.
package grant

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

// Service описывает начисление права доступа.
type Service interface {
	GrantEntitlement(ctx context.Context, telegramID int64, months int, source models.EntitlementSource) (time.Time, error)
}

// Handler управляет админскими запросами продления.
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

// Request - тело запроса продления.
type Request struct {
	TelegramID int64 `json:"telegram_id" validate:"required"`
	Months     int   `json:"months" validate:"required,gt=0"`
}

// ServeHTTP godoc
// @Summary Продлить подписку пользователю
// @Description Продлевает подписку на N месяцев от имени администратора. Будущий конец наращивается, истёкший отсчитывается от текущего момента.
// @Tags Admin
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param request body Request true "Параметры продления"
// @Success 200 {object} map[string]any "Новый конец подписки"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/grant [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.grant"
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

	newEnd, err := h.service.GrantEntitlement(r.Context(), req.TelegramID, req.Months, models.SourceAdmin)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to grant entitlement", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not grant entitlement"))
		return
	}

	log.Info("entitlement granted by admin",
		slog.Int64("telegram_id", req.TelegramID), slog.Int("months", req.Months))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription_end": newEnd,
	}))
}

// Package addbalance реализует админское пополнение баланса пользователя.
package addbalance

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

// Repository описывает пополнение баланса в хранилище.
type Repository interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	AddBalance(ctx context.Context, telegramID int64, amount float64) error
}

// Handler управляет пополнением баланса.
type Handler struct {
	log      *slog.Logger
	repo     Repository
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, repo Repository) *Handler {
	return &Handler{
		log:      log,
		repo:     repo,
		validate: validator.New(),
	}
}

// Request - тело запроса пополнения.
type Request struct {
	TelegramID int64   `json:"telegram_id" validate:"required"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
}

// ServeHTTP godoc
// @Summary Пополнить баланс пользователя
// @Description Зачисляет сумму на внутренний баланс. Неизвестный пользователь отклоняется.
// @Tags Admin
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param request body Request true "Параметры пополнения"
// @Success 200 {object} response.Response "Баланс пополнен"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/balance [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.addbalance"
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

	if _, err := h.repo.GetUserByTelegramID(r.Context(), req.TelegramID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to look up user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not add balance"))
		return
	}

	if err := h.repo.AddBalance(r.Context(), req.TelegramID, req.Amount); err != nil {
		log.Error("failed to add balance", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not add balance"))
		return
	}

	log.Info("balance topped up",
		slog.Int64("telegram_id", req.TelegramID),
		slog.Float64("amount", req.Amount))
	render.JSON(w, r, response.OK())
}

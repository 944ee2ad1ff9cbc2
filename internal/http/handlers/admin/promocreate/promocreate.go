// Package promocreate реализует админское создание промокодов.
package promocreate

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

// Repository описывает создание промокода в хранилище.
type Repository interface {
	CreatePromoCode(ctx context.Context, code string, months, maxUses int, expiresAt *time.Time) (*models.PromoCode, error)
}

// Handler управляет созданием промокодов.
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

// Request - тело запроса создания промокода.
type Request struct {
	Code      string     `json:"code" validate:"required"`
	Months    int        `json:"months" validate:"required,gt=0"`
	MaxUses   int        `json:"max_uses" validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ServeHTTP godoc
// @Summary Создать промокод
// @Description Заводит промокод с лимитом активаций и необязательным сроком годности. Дубликат кода отклоняется.
// @Tags Admin
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param request body Request true "Параметры промокода"
// @Success 200 {object} map[string]any "Созданный промокод"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 409 {object} response.ErrorResponse "Код уже существует"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/promo [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.promocreate"
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

	promo, err := h.repo.CreatePromoCode(r.Context(), req.Code, req.Months, req.MaxUses, req.ExpiresAt)
	if err != nil {
		if errors.Is(err, repository.ErrPromoDuplicate) {
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("promo code already exists"))
			return
		}
		log.Error("failed to create promo code", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create promo code"))
		return
	}

	log.Info("promo code created", slog.String("code", promo.Code))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"id":       promo.ID,
		"code":     promo.Code,
		"months":   promo.Months,
		"max_uses": promo.MaxUses,
	}))
}

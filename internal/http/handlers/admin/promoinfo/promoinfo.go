// Package promoinfo реализует админский просмотр одного промокода по коду.
package promoinfo

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

// Repository описывает чтение промокода из хранилища.
type Repository interface {
	GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error)
}

// Handler управляет просмотром промокода.
type Handler struct {
	log  *slog.Logger
	repo Repository
}

// New создает новый Handler.
func New(log *slog.Logger, repo Repository) *Handler {
	return &Handler{log: log, repo: repo}
}

// ServeHTTP godoc
// @Summary Промокод по коду
// @Description Возвращает промокод с лимитом и счётчиком активаций.
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Param code path string true "Код"
// @Success 200 {object} map[string]any "Промокод"
// @Failure 404 {object} response.ErrorResponse "Промокод не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/promo/{code} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.promoinfo"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	code := chi.URLParam(r, "code")
	promo, err := h.repo.GetPromoByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, repository.ErrPromoNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("promo code not found"))
			return
		}
		log.Error("failed to get promo code", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get promo code"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"id":           promo.ID,
		"code":         promo.Code,
		"months":       promo.Months,
		"max_uses":     promo.MaxUses,
		"current_uses": promo.CurrentUses,
		"is_active":    promo.IsActive,
		"expires_at":   promo.ExpiresAt,
	}))
}

// Package promolist реализует админский обзор промокодов со статистикой
// активаций.
package promolist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
)

// Repository описывает чтение промокодов из хранилища.
type Repository interface {
	ListPromoCodes(ctx context.Context) ([]*models.PromoCode, error)
}

// Handler управляет обзором промокодов.
type Handler struct {
	log  *slog.Logger
	repo Repository
}

// New создает новый Handler.
func New(log *slog.Logger, repo Repository) *Handler {
	return &Handler{log: log, repo: repo}
}

// ServeHTTP godoc
// @Summary Список промокодов
// @Description Возвращает все промокоды с лимитами и счётчиками активаций.
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]any "Промокоды"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/promo [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.promolist"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	promos, err := h.repo.ListPromoCodes(r.Context())
	if err != nil {
		log.Error("failed to list promo codes", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list promo codes"))
		return
	}

	items := make([]map[string]any, 0, len(promos))
	for _, p := range promos {
		items = append(items, map[string]any{
			"id":           p.ID,
			"code":         p.Code,
			"months":       p.Months,
			"max_uses":     p.MaxUses,
			"current_uses": p.CurrentUses,
			"is_active":    p.IsActive,
			"expires_at":   p.ExpiresAt,
		})
	}
	render.JSON(w, r, response.OKWithData(map[string]any{"promocodes": items}))
}

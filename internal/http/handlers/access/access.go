// Package access реализует проверку права доступа на момент подключения.
// Ответ авторитетен из хранилища, состояние панели не опрашивается.
package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

// Service описывает проверку доступа.
type Service interface {
	HasAccess(ctx context.Context, telegramID int64) (bool, *time.Time, error)
}

// Handler управляет запросами проверки доступа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Проверить право доступа пользователя
// @Description Отвечает, действует ли подписка прямо сейчас. Неизвестный пользователь - доступа нет.
// @Tags Access
// @Produce json
// @Param telegramID path int true "Telegram ID"
// @Success 200 {object} map[string]any "Статус доступа"
// @Failure 400 {object} response.ErrorResponse "Некорректный идентификатор"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /access/{telegramID} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil {
		log.Error("invalid telegram id", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid telegram id"))
		return
	}

	hasAccess, end, err := h.service.HasAccess(r.Context(), telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			render.JSON(w, r, response.OKWithData(map[string]any{
				"has_access": false,
			}))
			return
		}
		log.Error("failed to check access", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not check access"))
		return
	}

	data := map[string]any{"has_access": hasAccess}
	if end != nil {
		data["subscription_end"] = end
	}
	render.JSON(w, r, response.OKWithData(data))
}

// Package connection реализует выдачу ссылки подключения пользователю.
// Первый запрос выдаёт профиль в панели, повторные возвращают ту же ссылку.
package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

// Service описывает выдачу ссылки подключения.
type Service interface {
	ConnectionURI(ctx context.Context, telegramID int64) (string, error)
}

// Handler управляет запросами ссылки подключения.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Получить ссылку подключения
// @Description Возвращает vless-ссылку пользователя, при первом обращении выдавая профиль в панели. Повторные вызовы идемпотентны.
// @Tags Access
// @Produce json
// @Param telegramID path int true "Telegram ID"
// @Success 200 {object} map[string]any "Ссылка подключения"
// @Failure 400 {object} response.ErrorResponse "Некорректный идентификатор"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка панели"
// @Router /users/{telegramID}/connection [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.connection"
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

	uri, err := h.service.ConnectionURI(r.Context(), telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to build connection uri", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not issue connection link"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"connection_uri": uri,
	}))
}

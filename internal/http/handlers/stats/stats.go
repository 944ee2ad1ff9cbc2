// Package stats реализует выдачу статистики трафика пользователя.
// Счётчики читаются из панели и кэшируются на короткий срок: это
// операции только на чтение, полосу мутаций они не занимают.
package stats

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/panel"
)

// cacheTTL - время жизни кэша статистики.
const cacheTTL = time.Minute

// PanelReader описывает чтение счётчиков из панели.
type PanelReader interface {
	ClientTraffic(ctx context.Context, email string) (panel.TrafficStats, error)
	Onlines(ctx context.Context) ([]string, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Stats - ответ со статистикой пользователя.
type Stats struct {
	UploadBytes   int64 `json:"upload_bytes"`
	DownloadBytes int64 `json:"download_bytes"`
	Online        bool  `json:"online"`
}

// Handler управляет запросами статистики.
type Handler struct {
	log   *slog.Logger
	panel PanelReader
	cache Cache
}

// New создает новый Handler.
func New(log *slog.Logger, panelReader PanelReader, cache Cache) *Handler {
	return &Handler{log: log, panel: panelReader, cache: cache}
}

// ServeHTTP godoc
// @Summary Статистика трафика пользователя
// @Description Возвращает счётчики входящего и исходящего трафика и признак "онлайн". Ответ кэшируется на минуту.
// @Tags Stats
// @Produce json
// @Param telegramID path int true "Telegram ID"
// @Success 200 {object} map[string]any "Статистика"
// @Failure 400 {object} response.ErrorResponse "Некорректный идентификатор"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /users/{telegramID}/stats [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stats"
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
	email := panel.ClientEmail(telegramID)

	cacheKey := "stats:" + email
	var cached Stats
	found, err := h.cache.Get(r.Context(), cacheKey, &cached)
	if err != nil {
		log.Warn("cache read failed", sl.Err(err))
	}
	if found {
		render.JSON(w, r, response.OKWithData(cached))
		return
	}

	traffic, err := h.panel.ClientTraffic(r.Context(), email)
	if err != nil {
		log.Error("failed to read traffic", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read traffic stats"))
		return
	}

	onlines, err := h.panel.Onlines(r.Context())
	if err != nil {
		log.Error("failed to read onlines", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read online set"))
		return
	}

	stats := Stats{
		UploadBytes:   traffic.UploadBytes,
		DownloadBytes: traffic.DownloadBytes,
	}
	for _, online := range onlines {
		if online == email {
			stats.Online = true
			break
		}
	}

	if err := h.cache.Set(r.Context(), cacheKey, stats, cacheTTL); err != nil {
		log.Warn("cache write failed", sl.Err(err))
	}
	render.JSON(w, r, response.OKWithData(stats))
}

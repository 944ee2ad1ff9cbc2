// Package paymentmethod реализует админское переключение метода оплаты.
// Значение живёт в версионируемом runtime-холдере и применяется к новым
// запросам сразу, без перезапуска сервиса.
package paymentmethod

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
)

// Handler управляет переключением метода оплаты.
type Handler struct {
	log      *slog.Logger
	method   *config.PaymentMethodHolder
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, method *config.PaymentMethodHolder) *Handler {
	return &Handler{
		log:      log,
		method:   method,
		validate: validator.New(),
	}
}

// Request - тело запроса переключения.
type Request struct {
	Method string `json:"method" validate:"required,oneof=yookassa balance both"`
}

// ServeHTTP godoc
// @Summary Переключить метод оплаты
// @Description Меняет доступный метод оплаты (yookassa, balance или both) на лету.
// @Tags Admin
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param request body Request true "Метод оплаты"
// @Success 200 {object} map[string]any "Текущий метод и версия"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Неизвестный метод"
// @Router /admin/payment-method [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.paymentmethod"
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

	if ok := h.method.Set(req.Method); !ok {
		log.Error("unsupported payment method", slog.String("method", req.Method))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("unsupported payment method"))
		return
	}

	current := h.method.Get()
	log.Info("payment method switched",
		slog.String("method", current.Method),
		slog.Uint64("version", current.Version))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"method":  current.Method,
		"version": current.Version,
	}))
}

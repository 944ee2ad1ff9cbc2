// Package register реализует регистрацию пользователя при первом контакте.
// Новая учётка получает пробное окно подписки; повторная регистрация того
// же telegram_id идемпотентна и возвращает уже существующую запись.
package register

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-access-manager/internal/http/response"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
)

// Service описывает регистрацию пользователя.
type Service interface {
	RegisterUser(ctx context.Context, telegramID int64, fullName, username string) (*models.User, error)
}

// Handler управляет запросами регистрации.
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

// Request - тело запроса регистрации.
type Request struct {
	TelegramID int64  `json:"telegram_id" validate:"required"`
	FullName   string `json:"full_name"`
	Username   string `json:"username"`
}

// ServeHTTP godoc
// @Summary Зарегистрировать пользователя
// @Description Заводит учётку с пробным окном подписки. Повторный вызов для известного telegram_id ничего не меняет и возвращает существующую запись.
// @Tags Users
// @Accept json
// @Produce json
// @Param request body Request true "Данные пользователя"
// @Success 200 {object} map[string]any "Учётка и конец подписки"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /users/register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.register"
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

	user, err := h.service.RegisterUser(r.Context(), req.TelegramID, req.FullName, req.Username)
	if err != nil {
		log.Error("failed to register user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not register user"))
		return
	}

	log.Info("user registered", slog.Int64("telegram_id", user.TelegramID))
	data := map[string]any{"telegram_id": user.TelegramID}
	if user.SubscriptionEnd != nil {
		data["subscription_end"] = user.SubscriptionEnd
	}
	render.JSON(w, r, response.OKWithData(data))
}

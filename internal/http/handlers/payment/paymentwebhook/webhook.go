// Package paymentwebhook реализует приём колбэка платёжного провайдера.
//
// Провайдер доставляет уведомление минимум один раз; дедупликацию по
// payment_id делает сервис (атомарное закрытие ожидающего платежа), так что
// повторная доставка здесь просто подтверждается кодом 200.
package paymentwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
	"github.com/magabrotheeeer/vpn-access-manager/internal/paymentprovider"
)

// Service описывает обработку подтверждённой оплаты.
type Service interface {
	HandlePaymentSucceeded(ctx context.Context, paymentID string) (*models.PendingPayment, error)
}

// Handler принимает и проверяет webhook провайдера.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string // Секрет для проверки подписи
}

// New создает новый Handler.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// Проверка подписи webhook (X-Api-Signature), сравнение constant-time.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP godoc
// @Summary Webhook платёжного провайдера
// @Description Принимает уведомление об изменении статуса платежа. Подпись проверяется по X-Api-Signature. Повторные доставки подтверждаются без повторного зачисления.
// @Tags Payments
// @Accept json
// @Success 200 "Уведомление обработано"
// @Failure 400 "Некорректное тело запроса"
// @Failure 401 "Неверная подпись"
// @Failure 500 "Ошибка обработки, провайдер повторит доставку"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload paymentprovider.WebhookNotification
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if strings.ToLower(payload.Event) != paymentprovider.EventPaymentSucceeded {
		// Остальные события не двигают подписку, подтверждаем и забываем.
		log.Info("ignoring webhook event", slog.String("event", payload.Event))
		w.WriteHeader(http.StatusOK)
		return
	}

	payment, err := h.service.HandlePaymentSucceeded(r.Context(), payload.Object.ID)
	if err != nil {
		// Не подтверждаем: провайдер доставит ещё раз, зачисление
		// останется однократным благодаря атомарному закрытию платежа.
		log.Error("failed to process payment", sl.Err(err),
			slog.String("payment_id", payload.Object.ID))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if payment == nil {
		log.Info("duplicate or unknown payment acked",
			slog.String("payment_id", payload.Object.ID))
	} else {
		log.Info("payment processed",
			slog.String("payment_id", payload.Object.ID),
			slog.Int64("telegram_id", payment.TelegramID))
	}
	w.WriteHeader(http.StatusOK)
}

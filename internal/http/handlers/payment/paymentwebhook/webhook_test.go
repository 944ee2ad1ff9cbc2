package paymentwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
)

type fakeService struct {
	calls  []string
	result *models.PendingPayment
	err    error
}

func (s *fakeService) HandlePaymentSucceeded(_ context.Context, paymentID string) (*models.PendingPayment, error) {
	s.calls = append(s.calls, paymentID)
	return s.result, s.err
}

const secret = "test-secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func doRequest(t *testing.T, h *Handler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Api-Signature", signature)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func newHandler(svc Service) *Handler {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, secret)
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	svc := &fakeService{}
	rr := doRequest(t, newHandler(svc), `{"event":"payment.succeeded"}`, "")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, svc.calls)
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	svc := &fakeService{}
	rr := doRequest(t, newHandler(svc), `{"event":"payment.succeeded"}`, "bm90LXRoZS1zaWc=")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, svc.calls)
}

func TestWebhook_SucceededEventProcessed(t *testing.T) {
	svc := &fakeService{result: &models.PendingPayment{PaymentID: "pay-1", TelegramID: 42}}
	body := `{"event":"payment.succeeded","object":{"id":"pay-1","status":"succeeded"}}`

	rr := doRequest(t, newHandler(svc), body, sign(body))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{"pay-1"}, svc.calls)
}

func TestWebhook_DuplicateDeliveryAcked(t *testing.T) {
	// Сервис возвращает nil: платёж уже зачислен, подтверждаем без ошибки.
	svc := &fakeService{result: nil}
	body := `{"event":"payment.succeeded","object":{"id":"pay-1"}}`

	rr := doRequest(t, newHandler(svc), body, sign(body))

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhook_OtherEventsIgnored(t *testing.T) {
	svc := &fakeService{}
	body := `{"event":"payment.canceled","object":{"id":"pay-1"}}`

	rr := doRequest(t, newHandler(svc), body, sign(body))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, svc.calls, "non-succeeded events must not touch the service")
}

func TestWebhook_ServiceErrorNotAcked(t *testing.T) {
	svc := &fakeService{err: errors.New("db down")}
	body := `{"event":"payment.succeeded","object":{"id":"pay-1"}}`

	rr := doRequest(t, newHandler(svc), body, sign(body))

	assert.Equal(t, http.StatusInternalServerError, rr.Code,
		"provider must retry when processing fails")
}

func TestWebhook_MalformedBodyRejected(t *testing.T) {
	svc := &fakeService{}
	body := `{not json`

	rr := doRequest(t, newHandler(svc), body, sign(body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

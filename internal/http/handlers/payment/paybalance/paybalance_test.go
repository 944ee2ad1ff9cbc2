package paybalance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

type fakeService struct {
	err   error
	calls int
}

func (s *fakeService) PayWithBalance(_ context.Context, _ int64, _ int) (time.Time, error) {
	s.calls++
	if s.err != nil {
		return time.Time{}, s.err
	}
	return time.Now().Add(30 * 24 * time.Hour), nil
}

func doRequest(t *testing.T, svc Service, method string, body string) *httptest.ResponseRecorder {
	t.Helper()
	holder := config.NewPaymentMethodHolder(method)
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, holder)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/balance", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPayBalance_Success(t *testing.T) {
	rr := doRequest(t, &fakeService{}, config.PaymentMethodBoth, `{"telegram_id":42,"months":1}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "subscription_end")
}

func TestPayBalance_InsufficientFunds(t *testing.T) {
	svc := &fakeService{err: repository.ErrInsufficientBalance}
	rr := doRequest(t, svc, config.PaymentMethodBoth, `{"telegram_id":42,"months":1}`)

	assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Contains(t, rr.Body.String(), "insufficient balance")
}

func TestPayBalance_DisabledByMethodSwitch(t *testing.T) {
	svc := &fakeService{}
	rr := doRequest(t, svc, config.PaymentMethodYooKassa, `{"telegram_id":42,"months":1}`)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Zero(t, svc.calls, "payment must not reach the service when disabled")
}

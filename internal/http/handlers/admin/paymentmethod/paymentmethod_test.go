package paymentmethod

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
)

func doRequest(t *testing.T, holder *config.PaymentMethodHolder, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), holder)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/payment-method", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPaymentMethod_Switch(t *testing.T) {
	holder := config.NewPaymentMethodHolder(config.PaymentMethodBoth)

	rr := doRequest(t, holder, `{"method":"balance"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	current := holder.Get()
	assert.Equal(t, config.PaymentMethodBalance, current.Method)
	assert.Equal(t, uint64(2), current.Version, "each switch bumps the version")
}

func TestPaymentMethod_UnknownValueRejected(t *testing.T) {
	holder := config.NewPaymentMethodHolder(config.PaymentMethodBoth)

	rr := doRequest(t, holder, `{"method":"cash"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, config.PaymentMethodBoth, holder.Get().Method)
}

package redeem

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

	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

type fakeService struct {
	promo *models.PromoCode
	err   error
}

func (s *fakeService) RedeemPromo(_ context.Context, _ int64, _ string) (*models.PromoCode, time.Time, error) {
	if s.err != nil {
		return nil, time.Time{}, s.err
	}
	return s.promo, time.Now().Add(30 * 24 * time.Hour), nil
}

func doRequest(t *testing.T, svc Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/promo/redeem", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRedeem_Success(t *testing.T) {
	svc := &fakeService{promo: &models.PromoCode{Code: "WELCOME", Months: 1}}
	rr := doRequest(t, svc, `{"telegram_id":42,"code":"WELCOME"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"OK"`)
	assert.Contains(t, rr.Body.String(), "subscription_end")
}

func TestRedeem_TypedRejections(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"not found", repository.ErrPromoNotFound, http.StatusNotFound, "promo code not found"},
		{"inactive", repository.ErrPromoInactive, http.StatusConflict, "promo code is inactive"},
		{"expired", repository.ErrPromoExpired, http.StatusConflict, "promo code has expired"},
		{"exhausted", repository.ErrPromoExhausted, http.StatusConflict, "promo code usage limit reached"},
		{"already used", repository.ErrPromoAlreadyUsed, http.StatusConflict, "promo code already used"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, &fakeService{err: tc.err}, `{"telegram_id":42,"code":"X"}`)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.wantMsg)
		})
	}
}

func TestRedeem_ValidationFailure(t *testing.T) {
	rr := doRequest(t, &fakeService{}, `{"telegram_id":42}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRedeem_MalformedBody(t *testing.T) {
	rr := doRequest(t, &fakeService{}, `{`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

package promolist

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
)

type fakeRepo struct {
	promos []*models.PromoCode
}

func (r *fakeRepo) ListPromoCodes(_ context.Context) ([]*models.PromoCode, error) {
	return r.promos, nil
}

func TestPromoList(t *testing.T) {
	repo := &fakeRepo{promos: []*models.PromoCode{
		{ID: 1, Code: "WELCOME", Months: 1, MaxUses: 10, CurrentUses: 3, IsActive: true},
		{ID: 2, Code: "SPENT", Months: 1, MaxUses: 1, CurrentUses: 1, IsActive: true},
	}}
	handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), repo)

	req := httptest.NewRequest(http.MethodGet, "/admin/promo", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"WELCOME"`)
	assert.Contains(t, rr.Body.String(), `"current_uses":3`)
	assert.Contains(t, rr.Body.String(), `"code":"SPENT"`)
}

func TestPromoList_Empty(t *testing.T) {
	handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), &fakeRepo{})

	req := httptest.NewRequest(http.MethodGet, "/admin/promo", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"promocodes":[]`)
}

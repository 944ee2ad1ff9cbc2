package addbalance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

type fakeRepo struct {
	balances map[int64]float64
}

func (r *fakeRepo) GetUserByTelegramID(_ context.Context, id int64) (*models.User, error) {
	if _, ok := r.balances[id]; !ok {
		return nil, repository.ErrUserNotFound
	}
	return &models.User{TelegramID: id, Balance: r.balances[id]}, nil
}

func (r *fakeRepo) AddBalance(_ context.Context, id int64, amount float64) error {
	r.balances[id] += amount
	return nil
}

func doRequest(repo Repository, body string) *httptest.ResponseRecorder {
	handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), repo)
	req := httptest.NewRequest(http.MethodPost, "/admin/balance", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestAddBalance(t *testing.T) {
	repo := &fakeRepo{balances: map[int64]float64{42: 100}}
	rr := doRequest(repo, `{"telegram_id": 42, "amount": 50}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 150, repo.balances[42], 0.01)
}

func TestAddBalance_UnknownUser(t *testing.T) {
	repo := &fakeRepo{balances: map[int64]float64{}}
	rr := doRequest(repo, `{"telegram_id": 42, "amount": 50}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAddBalance_NonPositiveAmount(t *testing.T) {
	repo := &fakeRepo{balances: map[int64]float64{42: 100}}
	rr := doRequest(repo, `{"telegram_id": 42, "amount": -5}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.InDelta(t, 100, repo.balances[42], 0.01, "rejected request must not change the balance")
}

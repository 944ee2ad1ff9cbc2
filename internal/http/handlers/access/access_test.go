package access

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

type fakeService struct {
	hasAccess bool
	end       *time.Time
	err       error
}

func (s *fakeService) HasAccess(_ context.Context, _ int64) (bool, *time.Time, error) {
	return s.hasAccess, s.end, s.err
}

func doRequest(t *testing.T, svc Service, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/access/{telegramID}", New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).ServeHTTP)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestAccess_Granted(t *testing.T) {
	end := time.Now().Add(24 * time.Hour)
	rr := doRequest(t, &fakeService{hasAccess: true, end: &end}, "/access/42")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"has_access":true`)
	assert.Contains(t, rr.Body.String(), "subscription_end")
}

func TestAccess_Denied(t *testing.T) {
	end := time.Now().Add(-time.Hour)
	rr := doRequest(t, &fakeService{hasAccess: false, end: &end}, "/access/42")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"has_access":false`)
}

func TestAccess_UnknownUserDenied(t *testing.T) {
	rr := doRequest(t, &fakeService{err: repository.ErrUserNotFound}, "/access/42")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"has_access":false`)
}

func TestAccess_BadID(t *testing.T) {
	rr := doRequest(t, &fakeService{}, "/access/abc")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

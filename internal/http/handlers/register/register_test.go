package register

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
)

type fakeService struct {
	calls int
	user  *models.User
}

func (s *fakeService) RegisterUser(_ context.Context, id int64, fullName, username string) (*models.User, error) {
	s.calls++
	if s.user == nil {
		end := time.Now().Add(3 * 24 * time.Hour)
		s.user = &models.User{TelegramID: id, FullName: fullName, Username: username, SubscriptionEnd: &end}
	}
	return s.user, nil
}

func doRequest(svc Service, body string) *httptest.ResponseRecorder {
	handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	req := httptest.NewRequest(http.MethodPost, "/users/register", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestRegister_NewUserGetsTrialWindow(t *testing.T) {
	svc := &fakeService{}
	rr := doRequest(svc, `{"telegram_id": 42, "full_name": "Ivan", "username": "ivan"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"telegram_id":42`)
	assert.Contains(t, rr.Body.String(), "subscription_end")
}

func TestRegister_RepeatCallIsIdempotent(t *testing.T) {
	svc := &fakeService{}
	first := doRequest(svc, `{"telegram_id": 42}`)
	second := doRequest(svc, `{"telegram_id": 42}`)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestRegister_MissingTelegramID(t *testing.T) {
	rr := doRequest(&fakeService{}, `{"full_name": "Ivan"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRegister_BadJSON(t *testing.T) {
	rr := doRequest(&fakeService{}, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

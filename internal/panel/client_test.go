package panel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
)

// fakePanel эмулирует 3x-ui: cookie-сессию, get/update инбаунда,
// счётчики трафика и список онлайн-клиентов.
type fakePanel struct {
	t *testing.T

	mu           sync.Mutex
	inbound      map[string]any
	logins       int
	updates      int
	sessionValid bool
	traffic      map[string]TrafficStats
	onlines      []string
}

func newFakePanel(t *testing.T) *fakePanel {
	settings, err := json.Marshal(map[string]any{
		"clients":    []map[string]any{},
		"decryption": "none",
	})
	require.NoError(t, err)

	return &fakePanel{
		t: t,
		inbound: map[string]any{
			"up":             int64(111),
			"down":           int64(222),
			"total":          int64(0),
			"remark":         "edge-1",
			"enable":         true,
			"expiryTime":     int64(0),
			"listen":         "",
			"port":           443,
			"protocol":       "vless",
			"settings":       string(settings),
			"streamSettings": `{"network":"tcp","security":"reality"}`,
			"sniffing":       `{"enabled":true}`,
		},
		traffic: map[string]TrafficStats{},
	}
}

func (f *fakePanel) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.logins++
		if r.FormValue("username") != "admin" || r.FormValue("password") != "secret" {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "msg": "bad credentials"})
			return
		}
		f.sessionValid = true
		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "session-token"})
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			valid := f.sessionValid
			f.mu.Unlock()
			if c, err := r.Cookie("3x-ui"); err != nil || c.Value != "session-token" || !valid {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/panel/api/inbounds/get/7", authed(func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "obj": f.inbound})
	}))

	mux.HandleFunc("/panel/api/inbounds/get/404", authed(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "msg": "inbound not found"})
	}))

	mux.HandleFunc("/panel/api/inbounds/update/7", authed(func(w http.ResponseWriter, r *http.Request) {
		var got map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&got))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.updates++
		// Панель заменяет объект целиком: что не прислали, то потеряно.
		f.inbound = got
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))

	mux.HandleFunc("/panel/api/inbounds/getClientTraffics/", authed(func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Path[len("/panel/api/inbounds/getClientTraffics/"):]
		f.mu.Lock()
		stats, ok := f.traffic[email]
		f.mu.Unlock()
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "obj": nil})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true,
			"obj": map[string]int64{"up": stats.UploadBytes, "down": stats.DownloadBytes}})
	}))

	mux.HandleFunc("/panel/api/inbounds/onlines", authed(func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "obj": f.onlines})
	}))

	return mux
}

func newTestClient(t *testing.T, serverURL string) *Client {
	cfg := config.Panel{
		APIURL:         serverURL,
		BasePath:       "/panel",
		Username:       "admin",
		Password:       "secret",
		InboundID:      7,
		RequestTimeout: 5 * time.Second,
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client, err := NewClient(cfg, log)
	require.NoError(t, err)
	return client
}

func TestClient_LoginRejectsBadCredentials(t *testing.T) {
	fake := newFakePanel(t)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	cfg := config.Panel{
		APIURL:         srv.URL,
		BasePath:       "/panel",
		Username:       "admin",
		Password:       "wrong",
		RequestTimeout: 5 * time.Second,
	}
	client, err := NewClient(cfg, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	require.NoError(t, err)

	err = client.Login(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestClient_GetInbound(t *testing.T) {
	fake := newFakePanel(t)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	snap, err := client.GetInbound(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 443, snap.Port)
	assert.Equal(t, "edge-1", snap.Remark)
	assert.Equal(t, int64(111), snap.Up)

	settings, err := snap.ParseSettings()
	require.NoError(t, err)
	assert.Empty(t, settings.Clients)
	assert.Equal(t, "none", settings.Decryption)
}

func TestClient_GetInbound_NotFound(t *testing.T) {
	fake := newFakePanel(t)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetInbound(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ReauthenticatesOnceOnExpiredSession(t *testing.T) {
	fake := newFakePanel(t)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetInbound(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.logins)

	// Панель сбросила сессию: следующий вызов должен молча перелогиниться.
	fake.mu.Lock()
	fake.sessionValid = false
	fake.mu.Unlock()

	_, err = client.GetInbound(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.logins)
}

func TestClient_TrafficMissingDataIsZero(t *testing.T) {
	fake := newFakePanel(t)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	stats, err := client.ClientTraffic(context.Background(), "user_42")
	require.NoError(t, err)
	assert.Zero(t, stats.UploadBytes)
	assert.Zero(t, stats.DownloadBytes)

	fake.mu.Lock()
	fake.traffic["user_42"] = TrafficStats{UploadBytes: 10, DownloadBytes: 20}
	fake.mu.Unlock()

	stats, err = client.ClientTraffic(context.Background(), "user_42")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.UploadBytes)
	assert.Equal(t, int64(20), stats.DownloadBytes)
}

func TestClient_Onlines(t *testing.T) {
	fake := newFakePanel(t)
	fake.onlines = []string{"user_1", "user_2"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	onlines, err := client.Onlines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"user_1", "user_2"}, onlines)
}

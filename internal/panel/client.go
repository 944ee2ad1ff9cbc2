package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/metrics"
)

// apiResponse - конверт всех ответов панели.
type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// Client держит http-сессию с панелью. Аутентификация кукой: панель
// выдаёт session cookie на POST /login, при её истечении каждая публичная
// операция один раз прозрачно перелогинивается и только потом отдаёт ошибку.
type Client struct {
	cfg        config.Panel
	httpClient *http.Client
	log        *slog.Logger

	mu       sync.Mutex
	loggedIn bool
}

// NewClient создаёт клиента панели с cookie jar и таймаутом из конфига.
func NewClient(cfg config.Panel, log *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("panel: cookie jar: %w", err)
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: cfg.RequestTimeout,
		},
		log: log,
	}, nil
}

func (c *Client) loginURL() string {
	return strings.TrimRight(c.cfg.APIURL, "/") + "/login"
}

func (c *Client) apiURL(path string) string {
	base := strings.TrimRight(c.cfg.APIURL, "/")
	if bp := strings.Trim(c.cfg.BasePath, "/"); bp != "" {
		base = base + "/" + bp
	}
	return base + "/api" + path
}

// Login аутентифицируется на панели. Возвращает ErrAuth при отказе,
// ErrTransport при сетевой ошибке.
func (c *Client) Login(ctx context.Context) error {
	const op = "panel.Login"

	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL(),
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.PanelRequests.WithLabelValues("login", "transport_error").Inc()
		return fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.PanelRequests.WithLabelValues("login", "auth_error").Inc()
		return fmt.Errorf("%s: %w: status %d", op, ErrAuth, resp.StatusCode)
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		metrics.PanelRequests.WithLabelValues("login", "auth_error").Inc()
		return fmt.Errorf("%s: %w: non-json login response", op, ErrAuth)
	}
	if !api.Success {
		metrics.PanelRequests.WithLabelValues("login", "auth_error").Inc()
		return fmt.Errorf("%s: %w: %s", op, ErrAuth, api.Msg)
	}

	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()

	metrics.PanelRequests.WithLabelValues("login", "ok").Inc()
	c.log.Debug("panel login successful")
	return nil
}

// do выполняет запрос к API панели, при необходимости логинясь заранее,
// и один раз перелогинивается при протухшей сессии.
func (c *Client) do(ctx context.Context, op, method, path string, body any) (*apiResponse, error) {
	c.mu.Lock()
	loggedIn := c.loggedIn
	c.mu.Unlock()
	if !loggedIn {
		if err := c.Login(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	api, err := c.roundTrip(ctx, op, method, path, body)
	if err == nil {
		return api, nil
	}
	if !isAuthFailure(err) {
		return nil, err
	}

	// Сессия истекла: ровно один повторный логин перед тем, как сдаться.
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
	if err := c.Login(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c.roundTrip(ctx, op, method, path, body)
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body any) (*apiResponse, error) {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL(path), reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.PanelRequests.WithLabelValues(op, "transport_error").Inc()
		return nil, fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		metrics.PanelRequests.WithLabelValues(op, "auth_error").Inc()
		return nil, fmt.Errorf("%s: %w: status %d", op, ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		metrics.PanelRequests.WithLabelValues(op, "transport_error").Inc()
		return nil, fmt.Errorf("%s: %w: status %d", op, ErrTransport, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.PanelRequests.WithLabelValues(op, "transport_error").Inc()
		return nil, fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		// Истёкшая сессия отдаёт HTML-страницу логина вместо JSON.
		metrics.PanelRequests.WithLabelValues(op, "auth_error").Inc()
		c.log.Warn("panel returned non-json response", slog.String("op", op),
			slog.String("snippet", snippet(raw)))
		return nil, fmt.Errorf("%s: %w: non-json response", op, ErrAuth)
	}
	metrics.PanelRequests.WithLabelValues(op, "ok").Inc()
	return &api, nil
}

func isAuthFailure(err error) bool {
	return errors.Is(err, ErrAuth)
}

func snippet(raw []byte) string {
	const max = 100
	s := string(raw)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// GetInbound читает инбаунд целиком. ErrNotFound - если панель его не знает.
func (c *Client) GetInbound(ctx context.Context, inboundID int) (*InboundSnapshot, error) {
	const op = "panel.GetInbound"

	api, err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/inbounds/get/%d", inboundID), nil)
	if err != nil {
		return nil, err
	}
	if !api.Success {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrNotFound, api.Msg)
	}

	var snap InboundSnapshot
	if err := json.Unmarshal(api.Obj, &snap); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &snap, nil
}

// UpdateInbound заменяет инбаунд целиком. Снапшот обязан быть получен
// предшествующим GetInbound, чтобы не потерять соседние поля.
func (c *Client) UpdateInbound(ctx context.Context, inboundID int, snap *InboundSnapshot) error {
	const op = "panel.UpdateInbound"

	api, err := c.do(ctx, op, http.MethodPost, fmt.Sprintf("/inbounds/update/%d", inboundID), snap)
	if err != nil {
		return err
	}
	if !api.Success {
		return fmt.Errorf("%s: %w: %s", op, ErrTransport, api.Msg)
	}
	return nil
}

// ClientTraffic возвращает счётчики трафика клиента.
// Отсутствие данных - это нули, а не ошибка.
func (c *Client) ClientTraffic(ctx context.Context, email string) (TrafficStats, error) {
	const op = "panel.ClientTraffic"

	api, err := c.do(ctx, op, http.MethodGet, "/inbounds/getClientTraffics/"+url.PathEscape(email), nil)
	if err != nil {
		return TrafficStats{}, err
	}
	if !api.Success || len(api.Obj) == 0 || string(api.Obj) == "null" {
		return TrafficStats{}, nil
	}
	var stats TrafficStats
	if err := json.Unmarshal(api.Obj, &stats); err != nil {
		return TrafficStats{}, nil
	}
	return stats, nil
}

// Onlines возвращает метки клиентов, находящихся онлайн.
// Отсутствие данных - пустой список.
func (c *Client) Onlines(ctx context.Context) ([]string, error) {
	const op = "panel.Onlines"

	api, err := c.do(ctx, op, http.MethodPost, "/inbounds/onlines", nil)
	if err != nil {
		return nil, err
	}
	if !api.Success || len(api.Obj) == 0 || string(api.Obj) == "null" {
		return nil, nil
	}
	var emails []string
	if err := json.Unmarshal(api.Obj, &emails); err != nil {
		return nil, nil
	}
	return emails, nil
}

package panel

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
)

// stubInbound хранит инбаунд в памяти и намеренно задерживает чтение,
// чтобы несериализованные циклы read-modify-write накладывались друг
// на друга и теряли обновления.
type stubInbound struct {
	mu       sync.Mutex
	snap     InboundSnapshot
	getDelay time.Duration
	gets     int
	updates  int
}

func newStubInbound(t *testing.T, clients []ClientRecord) *stubInbound {
	settings, err := json.Marshal(Settings{Clients: clients, Decryption: "none"})
	require.NoError(t, err)
	return &stubInbound{
		snap: InboundSnapshot{
			Up: 5, Down: 6, Total: 0,
			Remark: "edge-1", Enable: true,
			Port: 443, Protocol: "vless",
			Settings:       string(settings),
			StreamSettings: `{"network":"tcp"}`,
			Sniffing:       `{"enabled":true}`,
		},
	}
}

func (s *stubInbound) GetInbound(_ context.Context, _ int) (*InboundSnapshot, error) {
	s.mu.Lock()
	snap := s.snap
	s.gets++
	s.mu.Unlock()
	time.Sleep(s.getDelay)
	return &snap, nil
}

func (s *stubInbound) UpdateInbound(_ context.Context, _ int, snap *InboundSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = *snap
	s.updates++
	return nil
}

func (s *stubInbound) ClientTraffic(_ context.Context, _ string) (TrafficStats, error) {
	return TrafficStats{}, nil
}

func (s *stubInbound) Onlines(_ context.Context) ([]string, error) {
	return nil, nil
}

func (s *stubInbound) clients(t *testing.T) []ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.snap.ParseSettings()
	require.NoError(t, err)
	return settings.Clients
}

func testAdapter(stub *stubInbound) *Adapter {
	cfg := config.Panel{
		RealityPublicKey:   "pbk-value",
		RealityFingerprint: "chrome",
		RealitySNI:         "example.com",
		RealityShortID:     "abcd1234",
		RealitySpiderX:     "/",
	}
	return NewAdapter(stub, cfg, slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func TestAdapter_CreateClient(t *testing.T) {
	stub := newStubInbound(t, nil)
	adapter := testAdapter(stub)

	descriptor, err := adapter.CreateClient(context.Background(), 7, ClientEmail(42), 2)
	require.NoError(t, err)

	assert.Equal(t, "user_42", descriptor.Email)
	assert.Equal(t, 443, descriptor.Port)
	assert.Equal(t, "edge-1", descriptor.Remark)
	assert.NotEmpty(t, descriptor.ClientID)

	clients := stub.clients(t)
	require.Len(t, clients, 1)
	assert.True(t, clients[0].Enable)
	assert.Equal(t, 2, clients[0].LimitIP)
	assert.Equal(t, "pbk-value", clients[0].PublicKey)
}

func TestAdapter_CreateClient_ExistingLabelIsReused(t *testing.T) {
	stub := newStubInbound(t, []ClientRecord{
		{ID: "existing-id", Email: "user_42", Enable: true},
	})
	adapter := testAdapter(stub)

	descriptor, err := adapter.CreateClient(context.Background(), 7, "user_42", 0)
	require.NoError(t, err)

	// Повтор после ложноотрицательного таймаута не плодит дубликатов.
	assert.Equal(t, "existing-id", descriptor.ClientID)
	assert.Len(t, stub.clients(t), 1)
	assert.Zero(t, stub.updates)
}

func TestAdapter_SetClientEnabled(t *testing.T) {
	stub := newStubInbound(t, []ClientRecord{
		{ID: "id-1", Email: "user_42", Enable: true},
	})
	adapter := testAdapter(stub)

	require.NoError(t, adapter.SetClientEnabled(context.Background(), 7, "user_42", false))
	assert.False(t, stub.clients(t)[0].Enable)

	err := adapter.SetClientEnabled(context.Background(), 7, "user_999", false)
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestAdapter_SetClientExpiry(t *testing.T) {
	stub := newStubInbound(t, []ClientRecord{
		{ID: "id-1", Email: "user_42", Enable: true, ExpiryTime: 100},
	})
	adapter := testAdapter(stub)

	require.NoError(t, adapter.SetClientExpiry(context.Background(), 7, "user_42", 987654321))
	assert.Equal(t, int64(987654321), stub.clients(t)[0].ExpiryTime)

	// Совпадающее значение не гоняет replace впустую.
	before := stub.updates
	require.NoError(t, adapter.SetClientExpiry(context.Background(), 7, "user_42", 987654321))
	assert.Equal(t, before, stub.updates)
}

func TestAdapter_DeleteClientByEmail(t *testing.T) {
	stub := newStubInbound(t, []ClientRecord{
		{ID: "id-1", Email: "user_1", Enable: true},
		{ID: "id-2", Email: "user_2", Enable: true},
	})
	adapter := testAdapter(stub)

	require.NoError(t, adapter.DeleteClientByEmail(context.Background(), 7, "user_1"))
	clients := stub.clients(t)
	require.Len(t, clients, 1)
	assert.Equal(t, "user_2", clients[0].Email)

	err := adapter.DeleteClientByEmail(context.Background(), 7, "user_1")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestAdapter_RoundTripPreservesSiblingFields(t *testing.T) {
	stub := newStubInbound(t, []ClientRecord{
		{ID: "id-1", Email: "user_42", Enable: true},
	})
	adapter := testAdapter(stub)

	require.NoError(t, adapter.SetClientEnabled(context.Background(), 7, "user_42", false))

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Equal(t, int64(5), stub.snap.Up)
	assert.Equal(t, int64(6), stub.snap.Down)
	assert.Equal(t, "edge-1", stub.snap.Remark)
	assert.Equal(t, `{"network":"tcp"}`, stub.snap.StreamSettings)
	assert.Equal(t, `{"enabled":true}`, stub.snap.Sniffing)

	settings, err := stub.snap.ParseSettings()
	require.NoError(t, err)
	assert.Equal(t, "none", settings.Decryption)
}

func TestAdapter_ConcurrentMutationsAreNotLost(t *testing.T) {
	stub := newStubInbound(t, []ClientRecord{
		{ID: "id-1", Email: "user_1", Enable: true},
		{ID: "id-2", Email: "user_2", Enable: false},
	})
	// Задержка чтения заставила бы несериализованные циклы пересечься
	// и последний replace затёр бы чужую мутацию.
	stub.getDelay = 20 * time.Millisecond
	adapter := testAdapter(stub)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, adapter.SetClientEnabled(context.Background(), 7, "user_1", false))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, adapter.SetClientEnabled(context.Background(), 7, "user_2", true))
	}()
	wg.Wait()

	clients := stub.clients(t)
	byEmail := map[string]bool{}
	for _, c := range clients {
		byEmail[c.Email] = c.Enable
	}
	assert.False(t, byEmail["user_1"], "first mutation must survive")
	assert.True(t, byEmail["user_2"], "second mutation must survive")
	assert.Equal(t, 2, stub.updates)
}

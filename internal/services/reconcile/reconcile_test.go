package reconcile

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
	"github.com/magabrotheeeer/vpn-access-manager/internal/panel"
)

type fakeRepo struct {
	users []*models.User
}

func (r *fakeRepo) ListActiveProvisioned(_ context.Context, _ time.Time) ([]*models.User, error) {
	return r.users, nil
}

type fakePanel struct {
	snap     *panel.InboundSnapshot
	getCalls int
	written  map[string]int64
}

func (p *fakePanel) GetInbound(_ context.Context, _ int) (*panel.InboundSnapshot, error) {
	p.getCalls++
	return p.snap, nil
}

func (p *fakePanel) SetClientExpiry(_ context.Context, _ int, email string, expiryMs int64) error {
	if p.written == nil {
		p.written = make(map[string]int64)
	}
	p.written[email] = expiryMs
	return nil
}

func makeSnapshot(t *testing.T, clients []panel.ClientRecord) *panel.InboundSnapshot {
	t.Helper()
	snap := &panel.InboundSnapshot{Port: 443}
	require.NoError(t, snap.SetSettings(&panel.Settings{Clients: clients}))
	return snap
}

func makeUser(t *testing.T, telegramID int64, end time.Time) *models.User {
	t.Helper()
	blob, err := json.Marshal(models.ProfileDescriptor{
		ClientID: "id", Email: panel.ClientEmail(telegramID), Port: 443,
	})
	require.NoError(t, err)
	s := string(blob)
	return &models.User{
		TelegramID:      telegramID,
		SubscriptionEnd: &end,
		ProfileBlob:     &s,
		EnabledInPanel:  true,
	}
}

func newJob(repo Repository, p *fakePanel) *Job {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(repo, p, p, config.Panel{InboundID: 7}, log)
}

func TestRun_PushesDivergedExpiry(t *testing.T) {
	end := time.Now().Add(20 * 24 * time.Hour).Truncate(time.Millisecond)
	user := makeUser(t, 42, end)
	p := &fakePanel{snap: makeSnapshot(t, []panel.ClientRecord{
		{ID: "id", Email: "user_42", Enable: true, ExpiryTime: 12345},
	})}
	job := newJob(&fakeRepo{users: []*models.User{user}}, p)

	stats, err := job.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, Stats{Updated: 1}, stats)
	assert.Equal(t, end.UnixMilli(), p.written["user_42"])
	assert.Equal(t, 1, p.getCalls, "one inbound fetch for the comparison pass")
}

func TestRun_MatchingExpiryNotRewritten(t *testing.T) {
	end := time.Now().Add(20 * 24 * time.Hour).Truncate(time.Millisecond)
	user := makeUser(t, 42, end)
	p := &fakePanel{snap: makeSnapshot(t, []panel.ClientRecord{
		{ID: "id", Email: "user_42", Enable: true, ExpiryTime: end.UnixMilli()},
	})}
	job := newJob(&fakeRepo{users: []*models.User{user}}, p)

	stats, err := job.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, p.written)
}

func TestRun_MissingRemoteCounted(t *testing.T) {
	user := makeUser(t, 42, time.Now().Add(time.Hour))
	p := &fakePanel{snap: makeSnapshot(t, nil)}
	job := newJob(&fakeRepo{users: []*models.User{user}}, p)

	stats, err := job.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, Stats{MissingRemote: 1}, stats)
	assert.Empty(t, p.written)
}

func TestRun_CorruptBlobSkipped(t *testing.T) {
	end := time.Now().Add(time.Hour)
	bad := "{not json"
	corrupt := &models.User{TelegramID: 1, SubscriptionEnd: &end, ProfileBlob: &bad}
	good := makeUser(t, 2, end.Truncate(time.Millisecond))

	p := &fakePanel{snap: makeSnapshot(t, []panel.ClientRecord{
		{ID: "id", Email: "user_2", Enable: true, ExpiryTime: 1},
	})}
	job := newJob(&fakeRepo{users: []*models.User{corrupt, good}}, p)

	stats, err := job.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, Stats{Updated: 1, Skipped: 1}, stats)
	assert.Contains(t, p.written, "user_2", "one bad record must not stop the run")
}

func TestRun_EmptyPopulationSkipsPanel(t *testing.T) {
	p := &fakePanel{}
	job := newJob(&fakeRepo{}, p)

	stats, err := job.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, 0, p.getCalls)
}

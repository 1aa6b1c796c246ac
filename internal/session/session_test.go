package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store/sqlite"
	"github.com/sunrayhq/control-plane/internal/workerclient"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.Open(t.Context(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.New(db)
}

// fakeWorkerRPC records every ClearCache call and can be made to fail.
type fakeWorkerRPC struct {
	mu    sync.Mutex
	calls []workerclient.Invalidation
	err   error
}

func (f *fakeWorkerRPC) ClearCache(_ context.Context, _, _ string, inv workerclient.Invalidation, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)
	return f.err
}

func (f *fakeWorkerRPC) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeWorkerRPC) lastScope() workerclient.Scope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1].Scope
}

func seedBoundHost(t *testing.T, s *sqlite.Store, domain string) (*models.Host, *models.Worker) {
	t.Helper()
	ctx := t.Context()

	key := &models.APIKey{ID: uuid.NewString(), Key: uuid.NewString(), Scopes: "all", IsActive: true}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	w := &models.Worker{ID: uuid.NewString(), Name: domain + "-worker", WorkerType: "edge", WorkerURL: "https://w", APIKeyID: key.ID}
	require.NoError(t, s.CreateWorker(ctx, w))

	h := &models.Host{ID: uuid.NewString(), Domain: domain, BackendURL: "https://backend", IsActive: true, WorkerID: &w.ID}
	require.NoError(t, s.CreateHost(ctx, h))

	return h, w
}

func seedUser(t *testing.T, s *sqlite.Store, username string) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Username: username, Email: username + "@example.com", IsActive: true}
	require.NoError(t, s.CreateUser(t.Context(), u))
	return u
}

func TestCreateNormal_DefaultsDurationWhenUnset(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	e := NewEngine(s, audit.NewLogger(s), &fakeWorkerRPC{})

	h, _ := seedBoundHost(t, s, "normal.example.com")
	u := seedUser(t, s, "normal-user")
	sess, err := e.CreateNormal(ctx, CreateNormalParams{UserID: u.ID, HostID: h.ID, SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionTypeNormal, sess.SessionType)
	assert.WithinDuration(t, time.Now().UTC().Add(defaultSessionDurationS*time.Second), sess.ExpiresAt, 5*time.Second)
}

func TestCreateRemote_RejectsWhenRemoteAuthDisabled(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	e := NewEngine(s, audit.NewLogger(s), &fakeWorkerRPC{})

	h, _ := seedBoundHost(t, s, "remote-off.example.com")
	_, err := e.CreateRemote(ctx, CreateRemoteParams{UserID: "u1", HostID: h.ID, SessionID: "sess-1", DurationS: 60})
	require.Error(t, err)
	assert.True(t, apierrors.IsValidation(err))
}

func TestCreateRemote_RejectsDurationOverMax(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	e := NewEngine(s, audit.NewLogger(s), &fakeWorkerRPC{})

	h, _ := seedBoundHost(t, s, "remote-on.example.com")
	h.RemoteAuthEnabled = true
	h.RemoteAuthMaxSessionTTL = 60
	require.NoError(t, s.UpdateHost(ctx, h))

	_, err := e.CreateRemote(ctx, CreateRemoteParams{UserID: "u1", HostID: h.ID, SessionID: "sess-1", DurationS: 120})
	require.Error(t, err)
	assert.True(t, apierrors.IsValidation(err))
}

func TestCreateRemote_AcceptsDurationWithinMax(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	e := NewEngine(s, audit.NewLogger(s), &fakeWorkerRPC{})

	h, _ := seedBoundHost(t, s, "remote-ok.example.com")
	h.RemoteAuthEnabled = true
	h.RemoteAuthMaxSessionTTL = 600
	require.NoError(t, s.UpdateHost(ctx, h))

	u := seedUser(t, s, "remote-user")
	sess, err := e.CreateRemote(ctx, CreateRemoteParams{UserID: u.ID, HostID: h.ID, SessionID: "sess-1", DurationS: 300})
	require.NoError(t, err)
	assert.Equal(t, models.SessionTypeRemote, sess.SessionType)
}

func TestRevokeSession_CommitsLocallyBeforeFanOut(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	worker := &fakeWorkerRPC{}
	e := NewEngine(s, audit.NewLogger(s), worker)

	h, _ := seedBoundHost(t, s, "revoke.example.com")
	u := seedUser(t, s, "alice")
	sess := &models.Session{
		ID: uuid.NewString(), SessionID: "sess-rev", UserID: u.ID, HostID: h.ID,
		SessionType: models.SessionTypeNormal, IsActive: true, ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	require.NoError(t, e.RevokeSession(ctx, "sess-rev", "user requested"))

	got, err := s.GetSessionBySessionID(ctx, "sess-rev")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.True(t, got.Revoked)
	assert.Equal(t, 1, worker.callCount())
	assert.Equal(t, workerclient.ScopeUserSession, worker.lastScope())
	assert.Equal(t, "alice", worker.calls[0].Target["username"], "fan-out target must carry the username, not the internal user id")
}

func TestRevokeSession_LocalStateSurvivesWorkerRPCFailure(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	worker := &fakeWorkerRPC{err: errors.New("edge unreachable")}
	e := NewEngine(s, audit.NewLogger(s), worker)

	h, _ := seedBoundHost(t, s, "degraded.example.com")
	u := seedUser(t, s, "bob")
	sess := &models.Session{
		ID: uuid.NewString(), SessionID: "sess-deg", UserID: u.ID, HostID: h.ID,
		SessionType: models.SessionTypeNormal, IsActive: true, ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	// Graceful degradation: the RPC error must not propagate or undo the
	// local revocation (P9).
	err := e.RevokeSession(ctx, "sess-deg", "user requested")
	require.NoError(t, err)

	got, err := s.GetSessionBySessionID(ctx, "sess-deg")
	require.NoError(t, err)
	assert.False(t, got.IsActive, "local revocation must stick even when fan-out fails")
}

func TestClearHostConfig_ForceRefreshSurfacesFailure(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	worker := &fakeWorkerRPC{err: errors.New("edge unreachable")}
	e := NewEngine(s, audit.NewLogger(s), worker)

	h, _ := seedBoundHost(t, s, "force.example.com")

	err := e.ClearHostConfig(ctx, h.ID, "admin edit", true)
	require.Error(t, err, "forceRefresh must surface the RPC failure to the caller")

	err = e.ClearHostConfig(ctx, h.ID, "admin edit", false)
	require.NoError(t, err, "without forceRefresh the failure is swallowed")
}

func TestRevokeAllOnWorker_NuclearScopePrefixesReason(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	worker := &fakeWorkerRPC{}
	e := NewEngine(s, audit.NewLogger(s), worker)

	h, w := seedBoundHost(t, s, "nuclear.example.com")
	u := seedUser(t, s, "nuke-user")
	sess := &models.Session{
		ID: uuid.NewString(), SessionID: "sess-nuke", UserID: u.ID, HostID: h.ID,
		SessionType: models.SessionTypeNormal, IsActive: true, ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	require.NoError(t, e.RevokeAllOnWorker(ctx, w.ID, "security incident"))

	got, err := s.GetSessionBySessionID(ctx, "sess-nuke")
	require.NoError(t, err)
	assert.Equal(t, "NUCLEAR: security incident", got.RevokedReason)
	assert.Equal(t, workerclient.ScopeAllUsersWorker, worker.lastScope())
}

func TestExpireStaleSessions_OnlyTouchesPastExpiry(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	e := NewEngine(s, audit.NewLogger(s), &fakeWorkerRPC{})

	h, _ := seedBoundHost(t, s, "expire.example.com")
	u := seedUser(t, s, "expire-user")
	stale := &models.Session{
		ID: uuid.NewString(), SessionID: "sess-stale", UserID: u.ID, HostID: h.ID,
		SessionType: models.SessionTypeNormal, IsActive: true, ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	fresh := &models.Session{
		ID: uuid.NewString(), SessionID: "sess-fresh", UserID: u.ID, HostID: h.ID,
		SessionType: models.SessionTypeNormal, IsActive: true, ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, stale))
	require.NoError(t, s.CreateSession(ctx, fresh))

	require.NoError(t, e.ExpireStaleSessions(ctx, []*models.Session{stale, fresh}))

	gotStale, err := s.GetSessionBySessionID(ctx, "sess-stale")
	require.NoError(t, err)
	assert.False(t, gotStale.IsActive)

	gotFresh, err := s.GetSessionBySessionID(ctx, "sess-fresh")
	require.NoError(t, err)
	assert.True(t, gotFresh.IsActive)
}

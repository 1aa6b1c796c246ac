package hoststate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.Open(t.Context(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.New(db)
}

func seedWorkerRow(t *testing.T, s *sqlite.Store) string {
	t.Helper()
	w := &models.Worker{ID: uuid.NewString(), Name: "worker-" + uuid.NewString(), WorkerType: "edge", WorkerURL: "https://w"}
	require.NoError(t, s.CreateWorker(t.Context(), w))
	return w.ID
}

func TestRunDaily_TransitionsOnlyHostsThatBecomeProtected(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	tr := NewTransitioner(s, audit.NewLogger(s))

	today := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	workerID := seedWorkerRow(t, s)

	goLiveToday := today
	due := &models.Host{
		ID: uuid.NewString(), Domain: "due.example.com", BackendURL: "https://backend",
		IsActive: true, WorkerID: &workerID, DeploymentMode: true, GoLiveDate: &goLiveToday,
	}
	require.NoError(t, s.CreateHost(ctx, due))

	past := today.AddDate(0, 0, -3)
	overdue := &models.Host{
		ID: uuid.NewString(), Domain: "overdue.example.com", BackendURL: "https://backend",
		IsActive: true, WorkerID: &workerID, DeploymentMode: true, GoLiveDate: &past,
	}
	require.NoError(t, s.CreateHost(ctx, overdue))

	n, err := tr.RunDaily(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunDaily_SkipsHostsNotYetDue(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()
	tr := NewTransitioner(s, audit.NewLogger(s))

	today := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	workerID := seedWorkerRow(t, s)
	future := today.AddDate(0, 0, 10)

	notDue := &models.Host{
		ID: uuid.NewString(), Domain: "future.example.com", BackendURL: "https://backend",
		IsActive: true, WorkerID: &workerID, DeploymentMode: true, GoLiveDate: &future,
	}
	require.NoError(t, s.CreateHost(ctx, notDue))

	n, err := tr.RunDaily(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDaysUntilGoLive(t *testing.T) {
	t.Parallel()
	today := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, daysUntilGoLive(nil, today))

	future := today.AddDate(0, 0, 5)
	assert.Equal(t, 5, daysUntilGoLive(&future, today))

	past := today.AddDate(0, 0, -5)
	assert.Equal(t, 0, daysUntilGoLive(&past, today), "never negative")
}

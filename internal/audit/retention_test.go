package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunrayhq/control-plane/internal/models"
)

// fakeRetentionStore is a tiny in-memory RetentionStore; retention's only
// dependency is this one-method interface, so a hand-rolled fake is simpler
// than standing up a real sqlite store for it.
type fakeRetentionStore struct {
	cutoffSeen time.Time
	toPrune    int64
}

func (f *fakeRetentionStore) PruneAuditEntriesOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffSeen = cutoff
	return f.toPrune, nil
}

// fakeAuditStore records InsertAuditEntry calls so Logger.Record's own
// write can be asserted without a real database.
type fakeAuditStore struct {
	recordedEventTypes []string
}

func (f *fakeAuditStore) InsertAuditEntry(_ context.Context, e *models.AuditLogEntry) error {
	f.recordedEventTypes = append(f.recordedEventTypes, e.EventType)
	return nil
}

func TestPruneOld_UsesNinetyDayCutoffAndRecordsSummary(t *testing.T) {
	t.Parallel()

	rs := &fakeRetentionStore{toPrune: 7}
	as := &fakeAuditStore{}
	l := NewLogger(as)

	before := time.Now().UTC()
	n, err := PruneOld(t.Context(), rs, l)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	wantCutoff := before.Add(-retentionWindow)
	assert.WithinDuration(t, wantCutoff, rs.cutoffSeen, 5*time.Second)

	require.Len(t, as.recordedEventTypes, 1)
	assert.Equal(t, string(EventAuditRetentionPruned), as.recordedEventTypes[0])
}

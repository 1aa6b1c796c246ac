package audit

import (
	"context"
	"time"

	"github.com/sunrayhq/control-plane/internal/models"
)

const retentionWindow = 90 * 24 * time.Hour

// RetentionStore is the pruning side of the audit Store (spec.md §3, §4.9).
type RetentionStore interface {
	PruneAuditEntriesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneOld removes audit entries older than the 90-day retention window and
// writes a summary entry for the prune itself.
func PruneOld(ctx context.Context, store RetentionStore, l *Logger) (int64, error) {
	cutoff := time.Now().UTC().Add(-retentionWindow)
	n, err := store.PruneAuditEntriesOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	l.Record(ctx, EventAuditRetentionPruned, models.SeverityInfo, Fields{
		Details: map[string]any{"pruned": n, "cutoff": cutoff},
	})
	return n, nil
}

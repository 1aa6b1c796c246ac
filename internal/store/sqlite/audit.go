package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
)

// InsertAuditEntry appends one audit row. The event type is validated
// against the closed taxonomy here as well as in the audit logger, so a
// caller writing through the Store directly cannot smuggle in an undeclared
// event string (P10).
func (s *Store) InsertAuditEntry(ctx context.Context, e *models.AuditLogEntry) error {
	if err := audit.Validate(audit.EventType(e.EventType)); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO audit_log_entries (
			id, timestamp, event_type, severity, sunray_user_id, username, admin_user_id,
			api_key_id, sunray_worker, ip_address, user_agent, request_id, event_source, details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, iso(e.Timestamp), e.EventType, string(e.Severity), nullStr(e.SunrayUserID),
		nullStr(e.Username), nullStr(e.AdminUserID), nullStr(e.APIKeyID), nullStr(e.SunrayWorker),
		e.IPAddress, e.UserAgent, e.RequestID, e.EventSource, e.Details)
	if err != nil {
		return fmt.Errorf("sqlite: insert audit entry: %w", err)
	}
	return nil
}

// PruneAuditEntriesOlderThan is the only deletion path for audit rows (P11):
// there is no per-entry delete, only bulk pruning against a retention cutoff.
func (s *Store) PruneAuditEntriesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM audit_log_entries WHERE timestamp < ?`, iso(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune audit entries: %w", err)
	}
	return res.RowsAffected()
}

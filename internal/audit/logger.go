package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sunrayhq/control-plane/internal/logger"
	"github.com/sunrayhq/control-plane/internal/models"
)

// Store is the subset of the persistence layer the audit logger needs. It is
// satisfied by internal/store.Store.
type Store interface {
	InsertAuditEntry(ctx context.Context, entry *models.AuditLogEntry) error
}

// Logger appends structured audit entries, the same shape the teacher's
// Auditor builds per-request (pkg/audit/auditor.go), generalized from HTTP
// middleware into a directly-callable API so every domain operation (not
// just HTTP handlers) can emit one entry per mutation.
type Logger struct {
	store Store
}

// NewLogger constructs an audit Logger backed by the given Store.
func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// Fields carries the optional structured context of an audit entry.
type Fields struct {
	SunrayUserID string
	Username     string
	AdminUserID  string
	APIKeyID     string
	SunrayWorker string
	IPAddress    string
	UserAgent    string
	RequestID    string
	EventSource  string
	Details      map[string]any
}

// Record validates and appends one audit entry. A failure to append is
// logged locally (the caller's transaction must not roll back because of
// it — spec.md §7) and returned so the caller can decide whether to
// surface it.
func (l *Logger) Record(ctx context.Context, eventType EventType, severity models.Severity, f Fields) error {
	if err := Validate(eventType); err != nil {
		logger.Errorf("audit: refusing to record invalid event type: %v", err)
		return err
	}

	var detailsJSON string
	if len(f.Details) > 0 {
		b, err := json.Marshal(f.Details)
		if err != nil {
			logger.Errorf("audit: failed to marshal details: %v", err)
		} else {
			detailsJSON = string(b)
		}
	}

	entry := &models.AuditLogEntry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		EventType:   string(eventType),
		Severity:    severity,
		IPAddress:   f.IPAddress,
		UserAgent:   f.UserAgent,
		RequestID:   f.RequestID,
		EventSource: f.EventSource,
		Details:     detailsJSON,
	}
	if f.SunrayUserID != "" {
		entry.SunrayUserID = &f.SunrayUserID
	}
	if f.Username != "" {
		entry.Username = &f.Username
	}
	if f.AdminUserID != "" {
		entry.AdminUserID = &f.AdminUserID
	}
	if f.APIKeyID != "" {
		entry.APIKeyID = &f.APIKeyID
	}
	if f.SunrayWorker != "" {
		entry.SunrayWorker = &f.SunrayWorker
	}

	if err := l.store.InsertAuditEntry(ctx, entry); err != nil {
		logger.Errorf("audit: failed to persist entry %s: %v", eventType, err)
		return err
	}
	return nil
}

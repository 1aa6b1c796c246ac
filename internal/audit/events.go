// Package audit implements the append-only audit log: a closed event-type
// taxonomy, severity, structured JSON details, and 90-day retention
// (spec.md §4.9, §6).
//
// The teacher's auditor scans live HTTP traffic and infers event types by
// reflecting over URL paths (pkg/audit/auditor.go:determineEventType). The
// REDESIGN FLAG in spec.md §9 calls for a compile-time/startup-time closed
// enum instead of that reflection-based scan, so EventType here is a plain
// Go string type validated against a package-level set built once in init —
// any entry not in that set is rejected by the Store at call time rather
// than caught later by an out-of-band validator script.
package audit

import "fmt"

// EventType is one of the closed set of event-type strings from spec.md §6.
type EventType string

// The full closed taxonomy (spec.md §6).
const (
	EventAuthSuccess                  EventType = "auth.success"
	EventAuthFailure                  EventType = "auth.failure"
	EventSetupTokenGenerated          EventType = "auth.setup_token_generated"
	EventSetupTokenConsumed           EventType = "auth.setup_token_consumed"
	EventEmailOTPRequested            EventType = "auth.email_otp_requested"
	EventEmailOTPRequestedUnknown     EventType = "auth.email_otp_requested_unknown"
	EventEmailOTPValidated            EventType = "auth.email_otp_validated"
	EventEmailOTPFailed               EventType = "auth.email_otp_failed"
	EventEmailOTPExpired              EventType = "auth.email_otp_expired"
	EventEmailOTPCleanup              EventType = "auth.email_otp_cleanup"
	EventEmailOTPLockout              EventType = "security.email_otp_lockout"
	EventEmailOTPBrowserMismatch      EventType = "security.email_otp_browser_mismatch"
	EventCrossDomainSession           EventType = "security.cross_domain_session"
	EventHostIDMismatch               EventType = "security.host_id_mismatch"
	EventUnmanagedHostAccess          EventType = "security.unmanaged_host_access"
	EventPasskeyRegistered            EventType = "passkey.registered"
	EventPasskeyRevoked               EventType = "passkey.revoked"
	EventSessionCreated               EventType = "session.created"
	EventSessionRevoked               EventType = "session.revoked"
	EventSessionExpired               EventType = "session.expired"
	EventSessionBulkRevocation        EventType = "session.bulk_revocation"
	EventCacheCleared                 EventType = "cache.cleared"
	EventCacheClearFailed             EventType = "cache.clear_failed"
	EventCacheNuclearClear            EventType = "cache.nuclear_clear"
	EventConfigSessionDurationChanged EventType = "config.session_duration_changed"
	EventConfigWAFRevalidationChanged EventType = "config.waf_revalidation_changed"
	EventConfigFetched                EventType = "config.fetched"
	EventWorkerRegistered             EventType = "worker.registered"
	EventWorkerReRegistered           EventType = "worker.re_registered"
	EventWorkerMigrated               EventType = "worker.migrated"
	EventWorkerMigrationRequested     EventType = "worker.migration_requested"
	EventWorkerMigrationCancelled     EventType = "worker.migration_cancelled"
	EventWorkerRegistrationConflict   EventType = "worker.registration_conflict"
	EventAPIKeyCreated                EventType = "api_key.created"
	EventAPIKeyRegenerated            EventType = "api_key.regenerated"
	EventAPIKeyDeleted                EventType = "api_key.deleted"
	EventWebhookUsed                  EventType = "webhook.used"
	EventWebhookRegenerated           EventType = "webhook.regenerated"
	EventTokenEmailSent               EventType = "token.email.sent"
	EventTokenEmailNoTemplate         EventType = "token.email.no_template"
	EventTokenEmailNoRecipient        EventType = "token.email.no_recipient"
	EventTokenEmailError              EventType = "token.email.error"
	EventUserValidationSuccess        EventType = "user.validation.success"
	EventUserValidationUnknownUser    EventType = "user.validation.unknown_user"
	EventHostGoliveTransition         EventType = "host.golive_transition"
	EventHostUserAuthorized           EventType = "host.user_authorized"
	EventRemoteAuthSessionCreated     EventType = "remote_auth.session_created"
	EventRemoteAuthSessionListed      EventType = "remote_auth.session_listed"
	EventRemoteAuthSessionTerminated  EventType = "remote_auth.session_terminated"
	EventAuditRetentionPruned         EventType = "audit.retention_pruned"
)

var validEventTypes map[EventType]struct{}

func init() {
	all := []EventType{
		EventAuthSuccess, EventAuthFailure, EventSetupTokenGenerated, EventSetupTokenConsumed,
		EventEmailOTPRequested, EventEmailOTPRequestedUnknown, EventEmailOTPValidated,
		EventEmailOTPFailed, EventEmailOTPExpired, EventEmailOTPCleanup, EventEmailOTPLockout,
		EventEmailOTPBrowserMismatch, EventCrossDomainSession, EventHostIDMismatch,
		EventUnmanagedHostAccess, EventPasskeyRegistered, EventPasskeyRevoked,
		EventSessionCreated, EventSessionRevoked, EventSessionExpired, EventSessionBulkRevocation,
		EventCacheCleared, EventCacheClearFailed, EventCacheNuclearClear,
		EventConfigSessionDurationChanged, EventConfigWAFRevalidationChanged, EventConfigFetched,
		EventWorkerRegistered, EventWorkerReRegistered, EventWorkerMigrated,
		EventWorkerMigrationRequested, EventWorkerMigrationCancelled, EventWorkerRegistrationConflict,
		EventAPIKeyCreated, EventAPIKeyRegenerated, EventAPIKeyDeleted,
		EventWebhookUsed, EventWebhookRegenerated,
		EventTokenEmailSent, EventTokenEmailNoTemplate, EventTokenEmailNoRecipient, EventTokenEmailError,
		EventUserValidationSuccess, EventUserValidationUnknownUser,
		EventHostGoliveTransition, EventHostUserAuthorized,
		EventRemoteAuthSessionCreated, EventRemoteAuthSessionListed, EventRemoteAuthSessionTerminated,
		EventAuditRetentionPruned,
	}
	validEventTypes = make(map[EventType]struct{}, len(all))
	for _, e := range all {
		validEventTypes[e] = struct{}{}
	}
}

// Validate rejects any event type string not in the closed taxonomy
// (spec.md P10, §9 DESIGN NOTES).
func Validate(e EventType) error {
	if _, ok := validEventTypes[e]; !ok {
		return fmt.Errorf("audit: unknown event type %q", e)
	}
	return nil
}

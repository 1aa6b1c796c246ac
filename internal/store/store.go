// Package store defines the transactional persistence interface for every
// entity in spec.md §3 (C1). Implementations must provide uniqueness and
// referential integrity, row-level locking on the token/OTP hot paths
// (spec.md §5), and config_version bumping on every entity write
// (spec.md §9 "Record update broadcasts version").
package store

import (
	"context"
	"time"

	"github.com/sunrayhq/control-plane/internal/models"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "store: not found" }

// ErrUniqueViolation is returned when a write would violate a uniqueness
// constraint (P1).
var ErrUniqueViolation = errUniqueViolation{}

type errUniqueViolation struct{}

func (errUniqueViolation) Error() string { return "store: unique constraint violated" }

// Store is the full persistence surface consumed by every domain package.
// A single implementation (internal/store/sqlite) backs all of them; the
// interface exists so domain logic is testable against an in-memory fake
// without pulling in database/sql.
type Store interface {
	UserStore
	HostStore
	WorkerStore
	APIKeyStore
	PasskeyStore
	SetupTokenStore
	EmailOTPStore
	SessionStore
	WebhookTokenStore
	AccessRuleStore
	AuditStore
	ConfigStore

	// WithTx runs fn inside a single transaction (in the sqlite
	// implementation it holds the only pooled connection until it ends, which
	// stands in for spec.md §5's SELECT ... FOR UPDATE under SQLite's
	// single-writer model) and guarantees the transaction is committed or
	// rolled back on every exit path, including panics (spec.md §9 "Scoped
	// resources").
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserStore persists User entities.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id string) error
	AuthorizeUserForHost(ctx context.Context, userID, hostID string) error
	UserAuthorizedHostIDs(ctx context.Context, userID string) ([]string, error)
	ListActiveUsers(ctx context.Context) ([]*models.User, error)
}

// HostStore persists Host entities.
type HostStore interface {
	CreateHost(ctx context.Context, h *models.Host) error
	GetHostByID(ctx context.Context, id string) (*models.Host, error)
	GetHostByDomain(ctx context.Context, domain string) (*models.Host, error)
	UpdateHost(ctx context.Context, h *models.Host) error
	DeleteHost(ctx context.Context, id string) error
	ListActiveHosts(ctx context.Context) ([]*models.Host, error)
	ListHostsByWorker(ctx context.Context, workerID string) ([]*models.Host, error)
	ListHostsPendingMigrationTo(ctx context.Context, workerName string) ([]*models.Host, error)
	ListHostsInDeploymentDueToday(ctx context.Context, today time.Time) ([]*models.Host, error)
}

// WorkerStore persists Worker entities.
type WorkerStore interface {
	CreateWorker(ctx context.Context, w *models.Worker) error
	GetWorkerByID(ctx context.Context, id string) (*models.Worker, error)
	GetWorkerByName(ctx context.Context, name string) (*models.Worker, error)
	UpdateWorker(ctx context.Context, w *models.Worker) error
	DeleteWorker(ctx context.Context, id string) error
}

// APIKeyStore persists ApiKey entities.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k *models.APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*models.APIKey, error)
	GetAPIKeyByKey(ctx context.Context, key string) (*models.APIKey, error)
	UpdateAPIKey(ctx context.Context, k *models.APIKey) error
	DeleteAPIKey(ctx context.Context, id string) error
	IncrementAPIKeyUsage(ctx context.Context, id string) error
}

// PasskeyStore persists Passkey entities.
type PasskeyStore interface {
	CreatePasskey(ctx context.Context, p *models.Passkey) error
	GetPasskeyByCredentialID(ctx context.Context, credentialID string) (*models.Passkey, error)
	ListPasskeysByUser(ctx context.Context, userID string) ([]*models.Passkey, error)
	DeletePasskey(ctx context.Context, id string) error
}

// SetupTokenStore persists SetupToken entities.
type SetupTokenStore interface {
	CreateSetupToken(ctx context.Context, t *models.SetupToken) error
	GetSetupTokenByUserAndHash(ctx context.Context, userID, tokenHash string) (*models.SetupToken, error)
	ListSetupTokensByUserAndHost(ctx context.Context, userID, hostID string) ([]*models.SetupToken, error)
	UpdateSetupToken(ctx context.Context, t *models.SetupToken) error
}

// EmailOTPStore persists EmailOTP entities.
type EmailOTPStore interface {
	CreateEmailOTP(ctx context.Context, o *models.EmailOTP) error
	GetEmailOTPByRequestID(ctx context.Context, requestID string) (*models.EmailOTP, error)
	UpdateEmailOTP(ctx context.Context, o *models.EmailOTP) error
	DeleteExpiredEmailOTPs(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionStore persists Session entities.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSessionBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	ListSessionsByUser(ctx context.Context, userID string) ([]*models.Session, error)
	ListActiveSessionsByUserAndHost(ctx context.Context, userID, hostID string) ([]*models.Session, error)
	ListActiveSessionsByWorker(ctx context.Context, workerID string) ([]*models.Session, error)
	ListActiveSessionsByHost(ctx context.Context, hostID string) ([]*models.Session, error)
	ActiveSessionCount(ctx context.Context, userID string) (int, error)
	LastLogin(ctx context.Context, userID string) (*time.Time, error)
}

// WebhookTokenStore persists WebhookToken entities.
type WebhookTokenStore interface {
	CreateWebhookToken(ctx context.Context, t *models.WebhookToken) error
	GetWebhookTokenByToken(ctx context.Context, token string) (*models.WebhookToken, error)
	ListWebhookTokensByHost(ctx context.Context, hostID string) ([]*models.WebhookToken, error)
	UpdateWebhookToken(ctx context.Context, t *models.WebhookToken) error
	IncrementWebhookTokenUsage(ctx context.Context, id string) error
}

// AccessRuleStore persists AccessRule entities.
type AccessRuleStore interface {
	CreateAccessRule(ctx context.Context, r *models.AccessRule) error
	ListAccessRulesByHost(ctx context.Context, hostID string) ([]*models.AccessRule, error)
	DeleteAccessRule(ctx context.Context, id string) error
}

// AuditStore appends and prunes AuditLogEntry rows. Deletions outside
// retention are prohibited by construction: there is no DeleteAuditEntry
// method, only PruneAuditEntriesOlderThan (P11).
type AuditStore interface {
	InsertAuditEntry(ctx context.Context, e *models.AuditLogEntry) error
	PruneAuditEntriesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConfigStore reads/writes the process-wide key/value configuration table
// (spec.md §6).
type ConfigStore interface {
	GetConfigValue(ctx context.Context, key string) (string, bool, error)
	SetConfigValue(ctx context.Context, key, value string) error
}

// Package models defines the entity model of the control plane: users,
// hosts, workers, passkeys, setup tokens, email OTPs, sessions, API keys,
// webhook tokens, access rules, and audit log entries (spec.md §3).
package models

import "time"

// SessionType distinguishes a normal passkey-authenticated session from a
// paid-tier remote (worker-verified) one.
type SessionType string

const (
	SessionTypeNormal SessionType = "normal"
	SessionTypeRemote SessionType = "remote"
)

// TokenSource describes where a WebhookToken's credential is carried.
type TokenSource string

const (
	TokenSourceHeader TokenSource = "header"
	TokenSourceParam  TokenSource = "param"
	TokenSourceBoth   TokenSource = "both"
)

// HostState is the derived state of a Host (spec.md §4.7).
type HostState string

const (
	HostStateArchived    HostState = "archived"
	HostStateUnprotected HostState = "unprotected"
	HostStateLocked      HostState = "locked"
	HostStateDeployment  HostState = "deployment"
	HostStateProtected   HostState = "protected"
)

// User owns passkeys and setup tokens and is authorized against zero or more
// hosts.
type User struct {
	ID          string
	Username    string
	Email       string
	DisplayName string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// ConfigVersion is bumped on every write to this user (spec.md §3).
	ConfigVersion int64
}

// EffectiveDisplayName falls back to the username when no display name has
// been set.
func (u *User) EffectiveDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Worker is an edge execution unit. Zero or more Hosts reference it.
type Worker struct {
	ID         string
	Name       string
	WorkerType string
	WorkerURL  string
	APIKeyID   string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	ConfigVersion int64
}

// Host is a customer-facing domain enforced by at most one Worker.
type Host struct {
	ID              string
	Domain          string
	BackendURL      string
	IsActive        bool
	BlockAllTraffic bool

	WorkerID *string // nil => unprotected

	// Session / WAF-bypass timing overrides (spec.md §3).
	SessionDurationS         int
	WAFBypassRevalidationS   int

	// Migration fields (spec.md §4.6).
	PendingWorkerName     *string
	MigrationRequestedAt  *time.Time
	LastMigrationTS       *time.Time

	// Deployment fields (spec.md §4.7).
	DeploymentMode       bool
	GoLiveDate           *time.Time
	DeploymentSessionTTL int

	// Email-OTP and remote-auth config.
	EmailOTPEnabled            bool
	EmailLoginSessionDurationS int
	RemoteAuthEnabled          bool
	RemoteAuthSessionTTL       int
	RemoteAuthMaxSessionTTL    int
	RemoteAuthSessionMgmt      bool
	RemoteAuthSessionMgmtTTL   int

	CreatedAt time.Time
	UpdatedAt time.Time

	ConfigVersion int64
}

// State computes the derived host state per spec.md §4.7.
func (h *Host) State(today time.Time) HostState {
	switch {
	case !h.IsActive:
		return HostStateArchived
	case h.WorkerID == nil:
		return HostStateUnprotected
	case h.BlockAllTraffic:
		return HostStateLocked
	case h.DeploymentMode && (h.GoLiveDate == nil || h.GoLiveDate.After(dateOnly(today))):
		return HostStateDeployment
	default:
		return HostStateProtected
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// APIKey authenticates a Worker's outbound calls into the control plane and
// the control plane's outbound calls into that Worker.
type APIKey struct {
	ID        string
	Key       string // 32-byte URL-safe random, auto-generated if absent
	Scopes    string // comma list of resource:action, or "all"
	IsActive  bool
	UsageCount int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Passkey is bound to exactly one WebAuthn rpId (HostDomain) and MUST be
// checked against it on every use.
type Passkey struct {
	ID              string
	UserID          string
	CredentialID    string
	PublicKey       string
	HostDomain      string
	Name            string
	BackupEligible  bool
	BackupState     bool
	RegistrationIP  string
	RegistrationUA  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetupToken bootstraps passkey enrollment for one user on one host.
type SetupToken struct {
	ID           string
	UserID       string
	HostID       string
	TokenHash    string // "sha512:<hex>"
	DeviceName   string
	ExpiresAt    time.Time
	Consumed     bool
	ConsumedDate *time.Time
	CurrentUses  int
	MaxUses      int
	AllowedCIDRs string // newline-separated, '#' comments
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid reports whether the token may still be consumed (spec.md §3).
func (t *SetupToken) Valid(now time.Time) bool {
	return !t.Consumed && t.ExpiresAt.After(now) && t.CurrentUses < t.MaxUses
}

// EmailOTP is a short-lived, browser-bound one-time code.
type EmailOTP struct {
	ID               string
	HostID           string
	UserID           *string
	OTPRequestID     string // "otp_req_<hex16>"
	OTPHash          string // "sha256:<hex>" of the normalized code
	BrowserTokenHash string // "sha256:<hex>" of the srbt_ cookie
	Email            string // lowercased
	ExpiresAt        time.Time
	Attempts         int
	Consumed         bool
	ConsumedAt       *time.Time
	ClientIP         string
	UserAgent        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Session represents a logged-in device/browser bound to one User and Host.
type Session struct {
	ID             string
	SessionID      string
	UserID         string
	HostID         string
	SessionType    SessionType
	IsActive       bool
	Revoked        bool
	RevokedReason  string
	ExpiresAt      time.Time
	LastActivity   time.Time
	CreatedVia     string // JSON device info
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebhookToken identifies one external webhook producer on a Host.
type WebhookToken struct {
	ID          string
	HostID      string
	Name        string
	Token       string // 32-char random, auto-generated
	HeaderName  string
	ParamName   string
	TokenSource TokenSource
	AllowedCIDRs string
	ExpiresAt   *time.Time
	UsageCount  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Valid reports whether the webhook token may still be used.
func (w *WebhookToken) Valid(now time.Time) bool {
	if w.ExpiresAt != nil && !w.ExpiresAt.After(now) {
		return false
	}
	return true
}

// AccessRule is a typed rule attached to a Host, composed into the
// exception tree the worker consults during request evaluation.
type AccessRule struct {
	ID        string
	HostID    string
	RuleType  string // e.g. "cidr"
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Severity is the closed severity enum for audit log entries.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AuditLogEntry is an immutable, append-only event record.
type AuditLogEntry struct {
	ID            string
	Timestamp     time.Time
	EventType     string
	Severity      Severity
	SunrayUserID  *string
	Username      *string
	AdminUserID   *string
	APIKeyID      *string
	SunrayWorker  *string
	IPAddress     string
	UserAgent     string
	RequestID     string
	EventSource   string
	Details       string // JSON blob
}

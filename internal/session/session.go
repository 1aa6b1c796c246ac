// Package session implements session creation, expiry, and the seven-scope
// revocation fan-out of spec.md §4.4-§4.5 (C5).
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
	"github.com/sunrayhq/control-plane/internal/workerclient"
)

const defaultSessionDurationS = 28800

// Store is the persistence surface the session engine needs.
type Store interface {
	store.SessionStore
	store.HostStore
	store.WorkerStore
	store.APIKeyStore
	store.UserStore
}

// WorkerRPC is the outbound side of revocation fan-out; satisfied by
// *workerclient.Client or internal/observability's span-instrumented
// wrapper.
type WorkerRPC interface {
	ClearCache(ctx context.Context, domain, apiKey string, inv workerclient.Invalidation, forceRefresh bool) error
}

// Engine creates and revokes sessions and drives cache-invalidation fan-out.
type Engine struct {
	store  Store
	audit  *audit.Logger
	worker WorkerRPC
}

func NewEngine(s Store, a *audit.Logger, w WorkerRPC) *Engine {
	return &Engine{store: s, audit: a, worker: w}
}

// CreateNormalParams carries the inputs of spec.md §4.4's normal session
// creation.
type CreateNormalParams struct {
	UserID            string
	HostID            string
	SessionID         string
	CredentialID      string
	CreatedIP         string
	DeviceFingerprint string
	UserAgent         string
	CSRFToken         string
	DurationS         int
}

func (e *Engine) CreateNormal(ctx context.Context, p CreateNormalParams) (*models.Session, error) {
	duration := p.DurationS
	if duration == 0 {
		duration = defaultSessionDurationS
	}
	now := time.Now().UTC()
	sess := &models.Session{
		ID:           uuid.NewString(),
		SessionID:    p.SessionID,
		UserID:       p.UserID,
		HostID:       p.HostID,
		SessionType:  models.SessionTypeNormal,
		IsActive:     true,
		ExpiresAt:    now.Add(time.Duration(duration) * time.Second),
		LastActivity: now,
		CreatedVia:   deviceInfoJSON(p.DeviceFingerprint, p.UserAgent, p.CredentialID),
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	e.audit.Record(ctx, audit.EventSessionCreated, models.SeverityInfo, audit.Fields{
		SunrayUserID: p.UserID,
		IPAddress:    p.CreatedIP,
		UserAgent:    p.UserAgent,
		Details:      map[string]any{"host_id": p.HostID, "session_type": "normal"},
	})
	return sess, nil
}

// CreateRemoteParams carries the inputs of spec.md §4.4's remote (paid) path.
// The worker has already verified a WebAuthn credential out of band; the
// control plane trusts the worker-provided UserID.
type CreateRemoteParams struct {
	UserID     string
	HostID     string
	SessionID  string
	DurationS  int
	DeviceInfo string
}

func (e *Engine) CreateRemote(ctx context.Context, p CreateRemoteParams) (*models.Session, error) {
	host, err := e.store.GetHostByID(ctx, p.HostID)
	if err != nil {
		return nil, err
	}
	if !host.RemoteAuthEnabled {
		return nil, apierrors.NewValidationError("remote auth is not enabled for this host", nil)
	}
	if p.DurationS > host.RemoteAuthMaxSessionTTL {
		return nil, apierrors.NewValidationError("session_duration exceeds remote_auth_max_session_ttl", nil)
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:           uuid.NewString(),
		SessionID:    p.SessionID,
		UserID:       p.UserID,
		HostID:       p.HostID,
		SessionType:  models.SessionTypeRemote,
		IsActive:     true,
		ExpiresAt:    now.Add(time.Duration(p.DurationS) * time.Second),
		LastActivity: now,
		CreatedVia:   p.DeviceInfo,
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	e.audit.Record(ctx, audit.EventRemoteAuthSessionCreated, models.SeverityInfo, audit.Fields{
		SunrayUserID: p.UserID,
		Details:      map[string]any{"host_id": p.HostID},
	})
	return sess, nil
}

func deviceInfoJSON(fingerprint, userAgent, credentialID string) string {
	return fmt.Sprintf(`{"device_fingerprint":%q,"user_agent":%q,"credential_id":%q}`,
		fingerprint, userAgent, credentialID)
}

package session

import (
	"context"
	"time"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/logger"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/workerclient"
)

// revokeLocal marks a session revoked in the Store. Fan-out, if any, is
// always attempted only after this commits (spec.md §4.4, P9).
func (e *Engine) revokeLocal(ctx context.Context, sess *models.Session, reason string) error {
	sess.IsActive = false
	sess.Revoked = true
	sess.RevokedReason = reason
	return e.store.UpdateSession(ctx, sess)
}

// fanOut resolves the worker bound to hostID and posts an invalidation,
// converting worker-RPC failure into an audit entry. surfaceFailure governs
// whether the error is also returned to the caller (explicit "force
// refresh" flows) or swallowed for graceful degradation (ordinary
// session-revocation flows, spec.md §4.5).
func (e *Engine) fanOut(ctx context.Context, hostID string, inv workerclient.Invalidation, surfaceFailure bool) error {
	host, err := e.store.GetHostByID(ctx, hostID)
	if err != nil {
		return err
	}
	if host.WorkerID == nil {
		return apierrors.NewValidationError("host is not bound to a worker", nil)
	}
	worker, err := e.store.GetWorkerByID(ctx, *host.WorkerID)
	if err != nil {
		return err
	}
	apiKey, err := e.store.GetAPIKeyByID(ctx, worker.APIKeyID)
	if err != nil || !apiKey.IsActive {
		return apierrors.NewValidationError("no active API key for worker", err)
	}

	err = e.worker.ClearCache(ctx, host.Domain, apiKey.Key, inv, surfaceFailure)
	if err != nil {
		logger.Warnf("session: cache clear failed for host %s scope %s: %v", host.Domain, inv.Scope, err)
		e.audit.Record(ctx, audit.EventCacheClearFailed, severityForFailure(inv.Scope), audit.Fields{
			SunrayWorker: worker.Name,
			Details:      map[string]any{"scope": string(inv.Scope), "host_id": hostID, "error": err.Error()},
		})
		if surfaceFailure {
			return apierrors.NewUpstreamUnavailableError("worker cache clear failed", err)
		}
		return nil
	}

	if inv.Scope == workerclient.ScopeAllUsersWorker {
		e.audit.Record(ctx, audit.EventCacheNuclearClear, models.SeverityCritical, audit.Fields{
			SunrayWorker: worker.Name,
			Details:      map[string]any{"scope": string(inv.Scope)},
		})
	} else {
		e.audit.Record(ctx, audit.EventCacheCleared, models.SeverityInfo, audit.Fields{
			SunrayWorker: worker.Name,
			Details:      map[string]any{"scope": string(inv.Scope), "host_id": hostID},
		})
	}
	return nil
}

// usernameFor resolves the username the edge worker keys its cache by, given
// the internal UserID stored on a session. Cache-invalidation targets always
// carry the username, never the primary key (spec.md §4.5).
func (e *Engine) usernameFor(ctx context.Context, userID string) (string, error) {
	u, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func severityForFailure(scope workerclient.Scope) models.Severity {
	if scope == workerclient.ScopeAllUsersWorker {
		return models.SeverityError
	}
	return models.SeverityWarning
}

// RevokeSession implements the user-session scope: revoke one session
// locally, then fan out a user-session invalidation.
func (e *Engine) RevokeSession(ctx context.Context, sessionID, reason string) error {
	sess, err := e.store.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := e.revokeLocal(ctx, sess, reason); err != nil {
		return err
	}
	e.audit.Record(ctx, audit.EventSessionRevoked, models.SeverityInfo, audit.Fields{
		SunrayUserID: sess.UserID,
		Details:      map[string]any{"session_id": sessionID, "reason": reason},
	})

	host, err := e.store.GetHostByID(ctx, sess.HostID)
	if err != nil {
		return nil
	}
	username, err := e.usernameFor(ctx, sess.UserID)
	if err != nil {
		return nil
	}
	return e.fanOut(ctx, sess.HostID, workerclient.Invalidation{
		Scope:  workerclient.ScopeUserSession,
		Target: map[string]any{"hostname": host.Domain, "username": username, "sessionId": sessionID},
		Reason: reason,
	}, false)
}

// RevokeAllForUserOnHost implements the user-protectedhost scope.
func (e *Engine) RevokeAllForUserOnHost(ctx context.Context, userID, hostID, reason string) error {
	sessions, err := e.store.ListActiveSessionsByUserAndHost(ctx, userID, hostID)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if err := e.revokeLocal(ctx, sess, reason); err != nil {
			return err
		}
	}
	e.audit.Record(ctx, audit.EventSessionBulkRevocation, models.SeverityInfo, audit.Fields{
		SunrayUserID: userID,
		Details:      map[string]any{"host_id": hostID, "reason": reason, "count": len(sessions)},
	})
	host, err := e.store.GetHostByID(ctx, hostID)
	if err != nil {
		return nil
	}
	username, err := e.usernameFor(ctx, userID)
	if err != nil {
		return nil
	}
	return e.fanOut(ctx, hostID, workerclient.Invalidation{
		Scope:  workerclient.ScopeUserProtectedHost,
		Target: map[string]any{"username": username, "hostname": host.Domain},
		Reason: reason,
	}, false)
}

// RevokeAllForUserOnWorker implements the user-worker scope: every session
// for userID across every host bound to workerID.
func (e *Engine) RevokeAllForUserOnWorker(ctx context.Context, userID, workerID, reason string) error {
	sessions, err := e.store.ListActiveSessionsByWorker(ctx, workerID)
	if err != nil {
		return err
	}
	var anyHostID string
	revoked := 0
	for _, sess := range sessions {
		if sess.UserID != userID {
			continue
		}
		if err := e.revokeLocal(ctx, sess, reason); err != nil {
			return err
		}
		anyHostID = sess.HostID
		revoked++
	}
	e.audit.Record(ctx, audit.EventSessionBulkRevocation, models.SeverityInfo, audit.Fields{
		SunrayUserID: userID,
		Details:      map[string]any{"worker_id": workerID, "reason": reason, "count": revoked},
	})
	if anyHostID == "" {
		return nil
	}
	username, err := e.usernameFor(ctx, userID)
	if err != nil {
		return nil
	}
	return e.fanOut(ctx, anyHostID, workerclient.Invalidation{
		Scope:  workerclient.ScopeUserWorker,
		Target: map[string]any{"username": username},
		Reason: reason,
	}, false)
}

// RevokeAllOnHost implements the allusers-protectedhost scope.
func (e *Engine) RevokeAllOnHost(ctx context.Context, hostID, reason string) error {
	sessions, err := e.store.ListActiveSessionsByHost(ctx, hostID)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if err := e.revokeLocal(ctx, sess, reason); err != nil {
			return err
		}
	}
	e.audit.Record(ctx, audit.EventSessionBulkRevocation, models.SeverityInfo, audit.Fields{
		Details: map[string]any{"host_id": hostID, "reason": reason, "count": len(sessions)},
	})
	host, err := e.store.GetHostByID(ctx, hostID)
	if err != nil {
		return nil
	}
	return e.fanOut(ctx, hostID, workerclient.Invalidation{
		Scope:  workerclient.ScopeAllUsersProtectedHost,
		Target: map[string]any{"hostname": host.Domain},
		Reason: reason,
	}, false)
}

// RevokeAllOnWorker implements the allusers-worker "nuclear" scope (scenario
// 5): every session across every host bound to workerID is revoked locally,
// with "NUCLEAR" baked into revoked_reason, then a single outbound POST
// carries the empty-target invalidation to any one of the worker's hosts.
func (e *Engine) RevokeAllOnWorker(ctx context.Context, workerID, reason string) error {
	sessions, err := e.store.ListActiveSessionsByWorker(ctx, workerID)
	if err != nil {
		return err
	}
	nuclearReason := "NUCLEAR: " + reason
	var anyHostID string
	for _, sess := range sessions {
		if err := e.revokeLocal(ctx, sess, nuclearReason); err != nil {
			return err
		}
		anyHostID = sess.HostID
	}
	e.audit.Record(ctx, audit.EventSessionBulkRevocation, models.SeverityCritical, audit.Fields{
		Details: map[string]any{"worker_id": workerID, "reason": nuclearReason, "count": len(sessions)},
	})
	if anyHostID == "" {
		return nil
	}
	return e.fanOut(ctx, anyHostID, workerclient.Invalidation{
		Scope:  workerclient.ScopeAllUsersWorker,
		Target: map[string]any{},
		Reason: reason,
	}, false)
}

// ClearHostConfig implements the host and config scopes, used when admin
// edits change host-level or worker-level configuration without touching
// sessions. forceRefresh surfaces RPC failure to the caller per spec.md §4.5.
func (e *Engine) ClearHostConfig(ctx context.Context, hostID, reason string, forceRefresh bool) error {
	return e.fanOutScoped(ctx, hostID, workerclient.ScopeHost, nil, reason, forceRefresh)
}

func (e *Engine) ClearWorkerConfig(ctx context.Context, hostID, reason string, forceRefresh bool) error {
	return e.fanOutScoped(ctx, hostID, workerclient.ScopeConfig, map[string]any{}, reason, forceRefresh)
}

func (e *Engine) fanOutScoped(ctx context.Context, hostID string, scope workerclient.Scope, target map[string]any, reason string, forceRefresh bool) error {
	host, err := e.store.GetHostByID(ctx, hostID)
	if err != nil {
		return err
	}
	if target == nil {
		target = map[string]any{"hostname": host.Domain}
	}
	return e.fanOut(ctx, hostID, workerclient.Invalidation{Scope: scope, Target: target, Reason: reason}, forceRefresh)
}

// ExpireStaleSessions marks sessions whose expires_at has passed as
// inactive. It does not fan out: edge caches naturally stop honoring an
// expired session on their own TTL, per spec.md §4.4's invariant that
// is_active implies expires_at > now.
func (e *Engine) ExpireStaleSessions(ctx context.Context, sessions []*models.Session) error {
	now := time.Now().UTC()
	for _, sess := range sessions {
		if sess.IsActive && !sess.ExpiresAt.After(now) {
			sess.IsActive = false
			if err := e.store.UpdateSession(ctx, sess); err != nil {
				return err
			}
			e.audit.Record(ctx, audit.EventSessionExpired, models.SeverityInfo, audit.Fields{
				SunrayUserID: sess.UserID,
				Details:      map[string]any{"session_id": sess.SessionID},
			})
		}
	}
	return nil
}

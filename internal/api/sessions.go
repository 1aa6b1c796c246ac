package api

import (
	"net/http"
	"time"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/session"
)

type sessionResponse struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	HostID      string    `json:"host_id"`
	SessionType string    `json:"session_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func toSessionResponse(s *models.Session) sessionResponse {
	return sessionResponse{
		SessionID:   s.SessionID,
		UserID:      s.UserID,
		HostID:      s.HostID,
		SessionType: string(s.SessionType),
		ExpiresAt:   s.ExpiresAt,
		CreatedAt:   s.CreatedAt,
	}
}

type createSessionRequest struct {
	UserID            string `json:"user_id"`
	HostID            string `json:"host_id"`
	SessionID         string `json:"session_id"`
	CredentialID      string `json:"credential_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
	CSRFToken         string `json:"csrf_token"`
	DurationS         int    `json:"duration_s"`
}

// handleCreateSession wraps internal/session.Engine.CreateNormal for
// worker-reported passkey-authenticated logins.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) (any, error) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.UserID == "" || req.HostID == "" || req.SessionID == "" {
		return nil, apierrors.NewValidationError("user_id, host_id, and session_id are required", nil)
	}

	sess, err := s.sessions.CreateNormal(r.Context(), session.CreateNormalParams{
		UserID:            req.UserID,
		HostID:            req.HostID,
		SessionID:         req.SessionID,
		CredentialID:      req.CredentialID,
		CreatedIP:         clientIP(r),
		DeviceFingerprint: req.DeviceFingerprint,
		UserAgent:         r.UserAgent(),
		CSRFToken:         req.CSRFToken,
		DurationS:         req.DurationS,
	})
	if err != nil {
		return nil, err
	}
	return toSessionResponse(sess), nil
}

type createRemoteSessionRequest struct {
	UserID     string `json:"user_id"`
	HostID     string `json:"host_id"`
	SessionID  string `json:"session_id"`
	DurationS  int    `json:"duration_s"`
	DeviceInfo string `json:"device_info"`
}

// handleCreateRemoteSession wraps internal/session.Engine.CreateRemote for
// the paid remote-auth tier.
func (s *Server) handleCreateRemoteSession(w http.ResponseWriter, r *http.Request) (any, error) {
	var req createRemoteSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.UserID == "" || req.HostID == "" || req.SessionID == "" || req.DurationS <= 0 {
		return nil, apierrors.NewValidationError("user_id, host_id, session_id, and a positive duration_s are required", nil)
	}

	sess, err := s.sessions.CreateRemote(r.Context(), session.CreateRemoteParams{
		UserID:     req.UserID,
		HostID:     req.HostID,
		SessionID:  req.SessionID,
		DurationS:  req.DurationS,
		DeviceInfo: req.DeviceInfo,
	})
	if err != nil {
		return nil, err
	}
	return toSessionResponse(sess), nil
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

// handleListSessions is worker-only: it enumerates every session (any host,
// any state) for a given user ID.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) (any, error) {
	userID := pathParam(r, "user_id")
	if userID == "" {
		return nil, apierrors.NewValidationError("user_id path parameter is required", nil)
	}

	sessions, err := s.store.ListSessionsByUser(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess))
	}

	s.audit.Record(r.Context(), audit.EventRemoteAuthSessionListed, models.SeverityInfo, audit.Fields{
		SunrayUserID: userID,
		IPAddress:    clientIP(r),
		Details:      map[string]any{"count": len(out)},
	})

	return listSessionsResponse{Sessions: out}, nil
}

// handleTerminateSession lets the owning user end their own session; any
// other caller gets 403. Admin-driven revocation goes through
// handleRevokeSession instead, which skips this ownership check.
func (s *Server) handleTerminateSession(w http.ResponseWriter, r *http.Request) (any, error) {
	sessionID := pathParam(r, "session_id")
	if sessionID == "" {
		return nil, apierrors.NewValidationError("session_id path parameter is required", nil)
	}
	requestingUserID := r.Header.Get("X-User-ID")
	if requestingUserID == "" {
		return nil, apierrors.NewValidationError("X-User-ID header is required", nil)
	}

	sess, err := s.store.GetSessionBySessionID(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != requestingUserID {
		return nil, apierrors.NewAuthzError("session does not belong to the requesting user", nil)
	}

	if err := s.sessions.RevokeSession(r.Context(), sessionID, "user-terminated"); err != nil {
		return nil, err
	}

	s.audit.Record(r.Context(), audit.EventRemoteAuthSessionTerminated, models.SeverityInfo, audit.Fields{
		SunrayUserID: requestingUserID,
		IPAddress:    clientIP(r),
		Details:      map[string]any{"session_id": sessionID},
	})

	return nil, nil
}

type revokeSessionRequest struct {
	Reason string `json:"reason"`
}

// handleRevokeSession is the admin/API-driven revocation path: no ownership
// check, any caller holding a valid API key may revoke any session.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) (any, error) {
	sessionID := pathParam(r, "session_id")
	if sessionID == "" {
		return nil, apierrors.NewValidationError("session_id path parameter is required", nil)
	}
	var req revokeSessionRequest
	_ = decodeJSON(r, &req) // reason is optional; malformed/empty body is fine
	reason := req.Reason
	if reason == "" {
		reason = "admin-revoked"
	}

	if err := s.sessions.RevokeSession(r.Context(), sessionID, reason); err != nil {
		return nil, err
	}
	return nil, nil
}

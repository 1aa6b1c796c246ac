package api

import (
	"net/http"
	"time"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

type usersCheckRequest struct {
	Username string `json:"username"`
}

type usersCheckResponse struct {
	Exists bool `json:"exists"`
}

// handleUsersCheck answers whether a username is registered at all, with no
// host context. It intentionally carries no enumeration defense of its own:
// spec.md §4.3's timing-safe behavior applies only to the email-OTP request
// path, not this admin/worker-facing lookup.
func (s *Server) handleUsersCheck(w http.ResponseWriter, r *http.Request) (any, error) {
	var req usersCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Username == "" {
		return nil, apierrors.NewValidationError("username is required", nil)
	}

	_, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err == store.ErrNotFound {
		return usersCheckResponse{Exists: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return usersCheckResponse{Exists: true}, nil
}

type usersValidateRequest struct {
	Username string `json:"username"`
	Host     string `json:"host"`
}

type usersValidateResponse struct {
	UserExists         bool `json:"user_exists"`
	HasPasskey         bool `json:"has_passkey"`
	HasValidToken      bool `json:"has_valid_token"`
	RemoteLoginAllowed bool `json:"remote_login_allowed"`
}

// handleUsersValidate reports the full pre-authentication picture a worker
// needs to decide whether to present a passkey prompt, a setup-token prompt,
// or a remote-login option. has_passkey and has_valid_token are both scoped
// to the requesting host: a passkey registered for a different domain, or a
// setup token issued for a different host, must not unlock this one.
// remote_login_allowed is derived purely from the host being in its
// deployment window (spec.md §9 Open Question (c): remote login is a
// deployment-rollout aid, not a standing alternative to passkeys once a
// host goes fully protected).
func (s *Server) handleUsersValidate(w http.ResponseWriter, r *http.Request) (any, error) {
	var req usersValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Username == "" || req.Host == "" {
		return nil, apierrors.NewValidationError("username and host are required", nil)
	}

	host, err := s.store.GetHostByDomain(r.Context(), req.Host)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err == store.ErrNotFound || user == nil || !user.IsActive {
		s.audit.Record(r.Context(), audit.EventUserValidationUnknownUser, models.SeverityInfo, audit.Fields{
			Username: req.Username,
			Details:  map[string]any{"host_id": host.ID},
		})
		return usersValidateResponse{}, nil
	}
	if err != nil {
		return nil, err
	}

	passkeys, err := s.store.ListPasskeysByUser(r.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	hasPasskey := false
	for _, pk := range passkeys {
		if pk.HostDomain == host.Domain {
			hasPasskey = true
			break
		}
	}

	tokens, err := s.store.ListSetupTokensByUserAndHost(r.Context(), user.ID, host.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	hasValidToken := false
	for _, t := range tokens {
		if t.Valid(now) {
			hasValidToken = true
			break
		}
	}

	s.audit.Record(r.Context(), audit.EventUserValidationSuccess, models.SeverityInfo, audit.Fields{
		SunrayUserID: user.ID,
		Username:     user.Username,
		Details:      map[string]any{"host_id": host.ID},
	})

	return usersValidateResponse{
		UserExists:         true,
		HasPasskey:         hasPasskey,
		HasValidToken:      hasValidToken,
		RemoteLoginAllowed: host.State(now) == models.HostStateDeployment,
	}, nil
}

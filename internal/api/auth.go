package api

import (
	"net/http"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

type authVerifyRequest struct {
	Username     string `json:"username"`
	CredentialID string `json:"credential_id"`
	HostDomain   string `json:"host_domain"`
	Success      bool   `json:"success"`
	FailureCode  string `json:"failure_code"`
}

type authVerifyResponse struct {
	Recorded bool `json:"recorded"`
}

// handleAuthVerify records the outcome of a passkey authentication the
// worker already completed out of band; the control plane never touches
// WebAuthn assertions directly.
func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) (any, error) {
	var req authVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Username == "" || req.HostDomain == "" {
		return nil, apierrors.NewValidationError("username and host_domain are required", nil)
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}

	fields := audit.Fields{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Details:   map[string]any{"host_domain": req.HostDomain, "credential_id": req.CredentialID},
	}
	if user != nil {
		fields.SunrayUserID = user.ID
		fields.Username = user.Username
	} else {
		fields.Username = req.Username
	}

	if req.Success {
		s.audit.Record(r.Context(), audit.EventAuthSuccess, models.SeverityInfo, fields)
	} else {
		fields.Details["failure_code"] = req.FailureCode
		s.audit.Record(r.Context(), audit.EventAuthFailure, models.SeverityWarning, fields)
	}

	return authVerifyResponse{Recorded: true}, nil
}

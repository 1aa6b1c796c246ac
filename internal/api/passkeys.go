package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

type passkeyReportRequest struct {
	CredentialID   string `json:"credential_id"`
	PublicKey      string `json:"public_key"`
	HostDomain     string `json:"host_domain"`
	Name           string `json:"name"`
	BackupEligible bool   `json:"backup_eligible"`
	BackupState    bool   `json:"backup_state"`
}

type passkeyReportResponse struct {
	ID string `json:"id"`
}

// handlePasskeyReport records a passkey the worker has already registered
// with the browser via WebAuthn. Trust in the credential itself is entirely
// delegated to the worker (spec.md §3's Passkey note); the control plane
// only persists what it is told.
func (s *Server) handlePasskeyReport(w http.ResponseWriter, r *http.Request) (any, error) {
	username := pathParam(r, "username")
	if username == "" {
		return nil, apierrors.NewValidationError("username path parameter is required", nil)
	}

	var req passkeyReportRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.CredentialID == "" || req.PublicKey == "" || req.HostDomain == "" {
		return nil, apierrors.NewValidationError("credential_id, public_key, and host_domain are required", nil)
	}

	user, err := s.store.GetUserByUsername(r.Context(), username)
	if err == store.ErrNotFound {
		return nil, apierrors.NewNotFoundError("user not found", nil)
	}
	if err != nil {
		return nil, err
	}

	p := &models.Passkey{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		CredentialID:   req.CredentialID,
		PublicKey:      req.PublicKey,
		HostDomain:     req.HostDomain,
		Name:           req.Name,
		BackupEligible: req.BackupEligible,
		BackupState:    req.BackupState,
		RegistrationIP: clientIP(r),
		RegistrationUA: r.UserAgent(),
	}
	if err := s.store.CreatePasskey(r.Context(), p); err != nil {
		return nil, err
	}

	s.audit.Record(r.Context(), audit.EventPasskeyRegistered, models.SeverityInfo, audit.Fields{
		SunrayUserID: user.ID,
		Username:     user.Username,
		IPAddress:    p.RegistrationIP,
		UserAgent:    p.RegistrationUA,
		Details:      map[string]any{"host_domain": req.HostDomain},
	})

	return passkeyReportResponse{ID: p.ID}, nil
}

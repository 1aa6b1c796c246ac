package api

import (
	"net/http"

	"github.com/sunrayhq/control-plane/internal/apierrors"
)

type setupTokenValidateRequest struct {
	Username  string `json:"username"`
	TokenHash string `json:"token_hash"`
	ClientIP  string `json:"client_ip"`
}

type setupTokenValidateResponse struct {
	Valid bool                      `json:"valid"`
	Error string                    `json:"error,omitempty"`
	User  *setupTokenValidateUser   `json:"user,omitempty"`
}

type setupTokenValidateUser struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// handleSetupTokenValidate wraps internal/token.Issuer.ValidateSetupToken.
// The worker hashes the setup token client-side and sends only the SHA-512
// hex digest here; the plaintext token never transits the control plane.
func (s *Server) handleSetupTokenValidate(w http.ResponseWriter, r *http.Request) (any, error) {
	var req setupTokenValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Username == "" || req.TokenHash == "" {
		return nil, apierrors.NewValidationError("username and token_hash are required", nil)
	}

	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = r.RemoteAddr
	}

	result, err := s.setup.ValidateSetupToken(r.Context(), req.Username, req.TokenHash, clientIP)
	if err != nil {
		return nil, err
	}

	resp := setupTokenValidateResponse{Valid: result.Valid, Error: result.Error}
	if result.User != nil {
		resp.User = &setupTokenValidateUser{
			Username:    result.User.Username,
			Email:       result.User.Email,
			DisplayName: result.User.DisplayName,
		}
	}
	return resp, nil
}

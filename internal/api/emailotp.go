package api

import (
	"net/http"
	"time"

	"github.com/sunrayhq/control-plane/internal/apierrors"
)

const defaultOTPValiditySeconds = 300

type emailOTPRequestRequest struct {
	Email            string `json:"email"`
	HostID           string `json:"host_id"`
	BrowserTokenHash string `json:"browser_token_hash"`
	ValiditySeconds  int    `json:"validity_seconds"`
}

type emailOTPRequestResponse struct {
	OTPRequestID      string    `json:"otp_request_id"`
	OTPCode           *string   `json:"otp_code"`
	ExpiresAt         time.Time `json:"expires_at"`
	ResendAvailableAt time.Time `json:"resend_available_at"`
}

// handleEmailOTPRequest wraps internal/token.EmailIssuer.RequestEmailOTP.
// The worker transports the returned code to the user's mailbox; otp_code is
// null when no matching active, host-authorized user exists, but the rest of
// the response is indistinguishable from the known-user case so the endpoint
// cannot be used to enumerate accounts.
func (s *Server) handleEmailOTPRequest(w http.ResponseWriter, r *http.Request) (any, error) {
	var req emailOTPRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Email == "" || req.HostID == "" || req.BrowserTokenHash == "" {
		return nil, apierrors.NewValidationError("email, host_id, and browser_token_hash are required", nil)
	}
	validity := req.ValiditySeconds
	if validity <= 0 {
		validity = defaultOTPValiditySeconds
	}

	result, err := s.email.RequestEmailOTP(r.Context(), req.Email, req.HostID, req.BrowserTokenHash,
		clientIP(r), r.UserAgent(), validity)
	if err != nil {
		return nil, err
	}
	return emailOTPRequestResponse{
		OTPRequestID:      result.OTPRequestID,
		OTPCode:           result.OTPCode,
		ExpiresAt:         result.ExpiresAt,
		ResendAvailableAt: result.ResendAvailableAt,
	}, nil
}

type emailOTPValidateRequest struct {
	Email            string `json:"email"`
	OTPCode          string `json:"otp_code"`
	OTPRequestID     string `json:"otp_request_id"`
	BrowserTokenHash string `json:"browser_token_hash"`
	HostDomain       string `json:"host_domain"`
}

type emailOTPValidateResponse struct {
	Valid            bool   `json:"valid"`
	ErrorCode        string `json:"error_code,omitempty"`
	SessionDurationS int    `json:"session_duration_s,omitempty"`
}

// handleEmailOTPValidate wraps internal/token.EmailIssuer.ValidateEmailOTP.
func (s *Server) handleEmailOTPValidate(w http.ResponseWriter, r *http.Request) (any, error) {
	var req emailOTPValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Email == "" || req.OTPCode == "" || req.OTPRequestID == "" || req.BrowserTokenHash == "" || req.HostDomain == "" {
		return nil, apierrors.NewValidationError("email, otp_code, otp_request_id, browser_token_hash, and host_domain are required", nil)
	}

	result, err := s.email.ValidateEmailOTP(r.Context(), req.Email, req.OTPCode, req.OTPRequestID,
		req.BrowserTokenHash, req.HostDomain, clientIP(r), r.UserAgent())
	if err != nil {
		return nil, err
	}
	return emailOTPValidateResponse{
		Valid:            result.Valid,
		ErrorCode:        string(result.ErrorCode),
		SessionDurationS: result.SessionDurationS,
	}, nil
}

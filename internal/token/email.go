package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
)

const otpAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// EmailStore extends Store with the host lookups email-OTP request/validation
// requires.
type EmailStore interface {
	Store
	GetHostByID(ctx context.Context, id string) (*models.Host, error)
	GetHostByDomain(ctx context.Context, domain string) (*models.Host, error)
}

// EmailIssuer generates and validates email OTPs (spec.md §4.3). It is a
// separate type from Issuer, which handles setup tokens, and its store
// surface (EmailStore) adds host lookups, so callers that only need
// setup-token behavior can depend on the narrower interface.
type EmailIssuer struct {
	store EmailStore
	audit *audit.Logger
}

func NewEmailIssuer(s EmailStore, a *audit.Logger) *EmailIssuer {
	return &EmailIssuer{store: s, audit: a}
}

// EmailOTPRequestResult is always returned with the same JSON key shape
// regardless of whether the user exists (P5, timing-safe enumeration).
type EmailOTPRequestResult struct {
	OTPRequestID      string
	OTPCode           *string // nil when the user does not exist
	ExpiresAt         time.Time
	ResendAvailableAt time.Time
}

// RequestEmailOTP implements spec.md §4.3's create_email_otp. The caller
// (internal/api) is responsible for actually dispatching OTPCode by email;
// this function only persists state and returns the plain code for that
// purpose.
func (e *EmailIssuer) RequestEmailOTP(ctx context.Context, email, hostID, browserTokenHash, clientIP, userAgent string, validitySeconds int) (EmailOTPRequestResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(validitySeconds) * time.Second)
	requestID := "otp_req_" + randomHex(16)

	user, err := e.store.GetUserByEmail(ctx, email)
	userExists := err == nil && user != nil && user.IsActive && hostAuthorized(ctx, e.store, user.ID, hostID)

	result := EmailOTPRequestResult{
		OTPRequestID:      requestID,
		ExpiresAt:         expiresAt,
		ResendAvailableAt: now.Add(60 * time.Second),
	}

	code, err := randomOTPCode()
	if err != nil {
		return EmailOTPRequestResult{}, fmt.Errorf("token: generate otp code: %w", err)
	}

	rec := &models.EmailOTP{
		ID:               uuid.NewString(),
		HostID:           hostID,
		OTPRequestID:     requestID,
		OTPHash:          hashSHA256(normalizeOTP(code)),
		BrowserTokenHash: browserTokenHash,
		Email:            email,
		ExpiresAt:        expiresAt,
		ClientIP:         clientIP,
		UserAgent:        userAgent,
	}
	if userExists {
		rec.UserID = &user.ID
	}

	if err := e.store.CreateEmailOTP(ctx, rec); err != nil {
		return EmailOTPRequestResult{}, err
	}

	if userExists {
		result.OTPCode = &code
		e.audit.Record(ctx, audit.EventEmailOTPRequested, models.SeverityInfo, audit.Fields{
			SunrayUserID: user.ID,
			Username:     user.Username,
			IPAddress:    clientIP,
			UserAgent:    userAgent,
			Details:      map[string]any{"host_id": hostID, "otp_request_id": requestID},
		})
	} else {
		e.audit.Record(ctx, audit.EventEmailOTPRequestedUnknown, models.SeverityInfo, audit.Fields{
			IPAddress: clientIP,
			UserAgent: userAgent,
			Details:   map[string]any{"host_id": hostID, "otp_request_id": requestID, "email": email},
		})
	}

	return result, nil
}

func hostAuthorized(ctx context.Context, s EmailStore, userID, hostID string) bool {
	ids, err := s.UserAuthorizedHostIDs(ctx, userID)
	if err != nil {
		return false
	}
	for _, id := range ids {
		if id == hostID {
			return true
		}
	}
	return false
}

// EmailOTPErrorCode is the closed set of failure codes from spec.md §4.3, in
// priority order.
type EmailOTPErrorCode string

const (
	ErrHostNotFound          EmailOTPErrorCode = "host_not_found"
	ErrOTPNotFound           EmailOTPErrorCode = "otp_not_found"
	ErrAlreadyConsumed       EmailOTPErrorCode = "already_consumed"
	ErrExpired               EmailOTPErrorCode = "expired"
	ErrMaxAttemptsExceeded   EmailOTPErrorCode = "max_attempts_exceeded"
	ErrBrowserTokenMismatch  EmailOTPErrorCode = "browser_token_mismatch"
	ErrInvalidCode           EmailOTPErrorCode = "invalid_code"
)

// EmailOTPValidationResult is the response shape for validate_email_otp.
type EmailOTPValidationResult struct {
	Valid             bool
	ErrorCode         EmailOTPErrorCode
	SessionDurationS  int
}

const defaultMaxAttempts = 5

// ValidateEmailOTP implements spec.md §4.3's validate_email_otp, including
// the exact check ordering and the attempts-increment rule (incremented only
// for "syntactically valid but wrong" exits, never for structural failures).
func (e *EmailIssuer) ValidateEmailOTP(ctx context.Context, email, otpCode, otpRequestID, browserTokenHash, hostDomain, clientIP, userAgent string) (EmailOTPValidationResult, error) {
	var result EmailOTPValidationResult

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		host, err := e.store.GetHostByDomain(ctx, hostDomain)
		if err != nil || host == nil {
			result = EmailOTPValidationResult{ErrorCode: ErrHostNotFound}
			return nil
		}

		otp, err := e.store.GetEmailOTPByRequestID(ctx, otpRequestID)
		if err != nil || otp == nil {
			result = EmailOTPValidationResult{ErrorCode: ErrOTPNotFound}
			return nil
		}

		if otp.Consumed {
			result = EmailOTPValidationResult{ErrorCode: ErrAlreadyConsumed}
			return nil
		}

		now := time.Now().UTC()
		if !otp.ExpiresAt.After(now) {
			e.audit.Record(ctx, audit.EventEmailOTPExpired, models.SeverityInfo, audit.Fields{
				IPAddress: clientIP, UserAgent: userAgent,
				Details: map[string]any{"otp_request_id": otpRequestID},
			})
			result = EmailOTPValidationResult{ErrorCode: ErrExpired}
			return nil
		}

		if otp.Attempts >= defaultMaxAttempts {
			e.audit.Record(ctx, audit.EventEmailOTPLockout, models.SeverityWarning, audit.Fields{
				IPAddress: clientIP, UserAgent: userAgent,
				Details: map[string]any{"otp_request_id": otpRequestID},
			})
			result = EmailOTPValidationResult{ErrorCode: ErrMaxAttemptsExceeded}
			return nil
		}

		if subtle.ConstantTimeCompare([]byte(otp.BrowserTokenHash), []byte(browserTokenHash)) != 1 {
			otp.Attempts++
			if err := e.store.UpdateEmailOTP(ctx, otp); err != nil {
				return err
			}
			e.audit.Record(ctx, audit.EventEmailOTPBrowserMismatch, models.SeverityWarning, audit.Fields{
				IPAddress: clientIP, UserAgent: userAgent,
				Details: map[string]any{"otp_request_id": otpRequestID, "attempts": otp.Attempts},
			})
			result = EmailOTPValidationResult{ErrorCode: ErrBrowserTokenMismatch}
			return nil
		}

		if subtle.ConstantTimeCompare([]byte(otp.OTPHash), []byte(hashSHA256(normalizeOTP(otpCode)))) != 1 {
			otp.Attempts++
			if err := e.store.UpdateEmailOTP(ctx, otp); err != nil {
				return err
			}
			e.audit.Record(ctx, audit.EventEmailOTPFailed, models.SeverityInfo, audit.Fields{
				IPAddress: clientIP, UserAgent: userAgent,
				Details: map[string]any{"otp_request_id": otpRequestID, "attempts": otp.Attempts},
			})
			result = EmailOTPValidationResult{ErrorCode: ErrInvalidCode}
			return nil
		}

		otp.Consumed = true
		otp.ConsumedAt = &now
		if err := e.store.UpdateEmailOTP(ctx, otp); err != nil {
			return err
		}

		duration := host.EmailLoginSessionDurationS
		if duration == 0 {
			duration = host.SessionDurationS
		}

		e.audit.Record(ctx, audit.EventEmailOTPValidated, models.SeverityInfo, audit.Fields{
			IPAddress: clientIP, UserAgent: userAgent,
			Details: map[string]any{"otp_request_id": otpRequestID},
		})

		result = EmailOTPValidationResult{Valid: true, SessionDurationS: duration}
		return nil
	})
	if err != nil {
		return EmailOTPValidationResult{}, err
	}
	return result, nil
}

// CleanupExpired implements spec.md §4.3's cleanup_expired cron: removes
// OTPs expired more than 24h ago, or consumed more than 24h ago.
func (e *EmailIssuer) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	n, err := e.store.DeleteExpiredEmailOTPs(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	e.audit.Record(ctx, audit.EventEmailOTPCleanup, models.SeverityInfo, audit.Fields{
		Details: map[string]any{"deleted": n},
	})
	return n, nil
}

// normalizeOTP strips dashes/spaces and uppercases, per spec.md §4.1.
func normalizeOTP(code string) string {
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}

func hashSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	buf := make([]byte, n/2)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// randomOTPCode produces an 8-character code from otpAlphabet formatted
// AAAA-BBBB (spec.md §4.1).
func randomOTPCode() (string, error) {
	raw := make([]byte, 8)
	idx := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	for i, b := range raw {
		idx[i] = otpAlphabet[int(b)%len(otpAlphabet)]
	}
	return string(idx[:4]) + "-" + string(idx[4:]), nil
}

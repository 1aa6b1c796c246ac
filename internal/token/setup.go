// Package token implements the credential protocols of spec.md §4.1-§4.3:
// setup-token generation/validation and email-OTP request/validation,
// including the timing-safe enumeration defense and the browser-binding
// anti-phishing check.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

// Store is the persistence surface the token subsystem depends on.
type Store interface {
	store.UserStore
	store.SetupTokenStore
	store.EmailOTPStore
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Issuer generates and validates setup tokens; email OTPs are handled by
// EmailIssuer.
type Issuer struct {
	store Store
	audit *audit.Logger
}

func NewIssuer(s Store, a *audit.Logger) *Issuer {
	return &Issuer{store: s, audit: a}
}

// GenerateSetupToken is the single entry point for setup-token creation
// (spec.md §4.1). It returns the persisted record and the plain token,
// which is never retrievable again once this call returns.
func (iss *Issuer) GenerateSetupToken(ctx context.Context, userID, hostID, deviceName string, validityHours int, maxUses int, allowedCIDRs string) (*models.SetupToken, string, error) {
	plain, err := randomDashedToken(32, 5)
	if err != nil {
		return nil, "", apierrors.NewInternalError("generate setup token", err)
	}

	rec := &models.SetupToken{
		ID:           uuid.NewString(),
		UserID:       userID,
		HostID:       hostID,
		TokenHash:    hashSHA512(plain),
		DeviceName:   deviceName,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(validityHours) * time.Hour),
		MaxUses:      maxUses,
		AllowedCIDRs: allowedCIDRs,
	}

	if err := iss.store.CreateSetupToken(ctx, rec); err != nil {
		return nil, "", err
	}

	iss.audit.Record(ctx, audit.EventSetupTokenGenerated, models.SeverityInfo, audit.Fields{
		SunrayUserID: userID,
		Details:      map[string]any{"host_id": hostID, "device_name": deviceName, "max_uses": maxUses},
	})

	return rec, plain, nil
}

// SetupTokenResult is the shape returned to the worker for
// /sunray-srvr/v1/setup-tokens/validate.
type SetupTokenResult struct {
	Valid bool
	Error string
	User  *SetupTokenUser
}

type SetupTokenUser struct {
	Username    string
	Email       string
	DisplayName string
}

// ValidateSetupToken implements spec.md §4.2 step by step, inside a single
// transaction so the increment of current_uses is serialized against
// concurrent validation attempts on the same token (spec.md §5).
func (iss *Issuer) ValidateSetupToken(ctx context.Context, username, tokenHash, clientIP string) (SetupTokenResult, error) {
	var result SetupTokenResult

	err := iss.store.WithTx(ctx, func(ctx context.Context) error {
		user, err := iss.store.GetUserByUsername(ctx, username)
		if err != nil || !userActive(err, user) {
			result = SetupTokenResult{Valid: false, Error: "User not found"}
			return nil
		}

		tok, err := iss.store.GetSetupTokenByUserAndHash(ctx, user.ID, tokenHash)
		if err != nil || tok == nil || !tok.Valid(time.Now().UTC()) {
			result = SetupTokenResult{Valid: false, Error: "Invalid or expired token"}
			return nil
		}

		if tok.AllowedCIDRs != "" && !ipAllowed(clientIP, tok.AllowedCIDRs) {
			result = SetupTokenResult{Valid: false, Error: "IP not allowed"}
			return nil
		}

		if tok.CurrentUses >= tok.MaxUses {
			result = SetupTokenResult{Valid: false, Error: "Token usage limit exceeded"}
			return nil
		}

		now := time.Now().UTC()
		tok.CurrentUses++
		tok.Consumed = tok.CurrentUses >= tok.MaxUses
		if tok.Consumed {
			tok.ConsumedDate = &now
		}
		if err := iss.store.UpdateSetupToken(ctx, tok); err != nil {
			return err
		}

		iss.audit.Record(ctx, audit.EventSetupTokenConsumed, models.SeverityInfo, audit.Fields{
			SunrayUserID: user.ID,
			Username:     user.Username,
			IPAddress:    clientIP,
			Details:      map[string]any{"host_id": tok.HostID, "current_uses": tok.CurrentUses},
		})

		result = SetupTokenResult{
			Valid: true,
			User:  &SetupTokenUser{Username: user.Username, Email: user.Email, DisplayName: user.EffectiveDisplayName()},
		}
		return nil
	})
	if err != nil {
		return SetupTokenResult{}, err
	}
	return result, nil
}

func userActive(err error, u *models.User) bool {
	return err == nil && u != nil && u.IsActive
}

// ipAllowed checks clientIP against a newline-separated list of IPs/CIDRs
// with '#' comment support (spec.md §3's SetupToken.allowed_cidrs shape).
func ipAllowed(clientIP, allowedCIDRs string) bool {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	for _, line := range strings.Split(allowedCIDRs, "\n") {
		entry := strings.TrimSpace(line)
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		if entry == clientIP {
			return true
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil && cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// hashSHA512 matches the "sha512:<hex>" storage format of spec.md §3.
func hashSHA512(plain string) string {
	sum := sha512.Sum512([]byte(plain))
	return "sha512:" + hex.EncodeToString(sum[:])
}

// HashSetupToken exposes the storage hash format to callers (the API layer)
// that must hash a caller-supplied plaintext token before it ever reaches
// ValidateSetupToken.
func HashSetupToken(plain string) string {
	return hashSHA512(plain)
}

// randomDashedToken generates an entropy-dense random token formatted as
// dash-separated groups for dictation (spec.md §4.1).
func randomDashedToken(byteLen, groupSize int) (string, error) {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: read random bytes: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	raw = strings.NewReplacer("-", "", "_", "").Replace(raw)

	var b strings.Builder
	for i := 0; i < len(raw); i += groupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + groupSize
		if end > len(raw) {
			end = len(raw)
		}
		b.WriteString(raw[i:end])
	}
	return b.String(), nil
}

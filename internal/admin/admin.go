// Package admin implements the control-plane primitives behind the admin
// surface: API key lifecycle, worker onboarding, passkey revocation, host
// authorization, webhook token management, and access-rule creation. The
// HTML admin UI itself lives outside this module; these are the operations
// it calls, audited wherever the closed event taxonomy names a matching
// event.
package admin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sunrayhq/control-plane/internal/accessrule"
	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

// Store is the persistence surface the admin primitives need.
type Store interface {
	store.APIKeyStore
	store.WorkerStore
	store.PasskeyStore
	store.UserStore
	store.HostStore
	store.WebhookTokenStore
	store.AccessRuleStore
}

// Service carries out admin mutations against the Store.
type Service struct {
	store Store
	audit *audit.Logger
}

func NewService(s Store, a *audit.Logger) *Service {
	return &Service{store: s, audit: a}
}

// CreateAPIKey creates a key with the given scopes. The key value is
// auto-generated (32-byte URL-safe random) when the caller leaves it empty.
func (s *Service) CreateAPIKey(ctx context.Context, key, scopes string) (*models.APIKey, error) {
	if key == "" {
		var err error
		key, err = randomKey()
		if err != nil {
			return nil, apierrors.NewInternalError("generate api key", err)
		}
	}
	if scopes == "" {
		scopes = "all"
	}
	k := &models.APIKey{ID: uuid.NewString(), Key: key, Scopes: scopes, IsActive: true}
	if err := s.store.CreateAPIKey(ctx, k); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.EventAPIKeyCreated, models.SeverityInfo, audit.Fields{
		APIKeyID: k.ID,
		Details:  map[string]any{"scopes": scopes},
	})
	return k, nil
}

// RegenerateAPIKey replaces the key value of an existing ApiKey, invalidating
// the old value immediately. Usage counters are preserved.
func (s *Service) RegenerateAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	k, err := s.store.GetAPIKeyByID(ctx, id)
	if err != nil {
		return nil, err
	}
	newKey, err := randomKey()
	if err != nil {
		return nil, apierrors.NewInternalError("generate api key", err)
	}
	k.Key = newKey
	if err := s.store.UpdateAPIKey(ctx, k); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.EventAPIKeyRegenerated, models.SeverityWarning, audit.Fields{
		APIKeyID: k.ID,
	})
	return k, nil
}

// DeleteAPIKey removes an ApiKey. A worker still referencing it will fail
// authentication on its next call, which is the point.
func (s *Service) DeleteAPIKey(ctx context.Context, id string) error {
	if _, err := s.store.GetAPIKeyByID(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteAPIKey(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.EventAPIKeyDeleted, models.SeverityWarning, audit.Fields{
		APIKeyID: id,
	})
	return nil
}

// CreateWorker onboards a new edge worker identity bound to an ApiKey.
func (s *Service) CreateWorker(ctx context.Context, name, workerType, workerURL, apiKeyID string) (*models.Worker, error) {
	if name == "" {
		return nil, apierrors.NewValidationError("worker name must not be empty", nil)
	}
	if _, err := s.store.GetAPIKeyByID(ctx, apiKeyID); err != nil {
		return nil, err
	}
	w := &models.Worker{ID: uuid.NewString(), Name: name, WorkerType: workerType, WorkerURL: workerURL, APIKeyID: apiKeyID}
	if err := s.store.CreateWorker(ctx, w); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.EventWorkerRegistered, models.SeverityInfo, audit.Fields{
		SunrayWorker: name,
		Details:      map[string]any{"worker_type": workerType, "worker_url": workerURL},
	})
	return w, nil
}

// RevokePasskey removes a credential. The owning user's sessions are not
// touched here; the admin decides separately whether to revoke them.
func (s *Service) RevokePasskey(ctx context.Context, credentialID, reason string) error {
	p, err := s.store.GetPasskeyByCredentialID(ctx, credentialID)
	if err != nil {
		return err
	}
	if err := s.store.DeletePasskey(ctx, p.ID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.EventPasskeyRevoked, models.SeverityWarning, audit.Fields{
		SunrayUserID: p.UserID,
		Details:      map[string]any{"credential_id": credentialID, "host_domain": p.HostDomain, "reason": reason},
	})
	return nil
}

// AuthorizeUserForHost adds a user to a host's authorized set.
func (s *Service) AuthorizeUserForHost(ctx context.Context, userID, hostID string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	host, err := s.store.GetHostByID(ctx, hostID)
	if err != nil {
		return err
	}
	if err := s.store.AuthorizeUserForHost(ctx, userID, hostID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.EventHostUserAuthorized, models.SeverityInfo, audit.Fields{
		SunrayUserID: user.ID,
		Username:     user.Username,
		Details:      map[string]any{"host_id": hostID, "domain": host.Domain},
	})
	return nil
}

// CreateWebhookToken creates a webhook token on a host. The secret value is
// auto-generated; token_source decides which of header_name/param_name must
// be set (spec.md §3's WebhookToken invariant).
func (s *Service) CreateWebhookToken(ctx context.Context, hostID, name, headerName, paramName string, tokenSource models.TokenSource, allowedCIDRs string, expiresAt *time.Time) (*models.WebhookToken, error) {
	if _, err := s.store.GetHostByID(ctx, hostID); err != nil {
		return nil, err
	}
	switch tokenSource {
	case models.TokenSourceHeader:
		if headerName == "" {
			return nil, apierrors.NewValidationError("token_source=header requires header_name", nil)
		}
	case models.TokenSourceParam:
		if paramName == "" {
			return nil, apierrors.NewValidationError("token_source=param requires param_name", nil)
		}
	case models.TokenSourceBoth:
		if headerName == "" && paramName == "" {
			return nil, apierrors.NewValidationError("token_source=both requires header_name or param_name", nil)
		}
	default:
		return nil, apierrors.NewValidationError(fmt.Sprintf("unknown token_source %q", tokenSource), nil)
	}

	value, err := randomWebhookToken()
	if err != nil {
		return nil, apierrors.NewInternalError("generate webhook token", err)
	}
	tok := &models.WebhookToken{
		ID:           uuid.NewString(),
		HostID:       hostID,
		Name:         name,
		Token:        value,
		HeaderName:   headerName,
		ParamName:    paramName,
		TokenSource:  tokenSource,
		AllowedCIDRs: allowedCIDRs,
		ExpiresAt:    expiresAt,
	}
	if err := s.store.CreateWebhookToken(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// CreateAccessRule attaches a rule to a host. Expression-bearing rule types
// (cidr, expr) are compiled before they are stored, so a malformed CIDR
// literal or CEL expression is rejected at write time and never reaches an
// edge worker; URL-pattern rule types carry plain match strings the worker
// interprets itself.
func (s *Service) CreateAccessRule(ctx context.Context, hostID, ruleType, value string) (*models.AccessRule, error) {
	if _, err := s.store.GetHostByID(ctx, hostID); err != nil {
		return nil, err
	}
	rule := &models.AccessRule{ID: uuid.NewString(), HostID: hostID, RuleType: ruleType, Value: value}
	switch ruleType {
	case "cidr", "expr":
		if _, err := accessrule.Compile(rule); err != nil {
			return nil, apierrors.NewValidationError("invalid access rule", err)
		}
	case "public_url_pattern", "token_url_pattern":
		if value == "" {
			return nil, apierrors.NewValidationError("url pattern rule must not be empty", nil)
		}
	default:
		return nil, apierrors.NewValidationError(fmt.Sprintf("unknown rule_type %q", ruleType), nil)
	}
	if err := s.store.CreateAccessRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// RegenerateWebhookToken replaces a webhook token's secret value.
func (s *Service) RegenerateWebhookToken(ctx context.Context, id string) (*models.WebhookToken, error) {
	tok, err := s.findWebhookToken(ctx, id)
	if err != nil {
		return nil, err
	}
	newValue, err := randomWebhookToken()
	if err != nil {
		return nil, apierrors.NewInternalError("generate webhook token", err)
	}
	tok.Token = newValue
	if err := s.store.UpdateWebhookToken(ctx, tok); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.EventWebhookRegenerated, models.SeverityInfo, audit.Fields{
		Details: map[string]any{"webhook_token_id": tok.ID, "host_id": tok.HostID},
	})
	return tok, nil
}

// findWebhookToken resolves a webhook token row by its ID. The store only
// indexes webhook tokens by host and secret value, so the lookup walks the
// token list of every active host; a token whose host is inactive is not
// found.
func (s *Service) findWebhookToken(ctx context.Context, id string) (*models.WebhookToken, error) {
	hosts, err := s.store.ListActiveHosts(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range hosts {
		tokens, err := s.store.ListWebhookTokensByHost(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range tokens {
			if t.ID == id {
				return t, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

// randomKey matches the ApiKey spec: 32 bytes of entropy, URL-safe encoding.
func randomKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("admin: read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// randomWebhookToken produces the 32-character hex secret webhook producers
// present.
func randomWebhookToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("admin: read random bytes: %w", err)
	}
	return fmt.Sprintf("%x", buf), nil
}

// Package snapshot builds the worker-consumable configuration document of
// spec.md §4.8 (C8). It is the authority workers MUST reconcile local
// caches to; only active users, active hosts, and valid webhook tokens are
// included.
package snapshot

import (
	"context"
	"strconv"
	"time"

	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

const snapshotVersion = 3

// Store is the persistence surface the snapshot builder needs.
type Store interface {
	store.UserStore
	store.HostStore
	store.PasskeyStore
	store.WebhookTokenStore
	store.AccessRuleStore
	store.ConfigStore
}

// Document is the root JSON shape of spec.md §4.8.
type Document struct {
	Version     int                `json:"version"`
	GeneratedAt time.Time          `json:"generated_at"`
	Users       map[string]User    `json:"users"`
	Hosts       []Host             `json:"hosts"`
}

type Passkey struct {
	CredentialID   string    `json:"credential_id"`
	PublicKey      string    `json:"public_key"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	BackupEligible bool      `json:"backup_eligible"`
	BackupState    bool      `json:"backup_state"`
}

type User struct {
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	Passkeys    []Passkey `json:"passkeys"`
}

type WebhookToken struct {
	Token        string     `json:"token"`
	Name         string     `json:"name"`
	AllowedCIDRs string     `json:"allowed_cidrs"`
	ExpiresAt    *time.Time `json:"expires_at"`
	HeaderName   string     `json:"header_name"`
	ParamName    string     `json:"param_name"`
	TokenSource  string     `json:"token_source"`
}

type RemoteAuth struct {
	Enabled             bool `json:"enabled"`
	SessionTTL          int  `json:"session_ttl"`
	MaxSessionTTL       int  `json:"max_session_ttl"`
	SessionMgmtEnabled  bool `json:"session_mgmt_enabled"`
	SessionMgmtTTL      int  `json:"session_mgmt_ttl"`
	PollingInterval     int  `json:"polling_interval"`
	ChallengeTTL        int  `json:"challenge_ttl"`
}

type DeploymentMode struct {
	Enabled         bool       `json:"enabled"`
	GoLiveDate      *time.Time `json:"golive_date"`
	DaysUntilGoLive int        `json:"days_until_golive"`
	SessionTTL      int        `json:"session_ttl"`
}

type Host struct {
	Domain                   string         `json:"domain"`
	Backend                  string         `json:"backend"`
	AuthorizedUsers          []string       `json:"authorized_users"`
	AllowedCIDRs             []string       `json:"allowed_cidrs"`
	PublicURLPatterns        []string       `json:"public_url_patterns"`
	TokenURLPatterns         []string       `json:"token_url_patterns"`
	SessionDurationOverride  int            `json:"session_duration_override"`
	WebhookHeaderName        string         `json:"webhook_header_name"`
	WebhookParamName         string         `json:"webhook_param_name"`
	WebhookTokens            []WebhookToken `json:"webhook_tokens"`
	RemoteAuth               RemoteAuth     `json:"remote_auth"`
	DeploymentMode           DeploymentMode `json:"deployment_mode"`
}

// Builder assembles Document from the Store.
type Builder struct {
	store Store
}

func NewBuilder(s Store) *Builder {
	return &Builder{store: s}
}

// Build assembles the full configuration snapshot.
func (b *Builder) Build(ctx context.Context) (*Document, error) {
	now := time.Now().UTC()
	doc := &Document{Version: snapshotVersion, GeneratedAt: now, Users: map[string]User{}}

	users, err := b.store.ListActiveUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		passkeys, err := b.store.ListPasskeysByUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		doc.Users[u.Username] = User{
			Email:       u.Email,
			DisplayName: u.EffectiveDisplayName(),
			CreatedAt:   u.CreatedAt,
			Passkeys:    toPasskeys(passkeys),
		}
	}

	hosts, err := b.store.ListActiveHosts(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range hosts {
		authorizedUsers, err := b.authorizedUsernames(ctx, h.ID, users)
		if err != nil {
			return nil, err
		}
		rules, err := b.store.ListAccessRulesByHost(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		webhooks, err := b.store.ListWebhookTokensByHost(ctx, h.ID)
		if err != nil {
			return nil, err
		}

		pollingInterval, challengeTTL := b.remoteAuthDefaults(ctx)

		doc.Hosts = append(doc.Hosts, Host{
			Domain:                  h.Domain,
			Backend:                 h.BackendURL,
			AuthorizedUsers:         authorizedUsers,
			AllowedCIDRs:            cidrsOfType(rules, "cidr"),
			PublicURLPatterns:       cidrsOfType(rules, "public_url_pattern"),
			TokenURLPatterns:        cidrsOfType(rules, "token_url_pattern"),
			SessionDurationOverride: h.SessionDurationS,
			WebhookHeaderName:       firstHeaderName(webhooks),
			WebhookParamName:        firstParamName(webhooks),
			WebhookTokens:           toWebhookTokens(webhooks, now),
			RemoteAuth: RemoteAuth{
				Enabled:            h.RemoteAuthEnabled,
				SessionTTL:         h.RemoteAuthSessionTTL,
				MaxSessionTTL:      h.RemoteAuthMaxSessionTTL,
				SessionMgmtEnabled: h.RemoteAuthSessionMgmt,
				SessionMgmtTTL:     h.RemoteAuthSessionMgmtTTL,
				PollingInterval:    pollingInterval,
				ChallengeTTL:       challengeTTL,
			},
			DeploymentMode: DeploymentMode{
				Enabled:         h.DeploymentMode,
				GoLiveDate:      h.GoLiveDate,
				DaysUntilGoLive: daysUntil(h.GoLiveDate, now),
				SessionTTL:      h.DeploymentSessionTTL,
			},
		})
	}

	return doc, nil
}

func (b *Builder) authorizedUsernames(ctx context.Context, hostID string, users []*models.User) ([]string, error) {
	byID := make(map[string]string, len(users))
	for _, u := range users {
		byID[u.ID] = u.Username
	}
	var out []string
	for _, u := range users {
		ids, err := b.store.UserAuthorizedHostIDs(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if id == hostID {
				out = append(out, u.Username)
				break
			}
		}
	}
	return out, nil
}

func (b *Builder) remoteAuthDefaults(ctx context.Context) (pollingInterval, challengeTTL int) {
	pollingInterval, challengeTTL = 2, 300
	if v, ok, _ := b.store.GetConfigValue(ctx, "remote_auth.polling_interval"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			pollingInterval = n
		}
	}
	if v, ok, _ := b.store.GetConfigValue(ctx, "remote_auth.challenge_ttl"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			challengeTTL = n
		}
	}
	return pollingInterval, challengeTTL
}

func toPasskeys(in []*models.Passkey) []Passkey {
	out := make([]Passkey, 0, len(in))
	for _, p := range in {
		out = append(out, Passkey{
			CredentialID:   p.CredentialID,
			PublicKey:      p.PublicKey,
			Name:           p.Name,
			CreatedAt:      p.CreatedAt,
			BackupEligible: p.BackupEligible,
			BackupState:    p.BackupState,
		})
	}
	return out
}

func toWebhookTokens(in []*models.WebhookToken, now time.Time) []WebhookToken {
	out := make([]WebhookToken, 0, len(in))
	for _, t := range in {
		if !t.Valid(now) {
			continue
		}
		out = append(out, WebhookToken{
			Token:        t.Token,
			Name:         t.Name,
			AllowedCIDRs: t.AllowedCIDRs,
			ExpiresAt:    t.ExpiresAt,
			HeaderName:   t.HeaderName,
			ParamName:    t.ParamName,
			TokenSource:  string(t.TokenSource),
		})
	}
	return out
}

func firstHeaderName(tokens []*models.WebhookToken) string {
	for _, t := range tokens {
		if t.HeaderName != "" {
			return t.HeaderName
		}
	}
	return ""
}

func firstParamName(tokens []*models.WebhookToken) string {
	for _, t := range tokens {
		if t.ParamName != "" {
			return t.ParamName
		}
	}
	return ""
}

func cidrsOfType(rules []*models.AccessRule, ruleType string) []string {
	var out []string
	for _, r := range rules {
		if r.RuleType == ruleType {
			out = append(out, r.Value)
		}
	}
	return out
}

func daysUntil(goLive *time.Time, now time.Time) int {
	if goLive == nil {
		return 0
	}
	d := goLive.Sub(now).Hours() / 24
	if d < 0 {
		return 0
	}
	return int(d) + 1
}

// Package config loads the process-wide configuration of spec.md §6: a
// viper-bootstrapped process config (env vars, optional file, defaults)
// layered beneath a DB-backed process_config key/value table whose values
// always win, so admin edits take effect without a process restart.
package config

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/sunrayhq/control-plane/internal/store"
)

// Keys recognized by the process configuration table (spec.md §6).
const (
	KeyMaxSessionDurationS          = "sunray.max_session_duration_s"
	KeyMaxWAFBypassRevalidationS    = "sunray.max_waf_bypass_revalidation_s"
	KeyDefaultTokenDeviceName       = "sunray.default_token_device_name"
	KeyDefaultTokenValidHours       = "sunray.default_token_valid_hours"
	KeyDefaultTokenMaximumUse       = "sunray.default_token_maximum_use"
	KeySetupTokenMailTemplate       = "sunray.setup_token_mail_template"
	KeySetupTokenSendEmailDefault   = "sunray.setup_token_send_email_default"
	KeyRemoteAuthPollingInterval    = "remote_auth.polling_interval"
	KeyRemoteAuthChallengeTTL       = "remote_auth.challenge_ttl"
	KeyAdminIPWhitelist             = "sunray.admin_ip_whitelist"
)

var defaults = map[string]string{
	KeyMaxSessionDurationS:        "86400",
	KeyMaxWAFBypassRevalidationS:  "3600",
	KeyDefaultTokenDeviceName:     "unnamed device",
	KeyDefaultTokenValidHours:     "48",
	KeyDefaultTokenMaximumUse:     "1",
	KeySetupTokenMailTemplate:     "default",
	KeySetupTokenSendEmailDefault: "true",
	KeyRemoteAuthPollingInterval:  "2",
	KeyRemoteAuthChallengeTTL:     "300",
	KeyAdminIPWhitelist:           "",
}

// Store is the DB-backed override layer.
type Store interface {
	store.ConfigStore
}

// Provider reads process configuration, preferring the DB-backed table over
// environment/default values loaded into viper at process start.
type Provider struct {
	v     *viper.Viper
	store Store
}

// NewProvider builds a Provider seeded from the process environment (a
// SUNRAY_-prefixed viper instance, matching the teacher's env-var-first
// configuration convention) with this package's documented defaults.
func NewProvider(s Store) *Provider {
	v := viper.New()
	v.SetEnvPrefix("SUNRAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return &Provider{v: v, store: s}
}

// Get resolves key, preferring a DB-backed override over the
// viper/environment/default layer.
func (p *Provider) Get(ctx context.Context, key string) string {
	if v, ok, err := p.store.GetConfigValue(ctx, key); err == nil && ok {
		return v
	}
	return p.v.GetString(key)
}

// GetInt resolves key as above and parses it as an integer, falling back to
// fallback on a parse error.
func (p *Provider) GetInt(ctx context.Context, key string, fallback int) int {
	raw := p.Get(ctx, key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// GetBool resolves key as above and parses it as a boolean.
func (p *Provider) GetBool(ctx context.Context, key string) bool {
	raw := p.Get(ctx, key)
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return b
}

// Set writes an admin-tunable override to the DB-backed table.
func (p *Provider) Set(ctx context.Context, key, value string) error {
	return p.store.SetConfigValue(ctx, key, value)
}

package hoststate

import (
	"context"
	"fmt"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/config"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

const (
	minSessionDurationS       = 60
	minWAFBypassRevalidationS = 60

	defaultMaxSessionDurationS       = 86400
	defaultMaxWAFBypassRevalidationS = 3600
)

// Settings applies admin edits to a host's timing overrides, enforcing the
// bounds of spec.md §3 against the process-wide maxima in the configuration
// table. Each accepted session-duration or WAF-bypass change is audited with
// the before/after values; remote-auth session TTL changes are not audited.
type Settings struct {
	store store.HostStore
	cfg   *config.Provider
	audit *audit.Logger
}

func NewSettings(s store.HostStore, cfg *config.Provider, a *audit.Logger) *Settings {
	return &Settings{store: s, cfg: cfg, audit: a}
}

// SetSessionDuration updates host.session_duration_s, bounded to
// [60, sunray.max_session_duration_s].
func (s *Settings) SetSessionDuration(ctx context.Context, hostID string, seconds int) error {
	maxS := s.cfg.GetInt(ctx, config.KeyMaxSessionDurationS, defaultMaxSessionDurationS)
	if seconds < minSessionDurationS || seconds > maxS {
		return apierrors.NewValidationError(
			fmt.Sprintf("session duration must be between %d and %d seconds", minSessionDurationS, maxS), nil)
	}

	host, err := s.store.GetHostByID(ctx, hostID)
	if err != nil {
		return err
	}
	previous := host.SessionDurationS
	if previous == seconds {
		return nil
	}
	host.SessionDurationS = seconds
	if err := s.store.UpdateHost(ctx, host); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.EventConfigSessionDurationChanged, models.SeverityInfo, audit.Fields{
		Details: map[string]any{"host_id": hostID, "domain": host.Domain, "previous_s": previous, "new_s": seconds},
	})
	return nil
}

// SetWAFBypassRevalidation updates host.waf_bypass_revalidation_s, bounded
// to [60, sunray.max_waf_bypass_revalidation_s].
func (s *Settings) SetWAFBypassRevalidation(ctx context.Context, hostID string, seconds int) error {
	maxS := s.cfg.GetInt(ctx, config.KeyMaxWAFBypassRevalidationS, defaultMaxWAFBypassRevalidationS)
	if seconds < minWAFBypassRevalidationS || seconds > maxS {
		return apierrors.NewValidationError(
			fmt.Sprintf("WAF bypass revalidation must be between %d and %d seconds", minWAFBypassRevalidationS, maxS), nil)
	}

	host, err := s.store.GetHostByID(ctx, hostID)
	if err != nil {
		return err
	}
	previous := host.WAFBypassRevalidationS
	if previous == seconds {
		return nil
	}
	host.WAFBypassRevalidationS = seconds
	if err := s.store.UpdateHost(ctx, host); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.EventConfigWAFRevalidationChanged, models.SeverityInfo, audit.Fields{
		Details: map[string]any{"host_id": hostID, "domain": host.Domain, "previous_s": previous, "new_s": seconds},
	})
	return nil
}

// SetRemoteAuthSessionTTL updates host.remote_auth_session_ttl, which may
// never exceed the host's own remote_auth_max_session_ttl (spec.md §3).
func (s *Settings) SetRemoteAuthSessionTTL(ctx context.Context, hostID string, seconds int) error {
	host, err := s.store.GetHostByID(ctx, hostID)
	if err != nil {
		return err
	}
	if seconds <= 0 || seconds > host.RemoteAuthMaxSessionTTL {
		return apierrors.NewValidationError(
			fmt.Sprintf("remote auth session TTL must be between 1 and %d seconds", host.RemoteAuthMaxSessionTTL), nil)
	}
	host.RemoteAuthSessionTTL = seconds
	return s.store.UpdateHost(ctx, host)
}

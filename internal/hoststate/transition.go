// Package hoststate drives the daily deployment→protected transition cron
// of spec.md §4.7 (C7). The state derivation itself is a pure function
// already implemented as models.Host.State; this package is only the
// scan-and-audit side effect of the daily cron.
package hoststate

import (
	"context"
	"time"

	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

// Store is the persistence surface the go-live transition job needs.
type Store interface {
	store.HostStore
}

// Transitioner runs the daily go-live scan.
type Transitioner struct {
	store Store
	audit *audit.Logger
}

func NewTransitioner(s Store, a *audit.Logger) *Transitioner {
	return &Transitioner{store: s, audit: a}
}

// RunDaily scans hosts in deployment mode with golive_date <= today,
// recomputes state, and writes host.golive_transition for every host whose
// state actually becomes protected (spec.md §4.7, scenario 6).
func (t *Transitioner) RunDaily(ctx context.Context, today time.Time) (int, error) {
	hosts, err := t.store.ListHostsInDeploymentDueToday(ctx, today)
	if err != nil {
		return 0, err
	}

	transitioned := 0
	for _, h := range hosts {
		if h.State(today) != models.HostStateProtected {
			continue
		}
		daysUntil := daysUntilGoLive(h.GoLiveDate, today)
		t.audit.Record(ctx, audit.EventHostGoliveTransition, models.SeverityInfo, audit.Fields{
			Details: map[string]any{"host_id": h.ID, "domain": h.Domain, "days_until_golive": daysUntil},
		})
		transitioned++
	}
	return transitioned, nil
}

func daysUntilGoLive(goLive *time.Time, today time.Time) int {
	if goLive == nil {
		return 0
	}
	d := goLive.Sub(today).Hours() / 24
	if d < 0 {
		return 0
	}
	return int(d)
}

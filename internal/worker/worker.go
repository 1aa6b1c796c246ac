// Package worker implements worker registration and the admin-scheduled
// migration state machine of spec.md §4.6 (C6).
package worker

import (
	"context"
	"time"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

// Store is the persistence surface worker registration/migration needs.
type Store interface {
	store.WorkerStore
	store.HostStore
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Registrar drives worker registration and migration.
type Registrar struct {
	store Store
	audit *audit.Logger
}

func NewRegistrar(s Store, a *audit.Logger) *Registrar {
	return &Registrar{store: s, audit: a}
}

// RegistrationResult reports what Register actually did, for the HTTP
// handler to shape its response.
type RegistrationResult struct {
	HostID   string
	WorkerID string
	Migrated bool
}

// Register implements spec.md §4.6: idempotent re-registration when the
// host is already bound to the requesting worker, atomic swap when a
// migration is pending to it, and — per the Open Question in spec.md §9(a)
// — rejection with worker.registration_conflict for any other mismatch.
func (r *Registrar) Register(ctx context.Context, workerName, hostname string) (RegistrationResult, error) {
	var result RegistrationResult

	err := r.store.WithTx(ctx, func(ctx context.Context) error {
		host, err := r.store.GetHostByDomain(ctx, hostname)
		if err != nil {
			return err
		}
		reqWorker, err := r.store.GetWorkerByName(ctx, workerName)
		if err != nil {
			return err
		}

		switch {
		case host.WorkerID != nil && *host.WorkerID == reqWorker.ID:
			r.audit.Record(ctx, audit.EventWorkerReRegistered, models.SeverityInfo, audit.Fields{
				SunrayWorker: workerName,
				Details:      map[string]any{"host_id": host.ID, "hostname": hostname},
			})
			result = RegistrationResult{HostID: host.ID, WorkerID: reqWorker.ID, Migrated: false}
			return nil

		case host.PendingWorkerName != nil && *host.PendingWorkerName == workerName:
			now := time.Now().UTC()
			host.WorkerID = &reqWorker.ID
			host.PendingWorkerName = nil
			host.MigrationRequestedAt = nil
			host.LastMigrationTS = &now
			if err := r.store.UpdateHost(ctx, host); err != nil {
				return err
			}
			r.audit.Record(ctx, audit.EventWorkerMigrated, models.SeverityInfo, audit.Fields{
				SunrayWorker: workerName,
				Details:      map[string]any{"host_id": host.ID, "hostname": hostname},
			})
			result = RegistrationResult{HostID: host.ID, WorkerID: reqWorker.ID, Migrated: true}
			return nil

		default:
			r.audit.Record(ctx, audit.EventWorkerRegistrationConflict, models.SeverityWarning, audit.Fields{
				SunrayWorker: workerName,
				Details:      map[string]any{"host_id": host.ID, "hostname": hostname},
			})
			return apierrors.NewConflictError("worker is neither the current nor the pending binding for this host", nil)
		}
	})
	if err != nil {
		return RegistrationResult{}, err
	}
	return result, nil
}

// SetPendingWorker implements spec.md §4.6's set_pending_worker(name). It
// rejects empty names and rejects when a migration is already pending —
// the admin must clear_pending_worker first.
func (r *Registrar) SetPendingWorker(ctx context.Context, hostID, pendingWorkerName string) error {
	if pendingWorkerName == "" {
		return apierrors.NewValidationError("pending worker name must not be empty", nil)
	}
	host, err := r.store.GetHostByID(ctx, hostID)
	if err != nil {
		return err
	}
	if host.PendingWorkerName != nil {
		return apierrors.NewConflictError("a migration is already pending for this host", nil)
	}
	now := time.Now().UTC()
	host.PendingWorkerName = &pendingWorkerName
	host.MigrationRequestedAt = &now
	if err := r.store.UpdateHost(ctx, host); err != nil {
		return err
	}
	r.audit.Record(ctx, audit.EventWorkerMigrationRequested, models.SeverityInfo, audit.Fields{
		Details: map[string]any{"host_id": hostID, "pending_worker_name": pendingWorkerName},
	})
	return nil
}

// ClearPendingWorker cancels a pending migration.
func (r *Registrar) ClearPendingWorker(ctx context.Context, hostID string) error {
	host, err := r.store.GetHostByID(ctx, hostID)
	if err != nil {
		return err
	}
	if host.PendingWorkerName == nil {
		return nil
	}
	cancelled := *host.PendingWorkerName
	host.PendingWorkerName = nil
	host.MigrationRequestedAt = nil
	if err := r.store.UpdateHost(ctx, host); err != nil {
		return err
	}
	r.audit.Record(ctx, audit.EventWorkerMigrationCancelled, models.SeverityInfo, audit.Fields{
		Details: map[string]any{"host_id": hostID, "pending_worker_name": cancelled},
	})
	return nil
}

// MigrationStatus is the observability projection spec.md §4.6 requires:
// protected host count and pending outbound/inbound migration counts.
type MigrationStatus struct {
	ProtectedHostCount int
	PendingOutbound    int
	PendingInbound     int
}

// Status computes the migration status projection for one worker.
func (r *Registrar) Status(ctx context.Context, workerID, workerName string) (MigrationStatus, error) {
	hosts, err := r.store.ListHostsByWorker(ctx, workerID)
	if err != nil {
		return MigrationStatus{}, err
	}
	status := MigrationStatus{ProtectedHostCount: len(hosts)}
	for _, h := range hosts {
		if h.PendingWorkerName != nil && *h.PendingWorkerName != workerName {
			status.PendingOutbound++
		}
	}
	inbound, err := r.store.ListHostsPendingMigrationTo(ctx, workerName)
	if err != nil {
		return MigrationStatus{}, err
	}
	status.PendingInbound = len(inbound)
	return status, nil
}

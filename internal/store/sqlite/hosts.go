package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

const hostColumns = `id, domain, backend_url, is_active, block_all_traffic, worker_id,
	session_duration_s, waf_bypass_revalidation_s, pending_worker_name,
	migration_requested_at, last_migration_ts, deployment_mode, golive_date,
	deployment_session_ttl, email_otp_enabled, email_login_session_duration_s,
	remote_auth_enabled, remote_auth_session_ttl, remote_auth_max_session_ttl,
	remote_auth_session_mgmt, remote_auth_session_mgmt_ttl, config_version,
	created_at, updated_at`

func (s *Store) CreateHost(ctx context.Context, h *models.Host) error {
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now
	h.ConfigVersion = nextConfigVersion()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO hosts (`+hostColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hostArgs(h)...)
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: create host: %w", err)
	}
	return nil
}

func hostArgs(h *models.Host) []any {
	return []any{
		h.ID, h.Domain, h.BackendURL, boolToInt(h.IsActive), boolToInt(h.BlockAllTraffic),
		nullStr(h.WorkerID), h.SessionDurationS, h.WAFBypassRevalidationS,
		nullStr(h.PendingWorkerName), nullTime(h.MigrationRequestedAt), nullTime(h.LastMigrationTS),
		boolToInt(h.DeploymentMode), nullTime(h.GoLiveDate), h.DeploymentSessionTTL,
		boolToInt(h.EmailOTPEnabled), h.EmailLoginSessionDurationS,
		boolToInt(h.RemoteAuthEnabled), h.RemoteAuthSessionTTL, h.RemoteAuthMaxSessionTTL,
		boolToInt(h.RemoteAuthSessionMgmt), h.RemoteAuthSessionMgmtTTL,
		h.ConfigVersion, iso(h.CreatedAt), iso(h.UpdatedAt),
	}
}

func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return iso(*p)
}

func (s *Store) scanHost(row *sql.Row) (*models.Host, error) {
	var h models.Host
	var isActive, blockAll, emailOTP, deploymentMode, remoteAuth, remoteAuthMgmt int
	var workerID, pendingWorker, migrationReq, lastMigration, goLive sql.NullString
	var created, updated string
	err := row.Scan(
		&h.ID, &h.Domain, &h.BackendURL, &isActive, &blockAll, &workerID,
		&h.SessionDurationS, &h.WAFBypassRevalidationS, &pendingWorker,
		&migrationReq, &lastMigration, &deploymentMode, &goLive,
		&h.DeploymentSessionTTL, &emailOTP, &h.EmailLoginSessionDurationS,
		&remoteAuth, &h.RemoteAuthSessionTTL, &h.RemoteAuthMaxSessionTTL,
		&remoteAuthMgmt, &h.RemoteAuthSessionMgmtTTL, &h.ConfigVersion,
		&created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan host: %w", err)
	}
	h.IsActive = isActive != 0
	h.BlockAllTraffic = blockAll != 0
	h.EmailOTPEnabled = emailOTP != 0
	h.DeploymentMode = deploymentMode != 0
	h.RemoteAuthEnabled = remoteAuth != 0
	h.RemoteAuthSessionMgmt = remoteAuthMgmt != 0
	if workerID.Valid {
		v := workerID.String
		h.WorkerID = &v
	}
	if pendingWorker.Valid {
		v := pendingWorker.String
		h.PendingWorkerName = &v
	}
	if migrationReq.Valid {
		t, _ := parseTime(migrationReq.String)
		h.MigrationRequestedAt = &t
	}
	if lastMigration.Valid {
		t, _ := parseTime(lastMigration.String)
		h.LastMigrationTS = &t
	}
	if goLive.Valid {
		t, _ := parseTime(goLive.String)
		h.GoLiveDate = &t
	}
	h.CreatedAt, _ = parseTime(created)
	h.UpdatedAt, _ = parseTime(updated)
	return &h, nil
}

func (s *Store) GetHostByID(ctx context.Context, id string) (*models.Host, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id = ?`, id)
	return s.scanHost(row)
}

func (s *Store) GetHostByDomain(ctx context.Context, domain string) (*models.Host, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+hostColumns+` FROM hosts WHERE domain = ?`, domain)
	return s.scanHost(row)
}

func (s *Store) UpdateHost(ctx context.Context, h *models.Host) error {
	h.UpdatedAt = time.Now().UTC()
	h.ConfigVersion = nextConfigVersion()
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE hosts SET
			domain = ?, backend_url = ?, is_active = ?, block_all_traffic = ?, worker_id = ?,
			session_duration_s = ?, waf_bypass_revalidation_s = ?, pending_worker_name = ?,
			migration_requested_at = ?, last_migration_ts = ?, deployment_mode = ?, golive_date = ?,
			deployment_session_ttl = ?, email_otp_enabled = ?, email_login_session_duration_s = ?,
			remote_auth_enabled = ?, remote_auth_session_ttl = ?, remote_auth_max_session_ttl = ?,
			remote_auth_session_mgmt = ?, remote_auth_session_mgmt_ttl = ?, config_version = ?,
			updated_at = ?
		WHERE id = ?`,
		h.Domain, h.BackendURL, boolToInt(h.IsActive), boolToInt(h.BlockAllTraffic), nullStr(h.WorkerID),
		h.SessionDurationS, h.WAFBypassRevalidationS, nullStr(h.PendingWorkerName),
		nullTime(h.MigrationRequestedAt), nullTime(h.LastMigrationTS), boolToInt(h.DeploymentMode), nullTime(h.GoLiveDate),
		h.DeploymentSessionTTL, boolToInt(h.EmailOTPEnabled), h.EmailLoginSessionDurationS,
		boolToInt(h.RemoteAuthEnabled), h.RemoteAuthSessionTTL, h.RemoteAuthMaxSessionTTL,
		boolToInt(h.RemoteAuthSessionMgmt), h.RemoteAuthSessionMgmtTTL, h.ConfigVersion,
		iso(h.UpdatedAt), h.ID)
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: update host: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) DeleteHost(ctx context.Context, id string) error {
	_, err := s.q(ctx).ExecContext(ctx, `DELETE FROM hosts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete host: %w", err)
	}
	return nil
}

func (s *Store) queryHosts(ctx context.Context, query string, args ...any) ([]*models.Host, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+hostColumns+` FROM hosts WHERE `+query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query hosts: %w", err)
	}
	defer rows.Close()

	var hosts []*models.Host
	for rows.Next() {
		var h models.Host
		var isActive, blockAll, emailOTP, deploymentMode, remoteAuth, remoteAuthMgmt int
		var workerID, pendingWorker, migrationReq, lastMigration, goLive sql.NullString
		var created, updated string
		err := rows.Scan(
			&h.ID, &h.Domain, &h.BackendURL, &isActive, &blockAll, &workerID,
			&h.SessionDurationS, &h.WAFBypassRevalidationS, &pendingWorker,
			&migrationReq, &lastMigration, &deploymentMode, &goLive,
			&h.DeploymentSessionTTL, &emailOTP, &h.EmailLoginSessionDurationS,
			&remoteAuth, &h.RemoteAuthSessionTTL, &h.RemoteAuthMaxSessionTTL,
			&remoteAuthMgmt, &h.RemoteAuthSessionMgmtTTL, &h.ConfigVersion,
			&created, &updated,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan host row: %w", err)
		}
		h.IsActive = isActive != 0
		h.BlockAllTraffic = blockAll != 0
		h.EmailOTPEnabled = emailOTP != 0
		h.DeploymentMode = deploymentMode != 0
		h.RemoteAuthEnabled = remoteAuth != 0
		h.RemoteAuthSessionMgmt = remoteAuthMgmt != 0
		if workerID.Valid {
			v := workerID.String
			h.WorkerID = &v
		}
		if pendingWorker.Valid {
			v := pendingWorker.String
			h.PendingWorkerName = &v
		}
		if migrationReq.Valid {
			t, _ := parseTime(migrationReq.String)
			h.MigrationRequestedAt = &t
		}
		if lastMigration.Valid {
			t, _ := parseTime(lastMigration.String)
			h.LastMigrationTS = &t
		}
		if goLive.Valid {
			t, _ := parseTime(goLive.String)
			h.GoLiveDate = &t
		}
		h.CreatedAt, _ = parseTime(created)
		h.UpdatedAt, _ = parseTime(updated)
		hosts = append(hosts, &h)
	}
	return hosts, rows.Err()
}

func (s *Store) ListActiveHosts(ctx context.Context) ([]*models.Host, error) {
	return s.queryHosts(ctx, `is_active = 1`)
}

func (s *Store) ListHostsByWorker(ctx context.Context, workerID string) ([]*models.Host, error) {
	return s.queryHosts(ctx, `worker_id = ?`, workerID)
}

func (s *Store) ListHostsPendingMigrationTo(ctx context.Context, workerName string) ([]*models.Host, error) {
	return s.queryHosts(ctx, `pending_worker_name = ?`, workerName)
}

func (s *Store) ListHostsInDeploymentDueToday(ctx context.Context, today time.Time) ([]*models.Host, error) {
	y, m, d := today.Date()
	cutoff := time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
	return s.queryHosts(ctx,
		`deployment_mode = 1 AND golive_date IS NOT NULL AND golive_date <= ?`, iso(cutoff))
}

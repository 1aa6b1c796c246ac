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

func (s *Store) CreateWorker(ctx context.Context, w *models.Worker) error {
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	w.ConfigVersion = nextConfigVersion()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO workers (id, name, worker_type, worker_url, api_key_id, config_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.WorkerType, w.WorkerURL, w.APIKeyID, w.ConfigVersion, iso(now), iso(now))
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: create worker: %w", err)
	}
	return nil
}

func (s *Store) scanWorker(row *sql.Row) (*models.Worker, error) {
	var w models.Worker
	var created, updated string
	err := row.Scan(&w.ID, &w.Name, &w.WorkerType, &w.WorkerURL, &w.APIKeyID, &w.ConfigVersion, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan worker: %w", err)
	}
	w.CreatedAt, _ = parseTime(created)
	w.UpdatedAt, _ = parseTime(updated)
	return &w, nil
}

func (s *Store) GetWorkerByID(ctx context.Context, id string) (*models.Worker, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, name, worker_type, worker_url, api_key_id, config_version, created_at, updated_at FROM workers WHERE id = ?`, id)
	return s.scanWorker(row)
}

func (s *Store) GetWorkerByName(ctx context.Context, name string) (*models.Worker, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, name, worker_type, worker_url, api_key_id, config_version, created_at, updated_at FROM workers WHERE name = ?`, name)
	return s.scanWorker(row)
}

func (s *Store) UpdateWorker(ctx context.Context, w *models.Worker) error {
	w.UpdatedAt = time.Now().UTC()
	w.ConfigVersion = nextConfigVersion()
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE workers SET name = ?, worker_type = ?, worker_url = ?, api_key_id = ?, config_version = ?, updated_at = ?
		WHERE id = ?`,
		w.Name, w.WorkerType, w.WorkerURL, w.APIKeyID, w.ConfigVersion, iso(w.UpdatedAt), w.ID)
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: update worker: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) DeleteWorker(ctx context.Context, id string) error {
	_, err := s.q(ctx).ExecContext(ctx, `DELETE FROM workers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete worker: %w", err)
	}
	return nil
}

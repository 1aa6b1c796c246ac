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

func (s *Store) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	now := time.Now().UTC()
	k.CreatedAt, k.UpdatedAt = now, now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO api_keys (id, key, scopes, is_active, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.Key, k.Scopes, boolToInt(k.IsActive), k.UsageCount, iso(now), iso(now))
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: create api key: %w", err)
	}
	return nil
}

func (s *Store) scanAPIKey(row *sql.Row) (*models.APIKey, error) {
	var k models.APIKey
	var isActive int
	var created, updated string
	err := row.Scan(&k.ID, &k.Key, &k.Scopes, &isActive, &k.UsageCount, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan api key: %w", err)
	}
	k.IsActive = isActive != 0
	k.CreatedAt, _ = parseTime(created)
	k.UpdatedAt, _ = parseTime(updated)
	return &k, nil
}

func (s *Store) GetAPIKeyByID(ctx context.Context, id string) (*models.APIKey, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, key, scopes, is_active, usage_count, created_at, updated_at FROM api_keys WHERE id = ?`, id)
	return s.scanAPIKey(row)
}

func (s *Store) GetAPIKeyByKey(ctx context.Context, key string) (*models.APIKey, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, key, scopes, is_active, usage_count, created_at, updated_at FROM api_keys WHERE key = ?`, key)
	return s.scanAPIKey(row)
}

func (s *Store) UpdateAPIKey(ctx context.Context, k *models.APIKey) error {
	k.UpdatedAt = time.Now().UTC()
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE api_keys SET key = ?, scopes = ?, is_active = ?, usage_count = ?, updated_at = ?
		WHERE id = ?`,
		k.Key, k.Scopes, boolToInt(k.IsActive), k.UsageCount, iso(k.UpdatedAt), k.ID)
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: update api key: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	_, err := s.q(ctx).ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete api key: %w", err)
	}
	return nil
}

func (s *Store) IncrementAPIKeyUsage(ctx context.Context, id string) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE api_keys SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?`,
		iso(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("sqlite: increment api key usage: %w", err)
	}
	return checkRowsAffected(res)
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *Store) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.q(ctx).QueryRowContext(ctx, `SELECT value FROM process_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: get config value: %w", err)
	}
	return value, true, nil
}

func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO process_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("sqlite: set config value: %w", err)
	}
	return nil
}

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

const setupTokenColumns = `id, user_id, host_id, token_hash, device_name, expires_at,
	consumed, consumed_date, current_uses, max_uses, allowed_cidrs, created_at, updated_at`

func (s *Store) CreateSetupToken(ctx context.Context, t *models.SetupToken) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO setup_tokens (`+setupTokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.HostID, t.TokenHash, t.DeviceName, iso(t.ExpiresAt),
		boolToInt(t.Consumed), nullTime(t.ConsumedDate), t.CurrentUses, t.MaxUses, t.AllowedCIDRs,
		iso(now), iso(now))
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: create setup token: %w", err)
	}
	return nil
}

func (s *Store) GetSetupTokenByUserAndHash(ctx context.Context, userID, tokenHash string) (*models.SetupToken, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+setupTokenColumns+` FROM setup_tokens WHERE user_id = ? AND token_hash = ?`, userID, tokenHash)
	var t models.SetupToken
	var expires, created, updated string
	var consumed int
	var consumedDate sql.NullString
	err := row.Scan(&t.ID, &t.UserID, &t.HostID, &t.TokenHash, &t.DeviceName, &expires,
		&consumed, &consumedDate, &t.CurrentUses, &t.MaxUses, &t.AllowedCIDRs, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan setup token: %w", err)
	}
	t.Consumed = consumed != 0
	t.ExpiresAt, _ = parseTime(expires)
	if consumedDate.Valid {
		ct, _ := parseTime(consumedDate.String)
		t.ConsumedDate = &ct
	}
	t.CreatedAt, _ = parseTime(created)
	t.UpdatedAt, _ = parseTime(updated)
	return &t, nil
}

// ListSetupTokensByUserAndHost returns every setup token issued to userID for
// hostID, used by the users/validate endpoint to report has_valid_token
// without knowing any particular token's plaintext or hash.
func (s *Store) ListSetupTokensByUserAndHost(ctx context.Context, userID, hostID string) ([]*models.SetupToken, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+setupTokenColumns+` FROM setup_tokens WHERE user_id = ? AND host_id = ?`, userID, hostID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list setup tokens: %w", err)
	}
	defer rows.Close()

	var out []*models.SetupToken
	for rows.Next() {
		var t models.SetupToken
		var expires, created, updated string
		var consumed int
		var consumedDate sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.HostID, &t.TokenHash, &t.DeviceName, &expires,
			&consumed, &consumedDate, &t.CurrentUses, &t.MaxUses, &t.AllowedCIDRs, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan setup token: %w", err)
		}
		t.Consumed = consumed != 0
		t.ExpiresAt, _ = parseTime(expires)
		if consumedDate.Valid {
			ct, _ := parseTime(consumedDate.String)
			t.ConsumedDate = &ct
		}
		t.CreatedAt, _ = parseTime(created)
		t.UpdatedAt, _ = parseTime(updated)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSetupToken(ctx context.Context, t *models.SetupToken) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE setup_tokens SET
			device_name = ?, expires_at = ?, consumed = ?, consumed_date = ?,
			current_uses = ?, max_uses = ?, allowed_cidrs = ?, updated_at = ?
		WHERE id = ?`,
		t.DeviceName, iso(t.ExpiresAt), boolToInt(t.Consumed), nullTime(t.ConsumedDate),
		t.CurrentUses, t.MaxUses, t.AllowedCIDRs, iso(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update setup token: %w", err)
	}
	return checkRowsAffected(res)
}

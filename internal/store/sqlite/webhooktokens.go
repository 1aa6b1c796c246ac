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

const webhookTokenColumns = `id, host_id, name, token, header_name, param_name, token_source,
	allowed_cidrs, expires_at, usage_count, created_at, updated_at`

func (s *Store) CreateWebhookToken(ctx context.Context, t *models.WebhookToken) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO webhook_tokens (`+webhookTokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.HostID, t.Name, t.Token, t.HeaderName, t.ParamName, string(t.TokenSource),
		t.AllowedCIDRs, nullTime(t.ExpiresAt), t.UsageCount, iso(now), iso(now))
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: create webhook token: %w", err)
	}
	return nil
}

func scanWebhookTokenRow(row interface{ Scan(dest ...any) error }) (*models.WebhookToken, error) {
	var t models.WebhookToken
	var tokenSource string
	var expires sql.NullString
	var created, updated string
	err := row.Scan(&t.ID, &t.HostID, &t.Name, &t.Token, &t.HeaderName, &t.ParamName, &tokenSource,
		&t.AllowedCIDRs, &expires, &t.UsageCount, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan webhook token: %w", err)
	}
	t.TokenSource = models.TokenSource(tokenSource)
	if expires.Valid {
		e, _ := parseTime(expires.String)
		t.ExpiresAt = &e
	}
	t.CreatedAt, _ = parseTime(created)
	t.UpdatedAt, _ = parseTime(updated)
	return &t, nil
}

func (s *Store) GetWebhookTokenByToken(ctx context.Context, token string) (*models.WebhookToken, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+webhookTokenColumns+` FROM webhook_tokens WHERE token = ?`, token)
	return scanWebhookTokenRow(row)
}

func (s *Store) ListWebhookTokensByHost(ctx context.Context, hostID string) ([]*models.WebhookToken, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+webhookTokenColumns+` FROM webhook_tokens WHERE host_id = ?`, hostID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list webhook tokens: %w", err)
	}
	defer rows.Close()
	var out []*models.WebhookToken
	for rows.Next() {
		t, err := scanWebhookTokenRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateWebhookToken(ctx context.Context, t *models.WebhookToken) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE webhook_tokens SET
			name = ?, token = ?, header_name = ?, param_name = ?, token_source = ?,
			allowed_cidrs = ?, expires_at = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Token, t.HeaderName, t.ParamName, string(t.TokenSource), t.AllowedCIDRs,
		nullTime(t.ExpiresAt), iso(t.UpdatedAt), t.ID)
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: update webhook token: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) IncrementWebhookTokenUsage(ctx context.Context, id string) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE webhook_tokens SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?`,
		iso(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("sqlite: increment webhook token usage: %w", err)
	}
	return checkRowsAffected(res)
}

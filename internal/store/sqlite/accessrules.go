package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sunrayhq/control-plane/internal/models"
)

func (s *Store) CreateAccessRule(ctx context.Context, r *models.AccessRule) error {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO access_rules (id, host_id, rule_type, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.HostID, r.RuleType, r.Value, iso(now), iso(now))
	if err != nil {
		return fmt.Errorf("sqlite: create access rule: %w", err)
	}
	return nil
}

func (s *Store) ListAccessRulesByHost(ctx context.Context, hostID string) ([]*models.AccessRule, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, host_id, rule_type, value, created_at, updated_at FROM access_rules WHERE host_id = ?`, hostID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list access rules: %w", err)
	}
	defer rows.Close()
	var out []*models.AccessRule
	for rows.Next() {
		var r models.AccessRule
		var created, updated string
		if err := rows.Scan(&r.ID, &r.HostID, &r.RuleType, &r.Value, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan access rule: %w", err)
		}
		r.CreatedAt, _ = parseTime(created)
		r.UpdatedAt, _ = parseTime(updated)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAccessRule(ctx context.Context, id string) error {
	_, err := s.q(ctx).ExecContext(ctx, `DELETE FROM access_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete access rule: %w", err)
	}
	return nil
}

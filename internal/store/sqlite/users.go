package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	u.ConfigVersion = nextConfigVersion()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO users (id, username, email, display_name, is_active, config_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.DisplayName, boolToInt(u.IsActive), u.ConfigVersion, iso(now), iso(now))
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: create user: %w", err)
	}
	return nil
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var isActive int
	var created, updated string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &isActive, &u.ConfigVersion, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan user: %w", err)
	}
	u.IsActive = isActive != 0
	u.CreatedAt, _ = parseTime(created)
	u.UpdatedAt, _ = parseTime(updated)
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, username, email, display_name, is_active, config_version, created_at, updated_at FROM users WHERE id = ?`, id)
	return s.scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, username, email, display_name, is_active, config_version, created_at, updated_at FROM users WHERE username = ?`, username)
	return s.scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, username, email, display_name, is_active, config_version, created_at, updated_at FROM users WHERE email = ?`, email)
	return s.scanUser(row)
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	u.ConfigVersion = nextConfigVersion()
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE users SET username = ?, email = ?, display_name = ?, is_active = ?, config_version = ?, updated_at = ?
		WHERE id = ?`,
		u.Username, u.Email, u.DisplayName, boolToInt(u.IsActive), u.ConfigVersion, iso(u.UpdatedAt), u.ID)
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: update user: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	_, err := s.q(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete user: %w", err)
	}
	return nil
}

func (s *Store) AuthorizeUserForHost(ctx context.Context, userID, hostID string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT OR IGNORE INTO user_hosts (user_id, host_id) VALUES (?, ?)`, userID, hostID)
	if err != nil {
		return fmt.Errorf("sqlite: authorize user for host: %w", err)
	}
	return nil
}

func (s *Store) UserAuthorizedHostIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT host_id FROM user_hosts WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list authorized hosts: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan authorized host: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListActiveUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, username, email, display_name, is_active, config_version, created_at, updated_at FROM users WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list active users: %w", err)
	}
	defer rows.Close()
	var users []*models.User
	for rows.Next() {
		var u models.User
		var isActive int
		var created, updated string
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &isActive, &u.ConfigVersion, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan active user: %w", err)
		}
		u.IsActive = isActive != 0
		u.CreatedAt, _ = parseTime(created)
		u.UpdatedAt, _ = parseTime(updated)
		users = append(users, &u)
	}
	return users, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func iso(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

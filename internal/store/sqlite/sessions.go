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

const sessionColumns = `id, session_id, user_id, host_id, session_type, is_active, revoked,
	revoked_reason, expires_at, last_activity, created_via, created_at, updated_at`

const sessionColumnsAliasedS = `s.id, s.session_id, s.user_id, s.host_id, s.session_type, s.is_active, s.revoked,
	s.revoked_reason, s.expires_at, s.last_activity, s.created_via, s.created_at, s.updated_at`

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	now := time.Now().UTC()
	sess.CreatedAt, sess.UpdatedAt = now, now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.SessionID, sess.UserID, sess.HostID, string(sess.SessionType),
		boolToInt(sess.IsActive), boolToInt(sess.Revoked), sess.RevokedReason,
		iso(sess.ExpiresAt), iso(sess.LastActivity), sess.CreatedVia, iso(now), iso(now))
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: create session: %w", err)
	}
	return nil
}

func scanSessionRow(row interface{ Scan(dest ...any) error }) (*models.Session, error) {
	var sess models.Session
	var sessionType string
	var isActive, revoked int
	var expires, lastActivity, created, updated string
	err := row.Scan(&sess.ID, &sess.SessionID, &sess.UserID, &sess.HostID, &sessionType,
		&isActive, &revoked, &sess.RevokedReason, &expires, &lastActivity, &sess.CreatedVia,
		&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan session: %w", err)
	}
	sess.SessionType = models.SessionType(sessionType)
	sess.IsActive = isActive != 0
	sess.Revoked = revoked != 0
	sess.ExpiresAt, _ = parseTime(expires)
	sess.LastActivity, _ = parseTime(lastActivity)
	sess.CreatedAt, _ = parseTime(created)
	sess.UpdatedAt, _ = parseTime(updated)
	return &sess, nil
}

func (s *Store) GetSessionBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	return scanSessionRow(row)
}

func (s *Store) UpdateSession(ctx context.Context, sess *models.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE sessions SET
			is_active = ?, revoked = ?, revoked_reason = ?, expires_at = ?,
			last_activity = ?, updated_at = ?
		WHERE id = ?`,
		boolToInt(sess.IsActive), boolToInt(sess.Revoked), sess.RevokedReason,
		iso(sess.ExpiresAt), iso(sess.LastActivity), iso(sess.UpdatedAt), sess.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update session: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) querySessions(ctx context.Context, where string, args ...any) ([]*models.Session, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query sessions: %w", err)
	}
	defer rows.Close()
	var out []*models.Session
	for rows.Next() {
		sess, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	return s.querySessions(ctx, `user_id = ?`, userID)
}

func (s *Store) ListActiveSessionsByUserAndHost(ctx context.Context, userID, hostID string) ([]*models.Session, error) {
	return s.querySessions(ctx, `user_id = ? AND host_id = ? AND is_active = 1 AND revoked = 0`, userID, hostID)
}

func (s *Store) ListActiveSessionsByWorker(ctx context.Context, workerID string) ([]*models.Session, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+sessionColumnsAliasedS+`
		FROM sessions s JOIN hosts h ON h.id = s.host_id
		WHERE h.worker_id = ? AND s.is_active = 1 AND s.revoked = 0`, workerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list active sessions by worker: %w", err)
	}
	defer rows.Close()
	var out []*models.Session
	for rows.Next() {
		sess, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) ListActiveSessionsByHost(ctx context.Context, hostID string) ([]*models.Session, error) {
	return s.querySessions(ctx, `host_id = ? AND is_active = 1 AND revoked = 0`, hostID)
}

func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND is_active = 1 AND revoked = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count active sessions: %w", err)
	}
	return n, nil
}

func (s *Store) LastLogin(ctx context.Context, userID string) (*time.Time, error) {
	var createdAt sql.NullString
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT created_at FROM sessions WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, userID).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: last login: %w", err)
	}
	if !createdAt.Valid {
		return nil, nil
	}
	t, err := parseTime(createdAt.String)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse last login: %w", err)
	}
	return &t, nil
}

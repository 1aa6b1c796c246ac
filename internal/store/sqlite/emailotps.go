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

const emailOTPColumns = `id, host_id, user_id, otp_request_id, otp_hash, browser_token_hash,
	email, expires_at, attempts, consumed, consumed_at, client_ip, user_agent, created_at, updated_at`

func (s *Store) CreateEmailOTP(ctx context.Context, o *models.EmailOTP) error {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO email_otps (`+emailOTPColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.HostID, nullStr(o.UserID), o.OTPRequestID, o.OTPHash, o.BrowserTokenHash,
		o.Email, iso(o.ExpiresAt), o.Attempts, boolToInt(o.Consumed), nullTime(o.ConsumedAt),
		o.ClientIP, o.UserAgent, iso(now), iso(now))
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: create email otp: %w", err)
	}
	return nil
}

func scanEmailOTP(row *sql.Row) (*models.EmailOTP, error) {
	var o models.EmailOTP
	var userID sql.NullString
	var expires, created, updated string
	var attempts, consumed int
	var consumedAt sql.NullString
	err := row.Scan(&o.ID, &o.HostID, &userID, &o.OTPRequestID, &o.OTPHash, &o.BrowserTokenHash,
		&o.Email, &expires, &attempts, &consumed, &consumedAt, &o.ClientIP, &o.UserAgent, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan email otp: %w", err)
	}
	if userID.Valid {
		v := userID.String
		o.UserID = &v
	}
	o.Attempts = attempts
	o.Consumed = consumed != 0
	o.ExpiresAt, _ = parseTime(expires)
	if consumedAt.Valid {
		ct, _ := parseTime(consumedAt.String)
		o.ConsumedAt = &ct
	}
	o.CreatedAt, _ = parseTime(created)
	o.UpdatedAt, _ = parseTime(updated)
	return &o, nil
}

func (s *Store) GetEmailOTPByRequestID(ctx context.Context, requestID string) (*models.EmailOTP, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+emailOTPColumns+` FROM email_otps WHERE otp_request_id = ?`, requestID)
	return scanEmailOTP(row)
}

func (s *Store) UpdateEmailOTP(ctx context.Context, o *models.EmailOTP) error {
	o.UpdatedAt = time.Now().UTC()
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE email_otps SET
			attempts = ?, consumed = ?, consumed_at = ?, updated_at = ?
		WHERE id = ?`,
		o.Attempts, boolToInt(o.Consumed), nullTime(o.ConsumedAt), iso(o.UpdatedAt), o.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update email otp: %w", err)
	}
	return checkRowsAffected(res)
}

// DeleteExpiredEmailOTPs removes OTPs that expired before cutoff, plus
// consumed OTPs whose consumption is older than cutoff (spec.md §4.3).
func (s *Store) DeleteExpiredEmailOTPs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q(ctx).ExecContext(ctx, `
		DELETE FROM email_otps
		WHERE expires_at < ? OR (consumed = 1 AND consumed_at IS NOT NULL AND consumed_at < ?)`,
		iso(cutoff), iso(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired email otps: %w", err)
	}
	return res.RowsAffected()
}

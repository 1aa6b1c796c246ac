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

const passkeyColumns = `id, user_id, credential_id, public_key, host_domain, name,
	backup_eligible, backup_state, registration_ip, registration_ua, created_at, updated_at`

func (s *Store) CreatePasskey(ctx context.Context, p *models.Passkey) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO passkeys (`+passkeyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.CredentialID, p.PublicKey, p.HostDomain, p.Name,
		boolToInt(p.BackupEligible), boolToInt(p.BackupState), p.RegistrationIP, p.RegistrationUA,
		iso(now), iso(now))
	if isUniqueViolation(err) {
		return store.ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("sqlite: create passkey: %w", err)
	}
	return nil
}

func scanPasskeyRow(row interface {
	Scan(dest ...any) error
}) (*models.Passkey, error) {
	var p models.Passkey
	var backupEligible, backupState int
	var created, updated string
	err := row.Scan(&p.ID, &p.UserID, &p.CredentialID, &p.PublicKey, &p.HostDomain, &p.Name,
		&backupEligible, &backupState, &p.RegistrationIP, &p.RegistrationUA, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan passkey: %w", err)
	}
	p.BackupEligible = backupEligible != 0
	p.BackupState = backupState != 0
	p.CreatedAt, _ = parseTime(created)
	p.UpdatedAt, _ = parseTime(updated)
	return &p, nil
}

func (s *Store) GetPasskeyByCredentialID(ctx context.Context, credentialID string) (*models.Passkey, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+passkeyColumns+` FROM passkeys WHERE credential_id = ?`, credentialID)
	return scanPasskeyRow(row)
}

func (s *Store) ListPasskeysByUser(ctx context.Context, userID string) ([]*models.Passkey, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+passkeyColumns+` FROM passkeys WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list passkeys: %w", err)
	}
	defer rows.Close()
	var out []*models.Passkey
	for rows.Next() {
		p, err := scanPasskeyRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeletePasskey(ctx context.Context, id string) error {
	_, err := s.q(ctx).ExecContext(ctx, `DELETE FROM passkeys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete passkey: %w", err)
	}
	return nil
}

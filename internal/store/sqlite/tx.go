package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

type Store struct {
	db *DB
}

// New wraps an opened DB as a store.Store implementation.
func New(db *DB) *Store {
	return &Store{db: db}
}

type txKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db.db
}

// WithTx opens a single transaction with database/sql's default options
// (SQLite's deferred BEGIN) and guarantees it is committed or rolled back on
// every exit path — including panics — per spec.md §9's "Scoped resources"
// note and §5's single-transaction-per-mutation requirement for setup-token
// and email-OTP validation. The pool holds one connection, which the
// transaction keeps until it ends, so other callers wait for it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit transaction: %w", err)
	}
	return nil
}

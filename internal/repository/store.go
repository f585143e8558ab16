// Package repository implements the ledger's Store contract on MySQL.
// Transactions are carried in the context: WithTx opens one, stashes it
// and runs the callback, and every query helper picks the transaction
// out of the context or falls back to the pool.  Row-level locking is
// done with SELECT ... FOR UPDATE and every state transition is a
// conditional UPDATE verified by its affected-row count, so a plain
// check-then-update race cannot slip through.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/avekor/giftcode-vending/internal/ledger"
)

// Store implements ledger.Store on a *sql.DB.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store bound to the given database pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

type txKey struct{}

// WithTx runs fn inside a transaction.  A nested call joins the
// transaction already stored in the context instead of opening a second
// one, matching how the ledger composes its sweep into reserve.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// isDuplicateKey reports whether err is a MySQL unique constraint
// violation (error 1062).
func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// guarded translates the result of a conditional UPDATE: zero affected
// rows means the precondition no longer held and the transition must
// surface as ledger.ErrInvalidState.
func guarded(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrInvalidState
	}
	return nil
}

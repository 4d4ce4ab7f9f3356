package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// withTx runs fn in tx when the caller already holds one, otherwise in a
// new transaction that is committed when fn succeeds.
func withTx(ctx context.Context, db *sqlx.DB, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// exists runs a SELECT 1 style query and reports whether it matched a row.
func exists(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (bool, error) {
	var one int
	err := sqlx.GetContext(ctx, q, &one, query, args...)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

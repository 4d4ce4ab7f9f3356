package repository

import (
	"context"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/jmoiron/sqlx"
)

// RequestsRepository persists the requests table on the request side.
// It is the pending source for the requests export.
type RequestsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, r model.Request) error
	GetByID(ctx context.Context, id string) (*model.Request, error)
	SelectPending(ctx context.Context, limit int) ([]model.Record, error)
	MarkExported(ctx context.Context, ids []string, batchID string, at time.Time) (int64, error)
}

type RequestsRepositoryImpl struct {
	db *sqlx.DB
}

func NewRequestsRepository(db *sqlx.DB) *RequestsRepositoryImpl {
	return &RequestsRepositoryImpl{db: db}
}

var _ RequestsRepository = (*RequestsRepositoryImpl)(nil)

const requestColumns = `id, user_id, query_type, query_params, priority, status, export_batch_id, created_at, exported_at, completed_at, updated_at`

// Insert stores a new request with status=pending.
func (r *RequestsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, m model.Request) error {
	const q = `
		INSERT INTO requests
		    (id, user_id, query_type, query_params, priority, status, created_at, updated_at)
		VALUES
		    (?,  ?,       ?,          ?,            ?,        'pending', ?,        ?)
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			m.ID, m.UserID, m.QueryType, m.QueryParams, m.Priority, m.CreatedAt, m.CreatedAt,
		)
		return err
	})
}

func (r *RequestsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Request, error) {
	var m model.Request
	err := r.db.GetContext(ctx, &m, `SELECT `+requestColumns+` FROM requests WHERE id = ? LIMIT 1`, id)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SelectPending returns up to limit pending requests, highest priority
// first, then oldest first. id breaks ties so the order is total.
func (r *RequestsRepositoryImpl) SelectPending(ctx context.Context, limit int) ([]model.Record, error) {
	var rows []model.Request
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+requestColumns+`
		  FROM requests
		 WHERE status = 'pending'
		 ORDER BY priority DESC, created_at ASC, id ASC
		 LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, len(rows))
	for i, m := range rows {
		out[i] = m.Record()
	}
	return out, nil
}

// MarkExported flips exactly ids from pending to exported in one statement.
// Rows already claimed by another exporter are left alone.
func (r *RequestsRepositoryImpl) MarkExported(ctx context.Context, ids []string, batchID string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const base = `
		UPDATE requests
		   SET status = 'exported', export_batch_id = ?, exported_at = ?, updated_at = ?
		 WHERE id IN (?) AND status = 'pending'
	`
	query, args, err := sqlx.In(base, batchID, at, at, ids)
	if err != nil {
		return 0, err
	}
	query = r.db.Rebind(query)

	var n int64
	err = withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

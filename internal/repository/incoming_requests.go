package repository

import (
	"context"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/jmoiron/sqlx"
)

// IncomingRequestsRepository receives requests on the response side. Query
// execution picks rows up from here.
type IncomingRequestsRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewIncomingRequestsRepository(db *sqlx.DB) *IncomingRequestsRepository {
	return &IncomingRequestsRepository{db: db, now: time.Now}
}

func (r *IncomingRequestsRepository) Exists(ctx context.Context, id string) (bool, error) {
	return exists(ctx, r.db, `SELECT 1 FROM incoming_requests WHERE id = ? LIMIT 1`, id)
}

func (r *IncomingRequestsRepository) Apply(ctx context.Context, rec model.Record) (bool, error) {
	req, ok := rec.(model.RequestRecord)
	if !ok {
		return false, wrongRecord("request", rec)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO incoming_requests
		    (id, user_id, query_type, query_params, priority, status, created_at, received_at)
		VALUES
		    (?,  ?,       ?,          ?,            ?,        'received', ?,     ?)
		ON DUPLICATE KEY UPDATE id = id
	`, req.ID, req.UserID, req.QueryType, []byte(req.QueryParams), req.Priority, req.CreatedAt, r.now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetByID serves the executor hook on the admin surface.
func (r *IncomingRequestsRepository) GetByID(ctx context.Context, id string) (*model.IncomingRequest, error) {
	var m model.IncomingRequest
	err := r.db.GetContext(ctx, &m, `
		SELECT id, user_id, query_type, query_params, priority, status, created_at, received_at
		  FROM incoming_requests WHERE id = ? LIMIT 1
	`, id)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

package repository

import (
	"context"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/jmoiron/sqlx"
)

// QueryResultsRepository is the pending source for the results export on
// the response side. Rows are written by the query executor.
type QueryResultsRepository struct {
	db *sqlx.DB
}

func NewQueryResultsRepository(db *sqlx.DB) *QueryResultsRepository {
	return &QueryResultsRepository{db: db}
}

func (r *QueryResultsRepository) SelectPending(ctx context.Context, limit int) ([]model.Record, error) {
	var rows []model.QueryResult
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, request_id, status, result_data, error_message, record_count,
		       execution_time_ms, completed_at, export_batch_id, exported_at
		  FROM query_results
		 WHERE exported_at IS NULL
		 ORDER BY completed_at ASC, id ASC
		 LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, len(rows))
	for i, q := range rows {
		out[i] = q.Record()
	}
	return out, nil
}

func (r *QueryResultsRepository) MarkExported(ctx context.Context, ids []string, batchID string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`
		UPDATE query_results
		   SET export_batch_id = ?, exported_at = ?
		 WHERE id IN (?) AND exported_at IS NULL
	`, batchID, at, ids)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Insert records an executed query reported through the executor hook.
// It reports false when the request already has a result.
func (r *QueryResultsRepository) Insert(ctx context.Context, q model.QueryResult) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO query_results
		    (id, request_id, status, result_data, error_message, record_count, execution_time_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id
	`, q.ID, q.RequestID, q.Status, q.ResultData, q.ErrorMessage, q.RecordCount, q.ExecutionTimeMs, q.CompletedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

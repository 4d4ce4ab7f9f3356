package repository

import (
	"context"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/jmoiron/sqlx"
)

// ResponsesRepository stores imported results on the request side and
// closes the originating request.
type ResponsesRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	Apply(ctx context.Context, rec model.Record) (bool, error)
	GetByRequestID(ctx context.Context, requestID string) (*model.Response, error)
}

type ResponsesRepositoryImpl struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewResponsesRepository(db *sqlx.DB) *ResponsesRepositoryImpl {
	return &ResponsesRepositoryImpl{db: db, now: time.Now}
}

var _ ResponsesRepository = (*ResponsesRepositoryImpl)(nil)

func (r *ResponsesRepositoryImpl) Exists(ctx context.Context, id string) (bool, error) {
	return exists(ctx, r.db, `SELECT 1 FROM responses WHERE id = ? LIMIT 1`, id)
}

// Apply inserts the response and moves the request to completed or failed
// in one transaction. A request keeps its first result: a second one is not
// stored and Apply reports false.
func (r *ResponsesRepositoryImpl) Apply(ctx context.Context, rec model.Record) (bool, error) {
	res, ok := rec.(model.ResultRecord)
	if !ok {
		return false, wrongRecord("result", rec)
	}
	var errMsg *string
	if res.ErrorMessage != "" {
		errMsg = &res.ErrorMessage
	}
	reqStatus := model.RequestCompleted
	if res.Status == model.ResultFailed {
		reqStatus = model.RequestFailed
	}
	now := r.now().UTC()

	inserted := false
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		out, err := tx.ExecContext(ctx, `
			INSERT INTO responses
			    (id, request_id, user_id, status, result_data, error_message,
			     record_count, execution_time_ms, completed_at, received_at)
			VALUES
			    (?, ?, COALESCE((SELECT user_id FROM requests WHERE id = ?), ''), ?, ?, ?,
			     ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE id = id
		`, res.ID, res.RequestID, res.RequestID, res.Status, []byte(res.ResultData), errMsg,
			res.RecordCount, res.ExecutionTimeMs, res.CompletedAt, now)
		if err != nil {
			return err
		}
		// 0 rows: id or request_id already stored
		if n, err := out.RowsAffected(); err != nil || n == 0 {
			return err
		}
		inserted = true
		_, err = tx.ExecContext(ctx, `
			UPDATE requests
			   SET status = ?, completed_at = ?, updated_at = ?
			 WHERE id = ? AND status IN ('pending', 'exported')
		`, reqStatus, res.CompletedAt, now, res.RequestID)
		return err
	})
	return inserted && err == nil, err
}

func (r *ResponsesRepositoryImpl) GetByRequestID(ctx context.Context, requestID string) (*model.Response, error) {
	var m model.Response
	err := r.db.GetContext(ctx, &m, `
		SELECT id, request_id, user_id, status, result_data, error_message,
		       record_count, execution_time_ms, completed_at, received_at
		  FROM responses
		 WHERE request_id = ? LIMIT 1
	`, requestID)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// BatchSummary is one row of the ClickHouse batch history view.
type BatchSummary struct {
	ID          string     `db:"id" json:"id"`
	Direction   string     `db:"direction" json:"direction"`
	Kind        string     `db:"batch_type" json:"batch_type"`
	Filename    string     `db:"filename" json:"filename"`
	RecordCount uint32     `db:"record_count" json:"record_count"`
	Checksum    string     `db:"checksum" json:"checksum"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

type BatchFilter struct {
	Direction string
	Kind      string
	Status    string
	Limit     int
	Offset    int
}

// CHBatchesRepository lists transfer batches from ClickHouse (final view).
type CHBatchesRepository interface {
	ListBatches(ctx context.Context, f BatchFilter) ([]BatchSummary, error)
}

type chBatchesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHBatchesRepository(ch *sqlx.DB) CHBatchesRepository {
	return &chBatchesRepository{ch: ch}
}

func (r *chBatchesRepository) ListBatches(ctx context.Context, f BatchFilter) ([]BatchSummary, error) {
	q, args := listBatchesQuery(f)
	var rows []BatchSummary
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func listBatchesQuery(f BatchFilter) (string, []any) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `
		SELECT id, direction, batch_type, filename, record_count, checksum, status, created_at, completed_at
		FROM syncgw.transfer_batches_latest
		WHERE 1 = 1
	`
	var args []any
	if f.Direction != "" {
		q += " AND direction = ?"
		args = append(args, f.Direction)
	}
	if f.Kind != "" {
		q += " AND batch_type = ?"
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)
	return q, args
}

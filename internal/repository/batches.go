package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/jmoiron/sqlx"
)

// BatchesRepository is the transfer ledger for one direction: export_batches
// on the exporting side, import_batches on the importing side.
type BatchesRepository struct {
	db    *sqlx.DB
	table string
}

func NewBatchesRepository(db *sqlx.DB, dir model.Direction) (*BatchesRepository, error) {
	t, err := batchTable(dir)
	if err != nil {
		return nil, err
	}
	return &BatchesRepository{db: db, table: t}, nil
}

func batchTable(dir model.Direction) (string, error) {
	switch dir {
	case model.DirectionExport:
		return "export_batches", nil
	case model.DirectionImport:
		return "import_batches", nil
	}
	return "", fmt.Errorf("unknown batch direction %q", dir)
}

const batchColumns = `id, batch_type, source_batch_id, filename, file_path, size_bytes, record_count, checksum, status, error_message, created_at, completed_at`

func (r *BatchesRepository) Begin(ctx context.Context, b model.TransferBatch) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO `+r.table+` (`+batchColumns+`)
		VALUES (:id, :batch_type, :source_batch_id, :filename, :file_path, :size_bytes,
		        :record_count, :checksum, :status, :error_message, :created_at, :completed_at)
	`, b)
	return err
}

// Complete is terminal; a completed batch is never reopened or failed.
func (r *BatchesRepository) Complete(ctx context.Context, id string, recordCount int, at time.Time) error {
	return r.finish(ctx, `
		UPDATE `+r.table+`
		   SET status = 'completed', record_count = ?, completed_at = ?
		 WHERE id = ? AND status <> 'completed'
	`, recordCount, at, id)
}

func (r *BatchesRepository) Fail(ctx context.Context, id, reason string, at time.Time) error {
	return r.finish(ctx, `
		UPDATE `+r.table+`
		   SET status = 'failed', error_message = ?, completed_at = ?
		 WHERE id = ? AND status <> 'completed'
	`, reason, at, id)
}

func (r *BatchesRepository) finish(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", r.table, args[len(args)-1], ErrNotFound)
	}
	return nil
}

func (r *BatchesRepository) ChecksumSeen(ctx context.Context, kind, checksum string) (bool, error) {
	return exists(ctx, r.db, `
		SELECT 1 FROM `+r.table+`
		 WHERE batch_type = ? AND checksum = ? AND status = 'completed'
		 LIMIT 1
	`, kind, checksum)
}

func (r *BatchesRepository) LastCompletedChecksum(ctx context.Context, kind string) (string, error) {
	var sum string
	err := r.db.GetContext(ctx, &sum, `
		SELECT checksum FROM `+r.table+`
		 WHERE batch_type = ? AND status = 'completed'
		 ORDER BY completed_at DESC, id DESC
		 LIMIT 1
	`, kind)
	if isNoRows(err) {
		return "", nil
	}
	return sum, err
}

func (r *BatchesRepository) Get(ctx context.Context, id string) (*model.TransferBatch, error) {
	var b model.TransferBatch
	err := r.db.GetContext(ctx, &b, `SELECT `+batchColumns+` FROM `+r.table+` WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

package transfer

import (
	"context"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
)

// PendingSource supplies incremental records awaiting export.
type PendingSource interface {
	// SelectPending returns up to limit records ordered priority DESC, created_at ASC.
	SelectPending(ctx context.Context, limit int) ([]model.Record, error)
	// MarkExported flips exactly ids from pending to exported in one scoped
	// update and returns how many rows it claimed.
	MarkExported(ctx context.Context, ids []string, batchID string, at time.Time) (int64, error)
}

// SnapshotSource supplies the full current state of a snapshot kind.
type SnapshotSource interface {
	SelectSnapshot(ctx context.Context) ([]model.Record, error)
}

// IncrementalSink applies per-record imports.
type IncrementalSink interface {
	Exists(ctx context.Context, id string) (bool, error)
	// Apply stores rec. applied is false when the store already holds a
	// record it conflicts with, such as another result for the same request.
	Apply(ctx context.Context, rec model.Record) (applied bool, err error)
}

// SnapshotSink upserts snapshot records; inserted is false for updates.
type SnapshotSink interface {
	Upsert(ctx context.Context, rec model.Record) (inserted bool, err error)
}

// Ledger records batches on one side (export_batches or import_batches).
type Ledger interface {
	Begin(ctx context.Context, b model.TransferBatch) error
	Complete(ctx context.Context, id string, recordCount int, at time.Time) error
	Fail(ctx context.Context, id, reason string, at time.Time) error
	// ChecksumSeen reports whether a completed batch of kind had this checksum.
	ChecksumSeen(ctx context.Context, kind, checksum string) (bool, error)
	// LastCompletedChecksum is the checksum of the newest completed batch of kind, or "".
	LastCompletedChecksum(ctx context.Context, kind string) (string, error)
}

// Invalidator drops cached responses for imported results.
type Invalidator interface {
	Invalidate(ctx context.Context, requestID string) bool
}

// Notifier announces published batches.
type Notifier interface {
	BatchExported(ctx context.Context, meta model.BatchMetadata) error
}

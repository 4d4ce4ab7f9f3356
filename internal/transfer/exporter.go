package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/metrics"
	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/alioptr7/the-first-sub000/internal/util"
	"go.uber.org/zap"
)

const DefaultBatchSize = 500

const (
	StatusSuccess        = "success"
	StatusNoChanges      = "no_changes"
	StatusNoFiles        = "no_files"
	StatusPartialSuccess = "partial_success"
	StatusFailed         = "failed"
)

type ExportResult struct {
	Kind        Kind   `json:"kind"`
	Status      string `json:"status"`
	BatchID     string `json:"batch_id,omitempty"`
	Filename    string `json:"filename,omitempty"`
	RecordCount int    `json:"record_count"`
	Checksum    string `json:"checksum,omitempty"`
	// Marked is how many source rows this run moved out of pending.
	Marked int64 `json:"marked"`
}

// Exporter writes pending records or snapshots as checksummed batch files.
// Files are published before any source row changes state, so a crash
// leaves records pending and they are exported again.
type Exporter struct {
	// Dependencies
	Layout    Layout
	Ledger    Ledger
	Pending   map[Kind]PendingSource
	Snapshots map[Kind]SnapshotSource
	Notifier  Notifier // optional

	Log *zap.Logger
	Now func() time.Time
}

func NewExporter(layout Layout, ledger Ledger, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{
		Layout:    layout,
		Ledger:    ledger,
		Pending:   map[Kind]PendingSource{},
		Snapshots: map[Kind]SnapshotSource{},
		Log:       log,
		Now:       time.Now,
	}
}

// Export dispatches on the style of kind.
func (e *Exporter) Export(ctx context.Context, kind Kind, maxBatchSize int) (ExportResult, error) {
	if kind.Style() == Snapshot {
		return e.ExportSnapshot(ctx, kind)
	}
	return e.ExportPending(ctx, kind, maxBatchSize)
}

// ExportPending exports up to maxBatchSize pending records of an incremental kind.
func (e *Exporter) ExportPending(ctx context.Context, kind Kind, maxBatchSize int) (ExportResult, error) {
	src, ok := e.Pending[kind]
	if !ok || kind.Style() != Incremental {
		return ExportResult{}, fmt.Errorf("%w: no pending source for %s", ErrUnknownKind, kind)
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultBatchSize
	}

	recs, err := src.SelectPending(ctx, maxBatchSize)
	if err != nil {
		return ExportResult{}, fmt.Errorf("select pending %s: %w", kind, err)
	}
	if len(recs) == 0 {
		e.Log.Debug("nothing pending", zap.String("kind", kind.String()))
		return ExportResult{Kind: kind, Status: StatusNoChanges}, nil
	}

	data, err := EncodeNDJSON(recs)
	if err != nil {
		return ExportResult{}, err
	}

	now := e.Now().UTC()
	meta, err := e.publish(ctx, kind, data, len(recs), now)
	if err != nil {
		return ExportResult{}, err
	}

	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.RecordID()
	}
	marked, err := src.MarkExported(ctx, ids, meta.BatchID, now)
	if err != nil {
		e.fail(ctx, kind, meta.BatchID, err)
		return ExportResult{}, fmt.Errorf("mark exported %s: %w", meta.BatchID, err)
	}
	if marked < int64(len(ids)) {
		// rows claimed by a concurrent run; the peer dedupes by id
		e.Log.Warn("fewer rows marked than exported",
			zap.String("batch_id", meta.BatchID), zap.Int("exported", len(ids)), zap.Int64("marked", marked))
	}

	e.complete(ctx, kind, meta)
	metrics.TransferRecordsTotal.WithLabelValues(kind.String(), string(model.DirectionExport), "exported").Add(float64(len(recs)))

	return ExportResult{
		Kind:        kind,
		Status:      StatusSuccess,
		BatchID:     meta.BatchID,
		Filename:    meta.Filename,
		RecordCount: meta.RecordCount,
		Checksum:    meta.Checksum,
		Marked:      marked,
	}, nil
}

// ExportSnapshot exports the full state of a snapshot kind unless it is
// byte-identical to the last completed export.
func (e *Exporter) ExportSnapshot(ctx context.Context, kind Kind) (ExportResult, error) {
	src, ok := e.Snapshots[kind]
	if !ok || kind.Style() != Snapshot {
		return ExportResult{}, fmt.Errorf("%w: no snapshot source for %s", ErrUnknownKind, kind)
	}

	recs, err := src.SelectSnapshot(ctx)
	if err != nil {
		return ExportResult{}, fmt.Errorf("select snapshot %s: %w", kind, err)
	}
	data, err := EncodeNDJSON(recs)
	if err != nil {
		return ExportResult{}, err
	}

	sum := Checksum(data)
	last, err := e.Ledger.LastCompletedChecksum(ctx, kind.String())
	if err != nil {
		return ExportResult{}, fmt.Errorf("last %s snapshot: %w", kind, err)
	}
	if last == sum {
		e.Log.Debug("snapshot unchanged", zap.String("kind", kind.String()), zap.String("checksum", sum))
		return ExportResult{Kind: kind, Status: StatusNoChanges, RecordCount: len(recs), Checksum: sum}, nil
	}

	meta, err := e.publish(ctx, kind, data, len(recs), e.Now().UTC())
	if err != nil {
		return ExportResult{}, err
	}
	e.complete(ctx, kind, meta)
	metrics.TransferRecordsTotal.WithLabelValues(kind.String(), string(model.DirectionExport), "exported").Add(float64(len(recs)))

	return ExportResult{
		Kind:        kind,
		Status:      StatusSuccess,
		BatchID:     meta.BatchID,
		Filename:    meta.Filename,
		RecordCount: meta.RecordCount,
		Checksum:    meta.Checksum,
	}, nil
}

// publish records a pending batch row and writes data plus sidecar into the export dir.
func (e *Exporter) publish(ctx context.Context, kind Kind, data []byte, count int, now time.Time) (model.BatchMetadata, error) {
	if err := e.Layout.ensureExport(kind); err != nil {
		return model.BatchMetadata{}, err
	}

	batchID := util.NewULID(now)
	name := BatchFilename(kind, now, batchID)
	meta := model.BatchMetadata{
		BatchID:     batchID,
		BatchType:   kind.String(),
		Filename:    name,
		FileSize:    int64(len(data)),
		RecordCount: count,
		Checksum:    Checksum(data),
		ExportedAt:  now,
		Version:     model.MetadataVersion,
	}
	metaBytes, err := EncodeMetadata(meta)
	if err != nil {
		return meta, fmt.Errorf("encode metadata: %w", err)
	}

	dir := e.Layout.ExportDir(kind)
	err = e.Ledger.Begin(ctx, model.TransferBatch{
		ID:          batchID,
		Kind:        kind.String(),
		Filename:    name,
		FilePath:    filepath.Join(dir, name),
		SizeBytes:   meta.FileSize,
		RecordCount: count,
		Checksum:    meta.Checksum,
		Status:      model.BatchPending,
		CreatedAt:   now,
	})
	if err != nil {
		return meta, fmt.Errorf("record export batch: %w", err)
	}

	if err := publish(e.Layout.StagingDir(kind), dir, name, data, MetaFilename(name), metaBytes); err != nil {
		e.fail(ctx, kind, batchID, err)
		return meta, err
	}
	return meta, nil
}

func (e *Exporter) complete(ctx context.Context, kind Kind, meta model.BatchMetadata) {
	if err := e.Ledger.Complete(ctx, meta.BatchID, meta.RecordCount, e.Now().UTC()); err != nil {
		e.Log.Error("export batch not marked completed", zap.String("batch_id", meta.BatchID), zap.Error(err))
	}
	metrics.TransferBatchesTotal.WithLabelValues(kind.String(), string(model.DirectionExport), StatusSuccess).Inc()
	e.Log.Info("batch exported",
		zap.String("kind", kind.String()),
		zap.String("batch_id", meta.BatchID),
		zap.String("file", meta.Filename),
		zap.Int("records", meta.RecordCount),
		zap.String("checksum", meta.Checksum))

	if e.Notifier != nil {
		if err := e.Notifier.BatchExported(ctx, meta); err != nil {
			e.Log.Warn("batch notification failed", zap.String("batch_id", meta.BatchID), zap.Error(err))
		}
	}
}

func (e *Exporter) fail(ctx context.Context, kind Kind, batchID string, cause error) {
	metrics.TransferBatchesTotal.WithLabelValues(kind.String(), string(model.DirectionExport), StatusFailed).Inc()
	if err := e.Ledger.Fail(ctx, batchID, cause.Error(), e.Now().UTC()); err != nil {
		e.Log.Error("export batch not marked failed", zap.String("batch_id", batchID), zap.Error(err))
	}
	e.Log.Error("export failed", zap.String("batch_id", batchID), zap.Error(cause))
}

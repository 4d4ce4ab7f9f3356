package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/metrics"
	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/alioptr7/the-first-sub000/internal/util"
	"go.uber.org/zap"
)

const (
	DefaultStaleAfter = 10 * time.Minute

	maxReportedErrors = 50
)

type ImportResult struct {
	Kind             Kind     `json:"kind"`
	Status           string   `json:"status"`
	FilesProcessed   int      `json:"files_processed"`
	FilesArchived    int      `json:"files_archived"`
	FilesQuarantined int      `json:"files_quarantined"`
	FilesFailed      int      `json:"files_failed"`
	DuplicateBatches int      `json:"duplicate_batches"`
	RecordsImported  int      `json:"records_imported"`
	RecordsUpdated   int      `json:"records_updated"`
	RecordsSkipped   int      `json:"records_skipped"`
	RecordsFailed    int      `json:"records_failed"`
	Errors           []string `json:"errors,omitempty"`

	unchanged int
}

func (r *ImportResult) addError(format string, args ...any) {
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	}
}

func (r *ImportResult) finalize() {
	switch {
	case r.FilesProcessed == 0:
		r.Status = StatusNoFiles
	case r.FilesArchived == 0:
		r.Status = StatusFailed
	case r.FilesFailed+r.FilesQuarantined > 0 || r.RecordsFailed > 0:
		r.Status = StatusPartialSuccess
	case r.unchanged == r.FilesArchived:
		r.Status = StatusNoChanges
	default:
		r.Status = StatusSuccess
	}
}

// Importer applies batch files found in imports/<kind>/ exactly once.
// Each file is claimed by renaming it into processing/, so concurrent
// importers never read the same file.
type Importer struct {
	// Dependencies
	Layout      Layout
	Ledger      Ledger
	Incremental map[Kind]IncrementalSink
	Snapshots   map[Kind]SnapshotSink
	Cache       Invalidator // results only, optional

	// Behavior
	StaleAfter time.Duration // claims older than this go back to the inbox

	Log *zap.Logger
	Now func() time.Time
}

func NewImporter(layout Layout, ledger Ledger, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{
		Layout:      layout,
		Ledger:      ledger,
		Incremental: map[Kind]IncrementalSink{},
		Snapshots:   map[Kind]SnapshotSink{},
		StaleAfter:  DefaultStaleAfter,
		Log:         log,
		Now:         time.Now,
	}
}

// ImportAvailable processes every batch of kind currently in the inbox,
// oldest name first. Per-file failures are reported in the result; the
// error is only set for failures that make the whole run worth retrying.
func (i *Importer) ImportAvailable(ctx context.Context, kind Kind) (ImportResult, error) {
	res := ImportResult{Kind: kind}
	if !i.registered(kind) {
		return res, fmt.Errorf("%w: no sink for %s", ErrUnknownKind, kind)
	}
	if err := i.Layout.ensureImport(kind); err != nil {
		return res, err
	}
	i.recoverStale(kind)

	names, err := listBatches(i.Layout.Inbox(kind), kind)
	if err != nil {
		return res, transient("list", i.Layout.Inbox(kind), err)
	}

	var runErr error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := i.importFile(ctx, kind, name, &res); err != nil {
			runErr = err
			break
		}
	}

	res.finalize()
	metrics.TransferBatchesTotal.WithLabelValues(kind.String(), string(model.DirectionImport), res.Status).Inc()
	for outcome, n := range map[string]int{
		"imported": res.RecordsImported,
		"updated":  res.RecordsUpdated,
		"skipped":  res.RecordsSkipped,
		"failed":   res.RecordsFailed,
	} {
		if n > 0 {
			metrics.TransferRecordsTotal.WithLabelValues(kind.String(), string(model.DirectionImport), outcome).Add(float64(n))
		}
	}
	if res.FilesProcessed > 0 {
		i.Log.Info("import finished",
			zap.String("kind", kind.String()),
			zap.String("status", res.Status),
			zap.Int("files", res.FilesProcessed),
			zap.Int("archived", res.FilesArchived),
			zap.Int("quarantined", res.FilesQuarantined),
			zap.Int("failed", res.FilesFailed),
			zap.Int("duplicates", res.DuplicateBatches),
			zap.Int("imported", res.RecordsImported),
			zap.Int("updated", res.RecordsUpdated),
			zap.Int("skipped", res.RecordsSkipped),
			zap.Int("record_errors", res.RecordsFailed))
	}
	return res, runErr
}

func (i *Importer) registered(kind Kind) bool {
	if kind.Style() == Snapshot {
		_, ok := i.Snapshots[kind]
		return ok
	}
	_, ok := i.Incremental[kind]
	return ok
}

// recoverStale returns claims abandoned by a crashed importer to the inbox.
func (i *Importer) recoverStale(kind Kind) {
	proc := i.Layout.Processing(kind)
	entries, err := os.ReadDir(proc)
	if err != nil {
		i.Log.Warn("cannot scan claims", zap.String("dir", proc), zap.Error(err))
		return
	}
	cutoff := i.Now().Add(-i.StaleAfter)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() || info.ModTime().After(cutoff) {
			continue
		}
		if err := moveInto(proc, i.Layout.Inbox(kind), e.Name()); err != nil {
			i.Log.Warn("stale claim not recovered", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		i.Log.Warn("recovered stale claim", zap.String("kind", kind.String()), zap.String("file", e.Name()))
	}
}

// fileRun carries per-file state between steps.
type fileRun struct {
	kind     Kind
	name     string
	metaName string
	data     []byte
	meta     model.BatchMetadata
	sum      string
	batchID  string
}

// importFile handles one batch. A returned error aborts the run; file-level
// problems are recorded in res and the files are moved out of the inbox.
func (i *Importer) importFile(ctx context.Context, kind Kind, name string, res *ImportResult) error {
	inbox, proc := i.Layout.Inbox(kind), i.Layout.Processing(kind)
	fr := &fileRun{kind: kind, name: name, metaName: MetaFilename(name)}

	if err := os.Rename(filepath.Join(inbox, name), filepath.Join(proc, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // claimed by another importer
		}
		return transient("claim", filepath.Join(inbox, name), err)
	}
	now := i.Now()
	_ = touch(filepath.Join(proc, name), now)
	res.FilesProcessed++

	err := os.Rename(filepath.Join(inbox, fr.metaName), filepath.Join(proc, fr.metaName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		i.quarantine(ctx, fr, res, ErrMissingMetadata)
		return nil
	case err != nil:
		i.release(fr)
		res.FilesProcessed--
		return transient("claim", filepath.Join(inbox, fr.metaName), err)
	}
	_ = touch(filepath.Join(proc, fr.metaName), now)

	rawMeta, err := os.ReadFile(filepath.Join(proc, fr.metaName))
	if err != nil {
		i.release(fr)
		res.FilesProcessed--
		return transient("read", fr.metaName, err)
	}
	if fr.meta, err = DecodeMetadata(rawMeta, kind); err != nil {
		i.quarantine(ctx, fr, res, err)
		return nil
	}

	if fr.data, err = os.ReadFile(filepath.Join(proc, name)); err != nil {
		i.release(fr)
		res.FilesProcessed--
		return transient("read", name, err)
	}
	fr.sum = Checksum(fr.data)
	if fr.sum != fr.meta.Checksum {
		i.quarantine(ctx, fr, res, fmt.Errorf("%w: file %s, metadata %s", ErrChecksumMismatch, fr.sum, fr.meta.Checksum))
		return nil
	}

	if kind.Style() == Incremental {
		seen, err := i.Ledger.ChecksumSeen(ctx, kind.String(), fr.sum)
		if err != nil {
			i.release(fr)
			res.FilesProcessed--
			return fmt.Errorf("import ledger lookup: %w", err)
		}
		if seen {
			i.Log.Info("duplicate batch archived", zap.String("file", name), zap.String("checksum", fr.sum))
			res.DuplicateBatches++
			i.archive(fr, res)
			return nil
		}
	}

	fr.batchID = util.NewULID(now)
	src := fr.meta.BatchID
	err = i.Ledger.Begin(ctx, model.TransferBatch{
		ID:            fr.batchID,
		Kind:          kind.String(),
		SourceBatchID: &src,
		Filename:      name,
		FilePath:      filepath.Join(i.Layout.Archive(kind), name),
		SizeBytes:     int64(len(fr.data)),
		RecordCount:   fr.meta.RecordCount,
		Checksum:      fr.sum,
		Status:        model.BatchProcessing,
		CreatedAt:     now.UTC(),
	})
	if err != nil {
		i.release(fr)
		res.FilesProcessed--
		return fmt.Errorf("record import batch: %w", err)
	}

	var applied int
	if kind.Style() == Snapshot {
		applied, err = i.applySnapshot(ctx, fr, res)
	} else {
		applied, err = i.applyIncremental(ctx, fr, res)
	}
	if err != nil {
		i.failFile(ctx, fr, res, err)
		return nil
	}

	if err := i.Ledger.Complete(ctx, fr.batchID, applied, i.Now().UTC()); err != nil {
		i.Log.Error("import batch not marked completed", zap.String("batch_id", fr.batchID), zap.Error(err))
	}
	i.archive(fr, res)
	return nil
}

func (i *Importer) applyIncremental(ctx context.Context, fr *fileRun, res *ImportResult) (int, error) {
	sink := i.Incremental[fr.kind]
	applied := 0
	for _, ln := range SplitLines(fr.data) {
		rec, ok := i.decodeLine(fr, ln, res)
		if !ok {
			continue
		}
		exists, err := sink.Exists(ctx, rec.RecordID())
		if err != nil {
			return applied, fmt.Errorf("line %d: lookup %s: %w", ln.No, rec.RecordID(), err)
		}
		if exists {
			res.RecordsSkipped++
			continue
		}
		stored, err := sink.Apply(ctx, rec)
		if err != nil {
			return applied, fmt.Errorf("line %d: apply %s: %w", ln.No, rec.RecordID(), err)
		}
		if !stored {
			i.Log.Warn("record conflicts with stored data, skipped",
				zap.String("kind", fr.kind.String()), zap.String("id", rec.RecordID()), zap.Int("line", ln.No))
			res.RecordsSkipped++
			continue
		}
		if r, ok := rec.(model.ResultRecord); ok && i.Cache != nil {
			i.Cache.Invalidate(ctx, r.RequestID)
		}
		applied++
		res.RecordsImported++
	}
	return applied, nil
}

// applySnapshot upserts every record unless the payload equals the last
// completed import of this kind.
func (i *Importer) applySnapshot(ctx context.Context, fr *fileRun, res *ImportResult) (int, error) {
	last, err := i.Ledger.LastCompletedChecksum(ctx, fr.kind.String())
	if err != nil {
		return 0, fmt.Errorf("last %s snapshot: %w", fr.kind, err)
	}
	if last == fr.sum {
		i.Log.Info("snapshot unchanged", zap.String("file", fr.name), zap.String("checksum", fr.sum))
		res.unchanged++
		return 0, nil
	}

	sink := i.Snapshots[fr.kind]
	applied := 0
	for _, ln := range SplitLines(fr.data) {
		rec, ok := i.decodeLine(fr, ln, res)
		if !ok {
			continue
		}
		inserted, err := sink.Upsert(ctx, rec)
		if err != nil {
			return applied, fmt.Errorf("line %d: upsert %s: %w", ln.No, rec.RecordID(), err)
		}
		applied++
		if inserted {
			res.RecordsImported++
		} else {
			res.RecordsUpdated++
		}
	}
	return applied, nil
}

func (i *Importer) decodeLine(fr *fileRun, ln Line, res *ImportResult) (model.Record, bool) {
	rec, err := fr.kind.Decode(ln.Data)
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.Line = ln.No
		}
		res.RecordsFailed++
		res.addError("%s: %v", fr.name, err)
		i.Log.Warn("invalid record skipped", zap.String("file", fr.name), zap.Error(err))
		return nil, false
	}
	return rec, true
}

func (i *Importer) archive(fr *fileRun, res *ImportResult) {
	i.moveBoth(fr, i.Layout.Archive(fr.kind))
	res.FilesArchived++
}

// quarantine moves whatever was claimed to failed/ without applying anything.
func (i *Importer) quarantine(ctx context.Context, fr *fileRun, res *ImportResult, cause error) {
	i.moveBoth(fr, i.Layout.Failed(fr.kind))
	res.FilesQuarantined++
	res.addError("%s: %v", fr.name, cause)
	i.Log.Warn("batch quarantined", zap.String("kind", fr.kind.String()), zap.String("file", fr.name), zap.Error(cause))
	i.recordFailure(ctx, fr, cause)
}

// failFile moves a batch that broke mid-apply to failed/. It is not retried automatically.
func (i *Importer) failFile(ctx context.Context, fr *fileRun, res *ImportResult, cause error) {
	i.moveBoth(fr, i.Layout.Failed(fr.kind))
	res.FilesFailed++
	res.addError("%s: %v", fr.name, cause)
	i.Log.Error("batch import failed", zap.String("kind", fr.kind.String()), zap.String("file", fr.name), zap.Error(cause))
	if err := i.Ledger.Fail(ctx, fr.batchID, cause.Error(), i.Now().UTC()); err != nil {
		i.Log.Error("import batch not marked failed", zap.String("batch_id", fr.batchID), zap.Error(err))
	}
}

func (i *Importer) recordFailure(ctx context.Context, fr *fileRun, cause error) {
	now := i.Now().UTC()
	reason := cause.Error()
	b := model.TransferBatch{
		ID:           util.NewULID(now),
		Kind:         fr.kind.String(),
		Filename:     fr.name,
		FilePath:     filepath.Join(i.Layout.Failed(fr.kind), fr.name),
		SizeBytes:    int64(len(fr.data)),
		Checksum:     fr.sum,
		Status:       model.BatchFailed,
		ErrorMessage: &reason,
		CreatedAt:    now,
	}
	if fr.meta.BatchID != "" {
		src := fr.meta.BatchID
		b.SourceBatchID = &src
	}
	if err := i.Ledger.Begin(ctx, b); err != nil {
		i.Log.Error("quarantine not recorded", zap.String("file", fr.name), zap.Error(err))
	}
}

// release puts a claim back into the inbox for the next run.
func (i *Importer) release(fr *fileRun) {
	i.moveBoth(fr, i.Layout.Inbox(fr.kind))
}

func (i *Importer) moveBoth(fr *fileRun, dst string) {
	proc := i.Layout.Processing(fr.kind)
	for _, n := range []string{fr.name, fr.metaName} {
		if err := moveInto(proc, dst, n); err != nil {
			i.Log.Error("cannot move batch file", zap.String("file", n), zap.String("to", dst), zap.Error(err))
		}
	}
}

package worker

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/kafka"
	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/alioptr7/the-first-sub000/internal/transfer"
	"go.uber.org/zap"
)

// EventSource is the subset of kafka.BatchEvents the watcher needs.
type EventSource interface {
	Next(ctx context.Context) (kafka.Event, error)
	Ack(ctx context.Context, ev kafka.Event) error
}

// Watcher triggers imports from batch events instead of a polling interval.
// Events carry the batch sidecar; the announced kind's inbox is imported.
//
// The event is published when the batch lands in the exporter's directory,
// which is before the copy across the gap. When Inbox is set the watcher
// waits up to Settle for the announced sidecar to show up in the inbox and
// skips the event otherwise; the next event or the startup drain imports it.
type Watcher struct {
	Source EventSource
	Jobs   map[transfer.Kind]Job
	Sync   *SyncWorker
	Inbox  func(transfer.Kind) string // nil imports on every event
	Settle time.Duration
	Poll   time.Duration
	Log    *zap.Logger
}

func NewWatcher(src EventSource, jobs map[transfer.Kind]Job, sync *SyncWorker, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		Source: src,
		Jobs:   jobs,
		Sync:   sync,
		Settle: 30 * time.Second,
		Poll:   500 * time.Millisecond,
		Log:    log,
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		ev, err := w.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.Log.Warn("batch event fetch failed", zap.Error(err))
			if sleepCtx(ctx, 200*time.Millisecond) != nil {
				return nil
			}
			continue
		}
		w.handle(ctx, ev)

		// at-least-once; a replayed event finds an empty inbox
		if err := w.Source.Ack(ctx, ev); err != nil {
			w.Log.Warn("batch event commit failed", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev kafka.Event) {
	if ev.Err != nil {
		w.Log.Warn("bad batch event", zap.Error(ev.Err))
		return
	}
	meta := ev.Meta
	kind, err := transfer.ParseKind(meta.BatchType)
	if err != nil {
		w.Log.Warn("batch event for unknown kind", zap.String("batch_type", meta.BatchType))
		return
	}
	job, ok := w.Jobs[kind]
	if !ok {
		w.Log.Debug("batch event ignored on this side", zap.String("kind", kind.String()))
		return
	}
	if !w.arrived(ctx, kind, meta) {
		w.Log.Warn("announced batch not in inbox yet, skipped",
			zap.String("batch_id", meta.BatchID),
			zap.String("kind", kind.String()),
			zap.String("file", meta.Filename),
			zap.Duration("settle", w.Settle))
		return
	}
	res := w.Sync.RunOnce(ctx, job)
	w.Log.Info("batch event handled",
		zap.String("batch_id", meta.BatchID),
		zap.String("kind", kind.String()),
		zap.String("outcome", res.Outcome.String()),
		zap.String("summary", res.Summary))
}

// arrived reports whether the announced sidecar is in the inbox, waiting up
// to Settle for the copy to finish. The sidecar is copied after its data file.
func (w *Watcher) arrived(ctx context.Context, kind transfer.Kind, meta model.BatchMetadata) bool {
	if w.Inbox == nil || meta.Filename == "" {
		return true
	}
	path := filepath.Join(w.Inbox(kind), transfer.MetaFilename(meta.Filename))
	deadline := time.Now().Add(w.Settle)
	for {
		_, err := os.Stat(path)
		if err == nil {
			return true
		}
		if !errors.Is(err, fs.ErrNotExist) {
			w.Log.Warn("inbox stat failed", zap.String("path", path), zap.Error(err))
			return false
		}
		if !time.Now().Before(deadline) || sleepCtx(ctx, w.Poll) != nil {
			return false
		}
	}
}

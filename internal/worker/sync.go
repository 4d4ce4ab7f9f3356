package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy re-runs retryable failures with a fixed backoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 60 * time.Second}
}

// Job is one periodically scheduled task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) Result
}

// SyncWorker runs each job on its own ticker. A job never overlaps with
// itself inside one process; other processes are absorbed by the
// idempotent export/import protocol.
type SyncWorker struct {
	Jobs  []Job
	Retry RetryPolicy
	Log   *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewSyncWorker(jobs []Job, retry RetryPolicy, log *zap.Logger) *SyncWorker {
	if log == nil {
		log = zap.NewNop()
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &SyncWorker{Jobs: jobs, Retry: retry, Log: log, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run starts every job and blocks until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, j := range w.Jobs {
		if j.Interval <= 0 {
			w.Log.Warn("job disabled, no interval", zap.String("job", j.Name))
			continue
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			w.loop(ctx, j)
		}(j)
	}
	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *SyncWorker) loop(ctx context.Context, j Job) {
	tick := time.NewTicker(j.Interval)
	defer tick.Stop()

	w.Log.Info("job scheduled", zap.String("job", j.Name), zap.Duration("interval", j.Interval))
	w.RunOnce(ctx, j)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			w.RunOnce(ctx, j)
		}
	}
}

// RunOnce runs j, retrying retryable failures up to the policy limit.
func (w *SyncWorker) RunOnce(ctx context.Context, j Job) Result {
	for attempt := 1; ; attempt++ {
		res := j.Run(ctx)
		switch res.Outcome {
		case OutcomeOK:
			w.Log.Debug("job done", zap.String("job", j.Name), zap.String("summary", res.Summary))
			return res
		case OutcomeFatal:
			w.Log.Error("job failed", zap.String("job", j.Name), zap.String("summary", res.Summary), zap.Error(res.Err))
			return res
		}

		if attempt >= w.Retry.MaxAttempts || ctx.Err() != nil {
			w.Log.Error("job failed after retries",
				zap.String("job", j.Name), zap.Int("attempts", attempt), zap.Error(res.Err))
			return res
		}
		w.Log.Warn("job failed, retrying",
			zap.String("job", j.Name), zap.Int("attempt", attempt),
			zap.Duration("backoff", w.Retry.Backoff), zap.Error(res.Err))
		if err := w.sleep(ctx, w.Retry.Backoff); err != nil {
			return res
		}
	}
}

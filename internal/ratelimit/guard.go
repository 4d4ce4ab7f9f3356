package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// StoreGuard trips after a run of counter store failures. While tripped,
// store calls return ErrStoreUnavailable without touching Redis, so the
// limiter fails open immediately instead of waiting on timeouts. Once the
// cooldown has passed a single trial call is let through; its outcome
// either resets the guard or trips it again.
type StoreGuard struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	tripped   bool
	until     time.Time
	trial     bool

	now func() time.Time
	log *zap.Logger
}

func NewStoreGuard(threshold int, cooldown time.Duration) *StoreGuard {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 15 * time.Second
	}
	return &StoreGuard{threshold: threshold, cooldown: cooldown, now: time.Now, log: zap.NewNop()}
}

// Do runs fn unless the guard is tripped and no trial is due.
func (g *StoreGuard) Do(fn func() error) error {
	if !g.admit() {
		return ErrStoreUnavailable
	}
	err := fn()
	g.record(err)
	return err
}

func (g *StoreGuard) admit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.tripped {
		return true
	}
	if g.trial || g.now().Before(g.until) {
		return false
	}
	g.trial = true
	return true
}

func (g *StoreGuard) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		if g.tripped {
			g.log.Info("counter store recovered")
		}
		g.failures, g.tripped, g.trial = 0, false, false
		return
	}

	g.failures++
	if g.trial || g.failures >= g.threshold {
		if !g.tripped {
			g.log.Warn("counter store guard tripped",
				zap.Int("failures", g.failures), zap.Duration("cooldown", g.cooldown), zap.Error(err))
		}
		g.tripped, g.trial = true, false
		g.until = g.now().Add(g.cooldown)
	}
}

// State reports closed, open or half_open.
func (g *StoreGuard) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case !g.tripped:
		return "closed"
	case g.trial:
		return "half_open"
	default:
		return "open"
	}
}

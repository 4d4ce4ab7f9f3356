package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrUnknownWindow    = errors.New("unknown window")
	ErrNoLimits         = errors.New("no limits provided")
	ErrInvalidLimit     = errors.New("invalid limit")
	ErrStoreUnavailable = errors.New("counter store unavailable")
)

// Level is the throttling decision for one request.
type Level string

const (
	LevelOK        Level = "ok"
	LevelWarning   Level = "warning"
	LevelSoftBlock Level = "soft_block"
	LevelExceeded  Level = "exceeded"
)

func (l Level) String() string { return string(l) }

// Allowed reports whether the request may be served.
func (l Level) Allowed() bool { return l != LevelExceeded }

// WindowUsage is the state of one window at decision time.
type WindowUsage struct {
	Window    Window    `json:"window"`
	Count     int64     `json:"count"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	Ratio     float64   `json:"ratio"`
	ResetAt   time.Time `json:"reset_at"`
}

// Details explains a Level.
type Details struct {
	// Window that decided the level; empty for OK.
	Window  Window        `json:"window,omitempty"`
	Windows []WindowUsage `json:"windows,omitempty"`
	// RetryAfter is set on EXCEEDED.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// GraceEndsAt is the soft-block flag expiry (WARNING and SOFT_BLOCK).
	GraceEndsAt       time.Time `json:"grace_ends_at,omitempty"`
	OverSoftThreshold bool      `json:"over_soft_threshold,omitempty"`
	// Degraded is set when the store could not be consulted and the request was let through.
	Degraded bool   `json:"degraded,omitempty"`
	Message  string `json:"message"`
}

// Usage returns the usage of w, or a zero value when the store was not read.
func (d Details) Usage(w Window) WindowUsage {
	for _, u := range d.Windows {
		if u.Window == w {
			return u
		}
	}
	return WindowUsage{Window: w}
}

// Limiter is a multi-window fixed-window limiter with a soft-block grace period.
// It keeps no state of its own: every decision is recomputed from the store.
type Limiter struct {
	store   Store
	tiers   Tiers
	guard   *StoreGuard
	log     *zap.Logger
	now     func() time.Time

	warningThreshold   float64
	softBlockThreshold float64
	gracePeriod        time.Duration
}

type Option func(*Limiter)

func WithLogger(l *zap.Logger) Option {
	return func(lim *Limiter) {
		if l != nil {
			lim.log = l
		}
	}
}

// WithClock replaces time.Now for bucket selection and the store guard.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithThresholds(warning, softBlock float64) Option {
	return func(l *Limiter) {
		if warning > 0 {
			l.warningThreshold = warning
		}
		if softBlock > 0 {
			l.softBlockThreshold = softBlock
		}
	}
}

func WithGracePeriod(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.gracePeriod = d
		}
	}
}

func WithStoreGuard(g *StoreGuard) Option {
	return func(l *Limiter) { l.guard = g }
}

func New(store Store, tiers Tiers, opts ...Option) *Limiter {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	l := &Limiter{
		store:              store,
		tiers:              tiers,
		log:                zap.NewNop(),
		now:                time.Now,
		warningThreshold:   0.80,
		softBlockThreshold: 1.10,
		gracePeriod:        5 * time.Minute,
	}
	for _, o := range opts {
		o(l)
	}
	if l.guard == nil {
		l.guard = NewStoreGuard(3, 15*time.Second)
	}
	l.guard.now = l.now
	l.guard.log = l.log
	return l
}

// call runs fn against the store through the guard.
func (l *Limiter) call(fn func() error) error { return l.guard.Do(fn) }

// Limits returns the profile tier with per-field overrides applied: account
// limits from ctx first, then the custom hash.
func (l *Limiter) Limits(ctx context.Context, subject, profile string) (Tier, error) {
	tier := accountLimits(ctx).apply(l.tiers.Lookup(profile))
	var hash map[string]string
	err := l.call(func() (err error) {
		hash, err = l.store.HGetAll(ctx, CustomKey(subject))
		return err
	})
	if err != nil {
		return tier, err
	}
	tier, bad := applyOverrides(tier, hash)
	if len(bad) > 0 {
		l.log.Warn("ignoring invalid custom limits",
			zap.String("subject", subject), zap.Strings("fields", bad))
	}
	return tier, nil
}

// CheckLimit decides the level for the next request of subject. Windows are
// evaluated minute, hour, day and the first hit wins. A window at or over its
// limit blocks unless its soft-block flag exists; a window past the warning
// ratio yields SOFT_BLOCK when flagged and WARNING (creating the flag) when not.
// Store failures fail open.
func (l *Limiter) CheckLimit(ctx context.Context, subject, profile string) (Level, Details) {
	level, d := l.checkLimit(ctx, subject, profile)
	metrics.RateLimitDecisionsTotal.WithLabelValues(level.String()).Inc()
	return level, d
}

func (l *Limiter) checkLimit(ctx context.Context, subject, profile string) (Level, Details) {
	now := l.now().UTC()

	tier, err := l.Limits(ctx, subject, profile)
	if err != nil {
		return l.failOpen(subject, "limits", err)
	}

	counterKeys := make([]string, len(Windows))
	flagKeys := make([]string, len(Windows))
	for i, w := range Windows {
		counterKeys[i] = CounterKey(subject, w, now)
		flagKeys[i] = SoftBlockKey(subject, w)
	}

	var counts []int64
	var flags []time.Duration
	err = l.call(func() (err error) {
		if counts, err = l.store.Get(ctx, counterKeys...); err != nil {
			return err
		}
		flags, err = l.store.TTL(ctx, flagKeys...)
		return err
	})
	if err != nil {
		return l.failOpen(subject, "counters", err)
	}

	d := Details{Windows: make([]WindowUsage, len(Windows))}
	for i, w := range Windows {
		d.Windows[i] = usage(w, counts[i], tier.Get(w), now)
	}

	for i, u := range d.Windows {
		if u.Count >= u.Limit && flags[i] == 0 {
			d.Window = u.Window
			d.RetryAfter = u.Window.retryAfter()
			d.Message = fmt.Sprintf("rate limit exceeded for %s", u.Window)
			return LevelExceeded, d
		}
	}

	for i, u := range d.Windows {
		if u.Ratio < l.warningThreshold {
			continue
		}
		d.Window = u.Window
		if flags[i] != 0 {
			if flags[i] > 0 {
				d.GraceEndsAt = now.Add(flags[i])
			}
			d.OverSoftThreshold = u.Ratio >= l.softBlockThreshold
			d.Message = fmt.Sprintf("soft block active for %s (grace period)", u.Window)
			return LevelSoftBlock, d
		}
		if _, err := l.ActivateSoftBlock(ctx, subject, u.Window); err != nil {
			l.log.Warn("soft block not activated",
				zap.String("subject", subject), zap.String("window", u.Window.String()), zap.Error(err))
		} else {
			d.GraceEndsAt = now.Add(l.gracePeriod)
		}
		d.Message = fmt.Sprintf("approaching %s limit", u.Window)
		return LevelWarning, d
	}

	d.Message = "rate limit ok"
	return LevelOK, d
}

func (l *Limiter) failOpen(subject, stage string, err error) (Level, Details) {
	l.log.Warn("rate limit check failed open",
		zap.String("subject", subject), zap.String("stage", stage),
		zap.String("store_guard", l.guard.State()), zap.Error(err))
	return LevelOK, Details{Degraded: true, Message: "rate limit check skipped (store unavailable)"}
}

func usage(w Window, count, limit int64, now time.Time) WindowUsage {
	u := WindowUsage{Window: w, Count: count, Limit: limit, ResetAt: w.resetAt(now)}
	if limit > 0 {
		u.Ratio = float64(count) / float64(limit)
	}
	if rem := limit - count; rem > 0 {
		u.Remaining = rem
	}
	return u
}

// IncrementCounter counts one admitted request in every window. Errors are
// logged and swallowed.
func (l *Limiter) IncrementCounter(ctx context.Context, subject string) {
	now := l.now().UTC()
	keys := make([]string, len(Windows))
	ttls := make([]time.Duration, len(Windows))
	for i, w := range Windows {
		keys[i] = CounterKey(subject, w, now)
		ttls[i] = w.counterTTL()
	}
	err := l.call(func() error {
		_, err := l.store.IncrExpire(ctx, keys, ttls)
		return err
	})
	if err != nil {
		l.log.Warn("rate limit increment failed", zap.String("subject", subject), zap.Error(err))
	}
}

// ActivateSoftBlock creates the grace-period flag for window. An existing flag
// is left untouched; created reports whether this call set it.
func (l *Limiter) ActivateSoftBlock(ctx context.Context, subject string, w Window) (created bool, err error) {
	err = l.call(func() (err error) {
		created, err = l.store.SetNX(ctx, SoftBlockKey(subject, w), l.gracePeriod)
		return err
	})
	if err == nil && created {
		l.log.Info("soft block activated", zap.String("subject", subject), zap.String("window", w.String()))
	}
	return created, err
}

// SoftBlockActive reports whether the flag exists and how long it has left.
func (l *Limiter) SoftBlockActive(ctx context.Context, subject string, w Window) (bool, time.Duration, error) {
	var ttls []time.Duration
	err := l.call(func() (err error) {
		ttls, err = l.store.TTL(ctx, SoftBlockKey(subject, w))
		return err
	})
	if err != nil {
		return false, 0, err
	}
	return ttls[0] != 0, ttls[0], nil
}

type ResetResult struct {
	Subject    string `json:"subject"`
	Window     string `json:"window"`
	ResetCount int    `json:"reset_count"`
	Deleted    int64  `json:"deleted"`
}

// ResetLimit deletes the current counters of window ("all" for every window).
// Soft-block flags are not touched.
func (l *Limiter) ResetLimit(ctx context.Context, subject, window string) (ResetResult, error) {
	windows := Windows
	if window != "all" {
		w, err := ParseWindow(window)
		if err != nil {
			return ResetResult{}, err
		}
		windows = []Window{w}
	}

	now := l.now().UTC()
	keys := make([]string, len(windows))
	for i, w := range windows {
		keys[i] = CounterKey(subject, w, now)
	}

	var deleted int64
	err := l.call(func() (err error) {
		deleted, err = l.store.Del(ctx, keys...)
		return err
	})
	if err != nil {
		return ResetResult{}, fmt.Errorf("reset %s/%s: %w", subject, window, err)
	}
	l.log.Info("rate limit reset", zap.String("subject", subject), zap.String("window", window))
	return ResetResult{Subject: subject, Window: window, ResetCount: len(windows), Deleted: deleted}, nil
}

// SetCustomLimits upserts the provided override fields.
func (l *Limiter) SetCustomLimits(ctx context.Context, subject string, c CustomLimits) (CustomLimits, error) {
	if c.Empty() {
		return CustomLimits{}, ErrNoLimits
	}
	fields := c.fields()
	for k, v := range fields {
		if v <= 0 {
			return CustomLimits{}, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidLimit, k, v)
		}
	}
	err := l.call(func() error {
		return l.store.HSet(ctx, CustomKey(subject), fields)
	})
	if err != nil {
		return CustomLimits{}, fmt.Errorf("set custom limits for %s: %w", subject, err)
	}
	l.log.Info("custom limits set", zap.String("subject", subject), zap.Any("limits", fields))
	return c, nil
}

type WindowStats struct {
	Window     Window    `json:"window"`
	Count      int64     `json:"count"`
	Limit      int64     `json:"limit"`
	Percentage float64   `json:"percentage"`
	ResetAt    time.Time `json:"reset_at"`
	SoftBlock  bool      `json:"soft_block"`
}

type Stats struct {
	Subject string        `json:"subject"`
	Profile string        `json:"profile"`
	Windows []WindowStats `json:"windows"`
}

// GetStats reports counts, limits and reset times. It mutates nothing.
func (l *Limiter) GetStats(ctx context.Context, subject, profile string) (Stats, error) {
	now := l.now().UTC()
	tier, err := l.Limits(ctx, subject, profile)
	if err != nil {
		return Stats{}, fmt.Errorf("stats for %s: %w", subject, err)
	}

	counterKeys := make([]string, len(Windows))
	flagKeys := make([]string, len(Windows))
	for i, w := range Windows {
		counterKeys[i] = CounterKey(subject, w, now)
		flagKeys[i] = SoftBlockKey(subject, w)
	}
	var counts []int64
	var flags []time.Duration
	err = l.call(func() (err error) {
		if counts, err = l.store.Get(ctx, counterKeys...); err != nil {
			return err
		}
		flags, err = l.store.TTL(ctx, flagKeys...)
		return err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("stats for %s: %w", subject, err)
	}

	st := Stats{Subject: subject, Profile: profile, Windows: make([]WindowStats, len(Windows))}
	for i, w := range Windows {
		limit := tier.Get(w)
		var pct float64
		if limit > 0 {
			pct = math.Round(float64(counts[i])/float64(limit)*10000) / 100
		}
		st.Windows[i] = WindowStats{
			Window:     w,
			Count:      counts[i],
			Limit:      limit,
			Percentage: pct,
			ResetAt:    w.resetAt(now),
			SoftBlock:  flags[i] != 0,
		}
	}
	return st, nil
}

package ratelimit

import (
	"github.com/alioptr7/the-first-sub000/internal/config"
	"go.uber.org/zap"
)

// TiersFromConfig converts the configured profiles; an empty map yields the defaults.
func TiersFromConfig(profiles map[string]config.TierConfig) Tiers {
	if len(profiles) == 0 {
		return DefaultTiers()
	}
	ts := make(Tiers, len(profiles))
	for name, p := range profiles {
		ts[name] = Tier{Minute: p.Minute, Hour: p.Hour, Day: p.Day}
	}
	return ts
}

// NewFromConfig builds a Limiter with the configured tiers, thresholds and store guard.
func NewFromConfig(store Store, cfg config.RateLimitConfig, log *zap.Logger) *Limiter {
	return New(store, TiersFromConfig(cfg.Profiles),
		WithLogger(log),
		WithThresholds(cfg.WarningThreshold, cfg.SoftBlockThreshold),
		WithGracePeriod(cfg.GracePeriod),
		WithStoreGuard(NewStoreGuard(cfg.BreakerThreshold, cfg.BreakerOpenFor)),
	)
}

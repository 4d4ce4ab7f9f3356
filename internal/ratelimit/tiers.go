package ratelimit

import (
	"context"
	"strconv"
)

// DefaultProfile is used for unknown or empty profile names.
const DefaultProfile = "free"

// Tier holds the ceilings of one profile.
type Tier struct {
	Minute int64 `json:"minute"`
	Hour   int64 `json:"hour"`
	Day    int64 `json:"day"`
}

func (t Tier) Get(w Window) int64 {
	switch w {
	case Minute:
		return t.Minute
	case Hour:
		return t.Hour
	default:
		return t.Day
	}
}

func (t *Tier) set(w Window, v int64) {
	switch w {
	case Minute:
		t.Minute = v
	case Hour:
		t.Hour = v
	default:
		t.Day = v
	}
}

// Tiers maps profile name to its tier.
type Tiers map[string]Tier

func DefaultTiers() Tiers {
	return Tiers{
		"free":       {Minute: 10, Hour: 100, Day: 1000},
		"basic":      {Minute: 30, Hour: 500, Day: 5000},
		"premium":    {Minute: 100, Hour: 2000, Day: 20000},
		"enterprise": {Minute: 500, Hour: 10000, Day: 100000},
	}
}

// Lookup returns the tier for profile, falling back to free.
func (ts Tiers) Lookup(profile string) Tier {
	if t, ok := ts[profile]; ok {
		return t
	}
	if t, ok := ts[DefaultProfile]; ok {
		return t
	}
	return DefaultTiers()[DefaultProfile]
}

// CustomLimits is an admin override; nil fields keep the profile value.
type CustomLimits struct {
	Minute *int64 `json:"minute,omitempty"`
	Hour   *int64 `json:"hour,omitempty"`
	Day    *int64 `json:"day,omitempty"`
}

func (c CustomLimits) Empty() bool {
	return c.Minute == nil && c.Hour == nil && c.Day == nil
}

func (c CustomLimits) fields() map[string]int64 {
	out := make(map[string]int64, 3)
	if c.Minute != nil {
		out[string(Minute)] = *c.Minute
	}
	if c.Hour != nil {
		out[string(Hour)] = *c.Hour
	}
	if c.Day != nil {
		out[string(Day)] = *c.Day
	}
	return out
}

// applyOverrides replaces tier fields present in the custom hash.
// Fields that do not parse as a positive integer are returned as bad.
func applyOverrides(t Tier, hash map[string]string) (Tier, []string) {
	var bad []string
	for _, w := range Windows {
		raw, ok := hash[string(w)]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			bad = append(bad, string(w))
			continue
		}
		t.set(w, v)
	}
	return t, bad
}

type accountLimitsKey struct{}

// WithAccountLimits attaches the limits stored on the subject's user row.
// They replace profile tier fields; the custom hash still wins over them.
func WithAccountLimits(ctx context.Context, c CustomLimits) context.Context {
	if c.Empty() {
		return ctx
	}
	return context.WithValue(ctx, accountLimitsKey{}, c)
}

func accountLimits(ctx context.Context) CustomLimits {
	c, _ := ctx.Value(accountLimitsKey{}).(CustomLimits)
	return c
}

// apply replaces tier fields set to a positive value in c.
func (c CustomLimits) apply(t Tier) Tier {
	for w, v := range map[Window]*int64{Minute: c.Minute, Hour: c.Hour, Day: c.Day} {
		if v != nil && *v > 0 {
			t.set(w, *v)
		}
	}
	return t
}

package ratelimit

import (
	"fmt"
	"time"
)

// Window is one fixed counting period.
type Window string

const (
	Minute Window = "minute"
	Hour   Window = "hour"
	Day    Window = "day"
)

// Windows in evaluation order.
var Windows = []Window{Minute, Hour, Day}

func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case Minute, Hour, Day:
		return Window(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
}

func (w Window) String() string { return string(w) }

func (w Window) bucketLayout() string {
	switch w {
	case Minute:
		return "200601021504"
	case Hour:
		return "2006010215"
	default:
		return "20060102"
	}
}

// counterTTL is slightly longer than the window so stale buckets self-expire.
func (w Window) counterTTL() time.Duration {
	switch w {
	case Minute:
		return 70 * time.Second
	case Hour:
		return 3700 * time.Second
	default:
		return 86500 * time.Second
	}
}

func (w Window) retryAfter() time.Duration {
	if w == Minute {
		return 60 * time.Second
	}
	return 300 * time.Second
}

// resetAt returns the start of the next bucket.
func (w Window) resetAt(now time.Time) time.Time {
	now = now.UTC()
	switch w {
	case Minute:
		return now.Truncate(time.Minute).Add(time.Minute)
	case Hour:
		return now.Truncate(time.Hour).Add(time.Hour)
	default:
		y, m, d := now.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	}
}

const keyPrefix = "rate_limit:"

// CounterKey is rate_limit:{subject}:{window}:{bucket} with a UTC bucket stamp.
func CounterKey(subject string, w Window, now time.Time) string {
	return keyPrefix + subject + ":" + string(w) + ":" + now.UTC().Format(w.bucketLayout())
}

// SoftBlockKey is rate_limit:soft_block:{subject}:{window}.
func SoftBlockKey(subject string, w Window) string {
	return keyPrefix + "soft_block:" + subject + ":" + string(w)
}

// CustomKey is the override hash rate_limit:custom:{subject}.
func CustomKey(subject string) string {
	return keyPrefix + "custom:" + subject
}

package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/alioptr7/the-first-sub000/internal/ratelimit"
	echo "github.com/labstack/echo/v4"
)

// Limiter is the subset of ratelimit.Limiter used on the request path.
type Limiter interface {
	CheckLimit(ctx context.Context, subject, profile string) (ratelimit.Level, ratelimit.Details)
	IncrementCounter(ctx context.Context, subject string)
}

// RateLimitMiddleware applies the multi-window limiter per subject. It
// expects the subject in echo.Context (set by SubjectMiddleware). The
// counters are only incremented when the handler succeeded.
func RateLimitMiddleware(l Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			subject, ok := SubjectFromCtx(c)
			if !ok {
				return next(c)
			}
			ctx := c.Request().Context()

			level, d := l.CheckLimit(ctx, subject, ProfileFromCtx(c))
			setRateLimitHeaders(c, level, d)

			if !level.Allowed() {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":       "rate limit exceeded",
					"level":       level,
					"window":      d.Window,
					"retry_after": secs,
					"remaining":   remaining(d),
					"message":     d.Message,
				})
			}

			if err := next(c); err != nil {
				return err
			}
			if c.Response().Status < http.StatusBadRequest {
				l.IncrementCounter(ctx, subject)
			}
			return nil
		}
	}
}

// setRateLimitHeaders reports the deciding window, or the minute window when
// no window decided.
func setRateLimitHeaders(c echo.Context, level ratelimit.Level, d ratelimit.Details) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Level", level.String())
	if d.Degraded {
		return
	}
	w := d.Window
	if w == "" {
		w = ratelimit.Minute
	}
	u := d.Usage(w)
	if u.Limit > 0 {
		h.Set("X-RateLimit-Limit", strconv.FormatInt(u.Limit, 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(u.Remaining, 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(u.ResetAt.Unix(), 10))
		h.Set("X-RateLimit-Window", string(w))
	}
	if level == ratelimit.LevelWarning || level == ratelimit.LevelSoftBlock {
		h.Set("X-RateLimit-Warning", d.Message)
	}
}

func remaining(d ratelimit.Details) map[ratelimit.Window]int64 {
	out := make(map[ratelimit.Window]int64, len(d.Windows))
	for _, u := range d.Windows {
		out[u.Window] = u.Remaining
	}
	return out
}

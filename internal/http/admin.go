package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/alioptr7/the-first-sub000/internal/cache"
	"github.com/alioptr7/the-first-sub000/internal/config"
	"github.com/alioptr7/the-first-sub000/internal/http/middleware"
	"github.com/alioptr7/the-first-sub000/internal/ratelimit"
	"github.com/alioptr7/the-first-sub000/internal/repository"
	"github.com/alioptr7/the-first-sub000/internal/transfer"
	"github.com/alioptr7/the-first-sub000/internal/worker"
	"github.com/labstack/echo/v4"
)

const HeaderAdminToken = "X-Admin-Token"

// LimitAdmin is the admin part of ratelimit.Limiter.
type LimitAdmin interface {
	ResetLimit(ctx context.Context, subject, window string) (ratelimit.ResetResult, error)
	SetCustomLimits(ctx context.Context, subject string, c ratelimit.CustomLimits) (ratelimit.CustomLimits, error)
	GetStats(ctx context.Context, subject, profile string) (ratelimit.Stats, error)
}

// CacheAdmin is the admin part of cache.ResponseCache.
type CacheAdmin interface {
	Invalidate(ctx context.Context, requestID string) bool
	InvalidateBySubject(ctx context.Context, subjectID string) int
	Clear(ctx context.Context) int
	Stats(ctx context.Context) cache.Stats
}

type adminHandlers struct {
	limits   LimitAdmin
	cache    CacheAdmin
	users    middleware.UserLookup
	batches  repository.CHBatchesRepository // nil when ClickHouse is not configured
	side     *worker.Side                   // nil disables transfer triggers
	sync     *worker.SyncWorker
	transfer config.TransferConfig
}

// AdminTokenMiddleware guards the admin group. An empty token disables it.
func AdminTokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "admin api disabled"})
			}
			got := c.Request().Header.Get(HeaderAdminToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
			}
			return next(c)
		}
	}
}

func (h *adminHandlers) register(g *echo.Group) {
	g.POST("/rate-limits/:subject/reset", h.resetLimits)
	g.PUT("/rate-limits/:subject/custom", h.setCustomLimits)
	g.GET("/rate-limits/:subject/stats", h.stats)

	g.GET("/cache/stats", h.cacheStats)
	g.DELETE("/cache", h.clearCache)
	g.DELETE("/cache/users/:subject", h.invalidateUser)
	g.DELETE("/cache/requests/:id", h.invalidateRequest)

	g.GET("/batches", h.listBatches)
	g.POST("/transfer/:type/export", h.trigger(true))
	g.POST("/transfer/:type/import", h.trigger(false))
}

func (h *adminHandlers) resetLimits(c echo.Context) error {
	window := c.QueryParam("window")
	if window == "" {
		window = "all"
	}
	res, err := h.limits.ResetLimit(c.Request().Context(), c.Param("subject"), window)
	if errors.Is(err, ratelimit.ErrUnknownWindow) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}

func (h *adminHandlers) setCustomLimits(c echo.Context) error {
	var body ratelimit.CustomLimits
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
	}
	subject := c.Param("subject")
	set, err := h.limits.SetCustomLimits(c.Request().Context(), subject, body)
	if errors.Is(err, ratelimit.ErrNoLimits) || errors.Is(err, ratelimit.ErrInvalidLimit) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"subject": subject, "custom_limits": set})
}

func (h *adminHandlers) stats(c echo.Context) error {
	ctx := c.Request().Context()
	subject := c.Param("subject")
	profile := c.QueryParam("profile")
	if h.users != nil {
		if u, err := h.users.GetByID(ctx, subject); err == nil {
			if profile == "" {
				profile = u.ProfileType
			}
			ctx = ratelimit.WithAccountLimits(ctx, middleware.AccountLimits(u))
		}
	}
	st, err := h.limits.GetStats(ctx, subject, profile)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, st)
}

func (h *adminHandlers) cacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cache.Stats(c.Request().Context()))
}

func (h *adminHandlers) clearCache(c echo.Context) error {
	n := h.cache.Clear(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}

func (h *adminHandlers) invalidateUser(c echo.Context) error {
	n := h.cache.InvalidateBySubject(c.Request().Context(), c.Param("subject"))
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}

func (h *adminHandlers) invalidateRequest(c echo.Context) error {
	ok := h.cache.Invalidate(c.Request().Context(), c.Param("id"))
	return c.JSON(http.StatusOK, map[string]bool{"deleted": ok})
}

func (h *adminHandlers) listBatches(c echo.Context) error {
	if h.batches == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "batch history not configured"})
	}
	f := repository.BatchFilter{
		Direction: strings.TrimSpace(c.QueryParam("direction")),
		Kind:      strings.TrimSpace(c.QueryParam("type")),
		Status:    strings.TrimSpace(c.QueryParam("status")),
	}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}

	rows, err := h.batches.ListBatches(c.Request().Context(), f)
	if err != nil {
		c.Logger().Errorf("clickhouse list failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":   len(rows),
		"results": rows,
	})
}

// trigger runs one export or import of :type now, without retries.
func (h *adminHandlers) trigger(export bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.side == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "transfer not configured"})
		}
		kind, err := transfer.ParseKind(c.Param("type"))
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		var job worker.Job
		if export {
			job, err = h.side.ExportJobFor(kind, h.transfer)
		} else {
			job, err = h.side.ImportJobFor(kind, h.transfer)
		}
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}

		res := h.sync.RunOnce(c.Request().Context(), job)
		body := map[string]any{
			"job":     job.Name,
			"outcome": res.Outcome.String(),
			"summary": res.Summary,
		}
		if res.Err != nil {
			body["error"] = res.Err.Error()
		}
		status := http.StatusOK
		if res.Outcome != worker.OutcomeOK {
			status = http.StatusBadGateway
		}
		return c.JSON(status, body)
	}
}

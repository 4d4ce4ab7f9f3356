package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alioptr7/the-first-sub000/internal/http/middleware"
	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/alioptr7/the-first-sub000/internal/service/requests"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// RequestService is the request-side service used by the handlers.
type RequestService interface {
	Submit(ctx context.Context, sub requests.Submission) (model.Request, error)
	Result(ctx context.Context, requestID string) (model.CachedResponse, error)
}

func submitRequestHandler(svc RequestService) echo.HandlerFunc {
	return func(c echo.Context) error {
		subject, ok := middleware.SubjectFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var sub requests.Submission
		if err := c.Bind(&sub); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		sub.UserID = subject
		sub.QueryType = strings.TrimSpace(sub.QueryType)

		req, err := svc.Submit(c.Request().Context(), sub)
		if err != nil {
			var invalid *requests.InvalidRequestError
			if errors.As(err, &invalid) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": invalid.Error()})
			}
			log.Errorf("submit request failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"id":         req.ID,
			"status":     req.Status,
			"priority":   req.Priority,
			"created_at": req.CreatedAt,
		})
	}
}

func getResultHandler(svc RequestService) echo.HandlerFunc {
	return func(c echo.Context) error {
		subject, ok := middleware.SubjectFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		id := strings.TrimSpace(c.Param("id"))

		resp, err := svc.Result(c.Request().Context(), id)
		if errors.Is(err, requests.ErrNotAvailable) {
			return c.JSON(http.StatusAccepted, map[string]string{
				"request_id": id,
				"status":     "pending",
				"message":    "not available yet",
			})
		}
		if err != nil {
			log.Errorf("load result %s failed: %v", id, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if resp.SubjectID != "" && resp.SubjectID != subject {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		return c.JSON(http.StatusOK, resp)
	}
}

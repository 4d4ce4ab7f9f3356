package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/alioptr7/the-first-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// IncomingStore is the response-side hook for the external query executor:
// it reads imported requests and records their results for export.
type IncomingStore interface {
	GetByID(ctx context.Context, id string) (*model.IncomingRequest, error)
}

// ResultWriter stores one result per request; inserted is false when the
// request already has one.
type ResultWriter interface {
	Insert(ctx context.Context, q model.QueryResult) (inserted bool, err error)
}

type resultBody struct {
	Status          model.ResultStatus `json:"status"`
	ResultData      json.RawMessage    `json:"result_data"`
	ErrorMessage    string             `json:"error_message"`
	RecordCount     int                `json:"record_count"`
	ExecutionTimeMs int64              `json:"execution_time_ms"`
}

type executorHandlers struct {
	incoming IncomingStore
	results  ResultWriter
	now      func() time.Time
}

func (h *executorHandlers) register(g *echo.Group) {
	g.GET("/incoming/:id", h.getIncoming)
	g.POST("/incoming/:id/result", h.recordResult)
}

func (h *executorHandlers) getIncoming(c echo.Context) error {
	req, err := h.incoming.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "request not found"})
	}
	if err != nil {
		c.Logger().Errorf("get incoming request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":           req.ID,
		"user_id":      req.UserID,
		"query_type":   req.QueryType,
		"query_params": json.RawMessage(req.QueryParams),
		"priority":     req.Priority,
		"status":       req.Status,
		"created_at":   req.CreatedAt,
		"received_at":  req.ReceivedAt,
	})
}

// recordResult stores the outcome of an executed request; the results export
// picks it up on its next run.
func (h *executorHandlers) recordResult(c echo.Context) error {
	ctx := c.Request().Context()
	requestID := c.Param("id")

	var body resultBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
	}
	if _, err := h.incoming.GetByID(ctx, requestID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "request not found"})
		}
		c.Logger().Errorf("get incoming request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	rec := model.ResultRecord{
		ID:              uuid.NewString(),
		RequestID:       requestID,
		Status:          body.Status,
		ResultData:      body.ResultData,
		ErrorMessage:    body.ErrorMessage,
		RecordCount:     body.RecordCount,
		ExecutionTimeMs: body.ExecutionTimeMs,
		CompletedAt:     h.now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	row := model.QueryResult{
		ID:              rec.ID,
		RequestID:       rec.RequestID,
		Status:          rec.Status,
		ResultData:      []byte(rec.ResultData),
		RecordCount:     rec.RecordCount,
		ExecutionTimeMs: rec.ExecutionTimeMs,
		CompletedAt:     rec.CompletedAt,
	}
	if rec.ErrorMessage != "" {
		msg := rec.ErrorMessage
		row.ErrorMessage = &msg
	}
	inserted, err := h.results.Insert(ctx, row)
	if err != nil {
		c.Logger().Errorf("insert query result failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	if !inserted {
		return c.JSON(http.StatusConflict, map[string]string{"error": "result already recorded"})
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": row.ID, "request_id": requestID})
}

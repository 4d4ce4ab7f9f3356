package requests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/alioptr7/the-first-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const DefaultPriority = 5

var ErrNotAvailable = errors.New("result not available yet")

// InvalidRequestError wraps a validation failure of a submitted request.
type InvalidRequestError struct {
	Err error
}

func (e *InvalidRequestError) Error() string { return "invalid request: " + e.Err.Error() }
func (e *InvalidRequestError) Unwrap() error { return e.Err }

type Submission struct {
	UserID      string          `json:"-"`
	QueryType   string          `json:"query_type"`
	QueryParams json.RawMessage `json:"query_params"`
	Priority    int             `json:"priority"`
}

// ResultCache is the subset of cache.ResponseCache used on the read path.
type ResultCache interface {
	Get(ctx context.Context, requestID string) (model.CachedResponse, bool)
	Set(ctx context.Context, requestID string, resp model.CachedResponse, ttl time.Duration) bool
}

// RequestWriter stores submitted requests.
type RequestWriter interface {
	Insert(ctx context.Context, tx *sqlx.Tx, m model.Request) error
}

// ResponseReader loads imported results.
type ResponseReader interface {
	GetByRequestID(ctx context.Context, requestID string) (*model.Response, error)
}

// Service is the request-side entry point: it stores submitted requests for
// export and serves their results once imported.
type Service struct {
	requests  RequestWriter
	responses ResponseReader
	cache     ResultCache
	log       *zap.Logger

	now func() time.Time
}

func New(
	requestsRepo RequestWriter,
	responses ResponseReader,
	cache ResultCache,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		requests:  requestsRepo,
		responses: responses,
		cache:     cache,
		log:       log,
		now:       time.Now,
	}
}

// Build validates a submission and turns it into a pending request row.
func (s *Service) Build(sub Submission) (model.Request, error) {
	if sub.Priority == 0 {
		sub.Priority = DefaultPriority
	}
	if len(sub.QueryParams) == 0 {
		sub.QueryParams = json.RawMessage(`{}`)
	}
	req := model.Request{
		ID:          uuid.NewString(),
		UserID:      sub.UserID,
		QueryType:   sub.QueryType,
		QueryParams: []byte(sub.QueryParams),
		Priority:    sub.Priority,
		Status:      model.RequestPending,
		CreatedAt:   s.now().UTC(),
	}
	req.UpdatedAt = req.CreatedAt
	if err := req.Record().Validate(); err != nil {
		return model.Request{}, &InvalidRequestError{Err: err}
	}
	return req, nil
}

// Submit stores a pending request. The exporter picks the row up on its
// next run.
func (s *Service) Submit(ctx context.Context, sub Submission) (model.Request, error) {
	req, err := s.Build(sub)
	if err != nil {
		return model.Request{}, err
	}
	if err := s.requests.Insert(ctx, nil, req); err != nil {
		return model.Request{}, fmt.Errorf("insert request: %w", err)
	}

	s.log.Info("request submitted",
		zap.String("request_id", req.ID),
		zap.String("user_id", req.UserID),
		zap.String("query_type", req.QueryType),
		zap.Int("priority", req.Priority))
	return req, nil
}

// Result returns the response for requestID, reading through the cache.
func (s *Service) Result(ctx context.Context, requestID string) (model.CachedResponse, error) {
	if resp, ok := s.cache.Get(ctx, requestID); ok {
		return resp, nil
	}

	row, err := s.responses.GetByRequestID(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.CachedResponse{}, ErrNotAvailable
	}
	if err != nil {
		return model.CachedResponse{}, fmt.Errorf("load response: %w", err)
	}

	resp := row.Cached(s.now())
	s.cache.Set(ctx, requestID, resp, 0)
	return resp, nil
}

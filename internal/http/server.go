package http

import (
	"context"
	"net/http"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/cache"
	"github.com/alioptr7/the-first-sub000/internal/config"
	"github.com/alioptr7/the-first-sub000/internal/http/middleware"
	"github.com/alioptr7/the-first-sub000/internal/metrics"
	"github.com/alioptr7/the-first-sub000/internal/ratelimit"
	"github.com/alioptr7/the-first-sub000/internal/repository"
	"github.com/alioptr7/the-first-sub000/internal/service/requests"
	"github.com/alioptr7/the-first-sub000/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter is what the request path and the admin surface need from ratelimit.Limiter.
type Limiter interface {
	middleware.Limiter
	LimitAdmin
}

// Deps are the collaborators of the router.
type Deps struct {
	Users    middleware.UserLookup
	Limiter  Limiter
	Requests RequestService // nil on the response side
	Cache    CacheAdmin
	Batches  repository.CHBatchesRepository
	Side     *worker.Side
	Sync     *worker.SyncWorker
	Transfer config.TransferConfig

	// response side only
	Incoming IncomingStore
	Results  ResultWriter

	AdminToken string
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds redis.UniversalClient, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// repos (MySQL)
	usersRepo := repository.NewUsersRepository(mysqlDB)
	requestsRepo := repository.NewRequestsRepository(mysqlDB)
	responsesRepo := repository.NewResponsesRepository(mysqlDB)

	// repos (ClickHouse)
	var chBatches repository.CHBatchesRepository
	if clickhouseDB != nil {
		chBatches = repository.NewCHBatchesRepository(clickhouseDB)
	}

	// redis-backed components
	responseCache := cache.NewResponseCache(rds, cfg.Cache.DefaultTTL, log.Named("cache"), cache.WithKeyPrefix(cfg.Cache.KeyPrefix))
	limiter := ratelimit.NewFromConfig(ratelimit.NewRedisStore(rds), cfg.RateLimit, log.Named("ratelimit"))

	side, err := worker.BuildSide(worker.SideDeps{Config: cfg, DB: mysqlDB, Cache: responseCache, Log: log})
	if err != nil {
		return nil, err
	}

	d := Deps{
		Users:      usersRepo,
		Limiter:    limiter,
		Cache:      responseCache,
		Batches:    chBatches,
		Side:       side,
		Sync:       worker.NewSyncWorker(nil, worker.RetryPolicy{MaxAttempts: 1}, log.Named("admin")),
		Transfer:   cfg.Transfer,
		AdminToken: cfg.Admin.Token,
	}
	switch cfg.Network.Side {
	case config.SideRequest:
		d.Requests = requests.New(requestsRepo, responsesRepo, responseCache, log.Named("requests"))
	case config.SideResponse:
		d.Incoming = repository.NewIncomingRequestsRepository(mysqlDB)
		d.Results = repository.NewQueryResultsRepository(mysqlDB)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)
	e := NewRouter(d)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{e: e, log: log}, nil
}

// NewRouter builds the echo instance with every route of d.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// request path
	if d.Requests != nil {
		v1 := e.Group("/v1", middleware.SubjectMiddleware(d.Users))
		v1.POST("/requests", submitRequestHandler(d.Requests), middleware.RateLimitMiddleware(d.Limiter))
		v1.GET("/requests/:id/result", getResultHandler(d.Requests))
	}

	// admin
	admin := &adminHandlers{
		limits:   d.Limiter,
		cache:    d.Cache,
		users:    d.Users,
		batches:  d.Batches,
		side:     d.Side,
		sync:     d.Sync,
		transfer: d.Transfer,
	}
	if admin.sync == nil {
		admin.sync = worker.NewSyncWorker(nil, worker.RetryPolicy{MaxAttempts: 1}, nil)
	}
	adminGroup := e.Group("/admin", AdminTokenMiddleware(d.AdminToken))
	admin.register(adminGroup)
	if d.Incoming != nil && d.Results != nil {
		exec := &executorHandlers{incoming: d.Incoming, results: d.Results, now: time.Now}
		exec.register(adminGroup)
	}

	return e
}

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

package worker

import (
	"fmt"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/cache"
	"github.com/alioptr7/the-first-sub000/internal/config"
	"github.com/alioptr7/the-first-sub000/internal/db"
	"github.com/alioptr7/the-first-sub000/internal/kafka"
	"github.com/alioptr7/the-first-sub000/internal/logger"
	"github.com/alioptr7/the-first-sub000/internal/metrics"
	"github.com/alioptr7/the-first-sub000/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	// attach subcommands
	cmd.AddCommand(syncCmd)
	cmd.AddCommand(exportCmd)
	cmd.AddCommand(importCmd)
	cmd.AddCommand(watchCmd)

	return cmd
}

// env is everything a worker subcommand needs for one side.
type env struct {
	cfg  config.Config
	log  *zap.Logger
	db   *sqlx.DB
	rds  *redis.Client
	pub  *kafka.Publisher
	side *worker.Side
}

func (e *env) retry() worker.RetryPolicy {
	return worker.RetryPolicy{MaxAttempts: e.cfg.Transfer.Retry.MaxAttempts, Backoff: e.cfg.Transfer.Retry.Backoff}
}

func (e *env) kafkaConfig() kafka.Config {
	k := e.cfg.Kafka
	return kafka.Config{
		Brokers:        k.Brokers,
		Topic:          k.Topic,
		GroupID:        k.GroupID,
		MinBytes:       k.MinBytes,
		MaxBytes:       k.MaxBytes,
		CommitInterval: time.Duration(k.CommitInterval) * time.Millisecond,
	}
}

func (e *env) Close() {
	if e.pub != nil {
		_ = e.pub.Close()
	}
	if e.rds != nil {
		_ = e.rds.Close()
	}
	if e.db != nil {
		_ = e.db.Close()
	}
	_ = e.log.Sync()
}

// setup loads the config named by the root --config flag and wires the side.
func setup(cmd *cobra.Command) (*env, error) {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logger.Init(cfg.Log.Level, cfg.Log.Encoding).Named("worker")
	metrics.MustRegister(prometheus.DefaultRegisterer)

	e := &env{cfg: cfg, log: log}
	e.db, err = db.NewMySQLConnection(cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}

	deps := worker.SideDeps{Config: cfg, DB: e.db, Log: log}

	// results imported on the request side drop their cached entries
	if cfg.Network.Side == config.SideRequest {
		e.rds, err = db.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, cache invalidation degraded", zap.Error(err))
		}
		deps.Cache = cache.NewResponseCache(e.rds, cfg.Cache.DefaultTTL, log.Named("cache"), cache.WithKeyPrefix(cfg.Cache.KeyPrefix))
	}

	if cfg.Kafka.Enabled {
		e.pub = kafka.NewPublisher(e.kafkaConfig())
		deps.Notifier = e.pub
	}

	e.side, err = worker.BuildSide(deps)
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

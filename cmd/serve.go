package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/db"
	httpSrv "github.com/alioptr7/the-first-sub000/internal/http"
	"github.com/alioptr7/the-first-sub000/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server (request path + admin API)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Log
		defer func() { _ = log.Sync() }()

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		// limiter and cache fail open, so a redis outage at boot is not fatal
		redisClient, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, rate limiting and cache degraded", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()

		var chDB *sqlx.DB
		if strings.TrimSpace(cfg.ClickHouse.DSN) != "" {
			chDB, err = db.NewClickHouseConnection(cfg.ClickHouse)
			if err != nil {
				log.Warn("clickhouse unavailable, batch history disabled", zap.Error(err))
				chDB = nil
			} else {
				defer func() { _ = chDB.Close() }()
			}
		}

		server, err := httpSrv.NewServer(cfg, mysqlDB, chDB, redisClient, log.Named("http"))
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting http", zap.String("addr", cfg.HTTP.Addr), zap.String("side", cfg.Network.Side))
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil {
				log.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}

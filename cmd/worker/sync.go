package worker

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var metricsAddr string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run every export and import of this side on its interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if metricsAddr != "" {
			srv := serveMetrics(metricsAddr, e.log)
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
		}

		w := worker.NewSyncWorker(e.side.Jobs(e.cfg.Transfer), e.retry(), e.log.Named("sync"))
		e.log.Info("sync worker started", zap.String("side", e.side.Name), zap.Int("jobs", len(w.Jobs)))
		err = w.Run(ctx)
		e.log.Info("sync worker stopped")
		return err
	},
}

func init() {
	syncCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address (disabled when empty)")
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server exited", zap.Error(err))
		}
	}()
	return srv
}

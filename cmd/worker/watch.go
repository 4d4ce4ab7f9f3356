package worker

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/alioptr7/the-first-sub000/internal/kafka"
	"github.com/alioptr7/the-first-sub000/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import batches as soon as their kafka announcement arrives",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if !e.cfg.Kafka.Enabled {
			return errors.New("watch needs kafka.enabled=true")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		jobs := e.side.ImportJobs(e.cfg.Transfer)
		sw := worker.NewSyncWorker(nil, e.retry(), e.log.Named("watch"))

		// drain whatever arrived while nobody was listening
		for _, j := range jobs {
			sw.RunOnce(ctx, j)
		}

		events := kafka.NewBatchEvents(e.kafkaConfig())
		defer events.Close()

		e.log.Info("watching batch events", zap.String("topic", e.cfg.Kafka.Topic), zap.String("group", e.cfg.Kafka.GroupID))
		w := worker.NewWatcher(events, jobs, sw, e.log.Named("watch"))
		w.Inbox = e.side.Importer.Layout.Inbox
		return w.Run(ctx)
	},
}

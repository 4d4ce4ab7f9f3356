package worker

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/alioptr7/the-first-sub000/internal/config"
	"github.com/alioptr7/the-first-sub000/internal/transfer"
	"github.com/alioptr7/the-first-sub000/internal/worker"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:       "export <type>",
	Short:     "Export one batch of the given type and exit",
	Args:      cobra.ExactArgs(1),
	ValidArgs: kindNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, args[0], (*worker.Side).ExportJobFor)
	},
}

var importCmd = &cobra.Command{
	Use:       "import <type>",
	Short:     "Import every waiting file of the given type and exit",
	Args:      cobra.ExactArgs(1),
	ValidArgs: kindNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, args[0], (*worker.Side).ImportJobFor)
	},
}

func kindNames() []string {
	out := make([]string, len(transfer.Kinds))
	for i, k := range transfer.Kinds {
		out[i] = k.String()
	}
	return out
}

type jobFor func(s *worker.Side, k transfer.Kind, tc config.TransferConfig) (worker.Job, error)

// runOnce runs a single job with the configured retries; a non-OK outcome
// becomes the command error so the process exits non-zero.
func runOnce(cmd *cobra.Command, name string, pick jobFor) error {
	kind, err := transfer.ParseKind(name)
	if err != nil {
		return err
	}
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	job, err := pick(e.side, kind, e.cfg.Transfer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := worker.NewSyncWorker(nil, e.retry(), e.log).RunOnce(ctx, job)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", job.Name, res.Outcome, res.Summary)
	if res.Outcome != worker.OutcomeOK {
		if res.Err != nil {
			return fmt.Errorf("%s: %w", job.Name, res.Err)
		}
		return fmt.Errorf("%s: %s", job.Name, res.Outcome)
	}
	return nil
}

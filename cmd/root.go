package cmd

import (
	"fmt"
	"os"

	"github.com/alioptr7/the-first-sub000/cmd/worker"
	"github.com/alioptr7/the-first-sub000/internal/config"
	"github.com/alioptr7/the-first-sub000/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "syncgw",
		Short: "Air-gapped query platform sync gateway",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}

// loadConfig loads and validates the config and installs the process logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Encoding)
	return cfg, nil
}

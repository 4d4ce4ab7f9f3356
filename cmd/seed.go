package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/db"
	"github.com/alioptr7/the-first-sub000/internal/logger"
	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/alioptr7/the-first-sub000/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo users and settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		users := repository.NewUsersRepository(sqlDB)
		for _, u := range demoUsers() {
			inserted, err := users.Upsert(ctx, u)
			if err != nil {
				return fmt.Errorf("seed user %q: %w", u.Username, err)
			}
			logger.Log.Info("seeded user", zap.String("username", u.Username), zap.Bool("inserted", inserted))
		}

		settings := repository.NewSettingsRepository(sqlDB)
		for _, s := range demoSettings() {
			if _, err := settings.Upsert(ctx, s); err != nil {
				return fmt.Errorf("seed setting %q: %w", s.Key, err)
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), ">> Seed completed")
		return nil
	},
}

func int64ptr(i int64) *int64 { return &i }

// demoUsers returns one user per profile plus an inactive one, with fixed ids
// so reseeding is idempotent.
func demoUsers() []model.UserRecord {
	return []model.UserRecord{
		{ID: "6f1c6a52-0b8e-4c3f-9a57-1d2f0c6b0001", Username: "free-demo", Email: "free@example.com", ProfileType: "free", IsActive: true},
		{ID: "6f1c6a52-0b8e-4c3f-9a57-1d2f0c6b0002", Username: "basic-demo", Email: "basic@example.com", ProfileType: "basic", IsActive: true},
		{ID: "6f1c6a52-0b8e-4c3f-9a57-1d2f0c6b0003", Username: "premium-demo", Email: "premium@example.com", ProfileType: "premium", IsActive: true},
		{
			ID: "6f1c6a52-0b8e-4c3f-9a57-1d2f0c6b0004", Username: "enterprise-demo", Email: "enterprise@example.com",
			ProfileType: "enterprise", IsActive: true,
			RateLimits: model.RateLimits{Minute: int64ptr(2000)},
		},
		{ID: "6f1c6a52-0b8e-4c3f-9a57-1d2f0c6b0005", Username: "suspended-demo", Email: "suspended@example.com", ProfileType: "basic", IsActive: false},
	}
}

func demoSettings() []model.SettingRecord {
	return []model.SettingRecord{
		{Key: "maintenance_mode", Value: "false", Description: "reject new requests when true"},
		{Key: "max_query_size", Value: "10000", Description: "largest result set returned per request"},
		{Key: "result_retention_days", Value: "30"},
	}
}

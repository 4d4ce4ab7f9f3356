package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alioptr7/the-first-sub000/internal/db"
	"github.com/spf13/cobra"
)

var migrateClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		sqlPath := filepath.Join("migrations", "001_init.sql")
		sqlBytes, err := os.ReadFile(sqlPath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", sqlPath, err)
		}

		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return fmt.Errorf("disable fk checks: %w", err)
		}
		if _, err := sqlDB.Exec(string(sqlBytes)); err != nil {
			_, _ = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
			return fmt.Errorf("exec migration: %w", err)
		}
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
			return fmt.Errorf("enable fk checks: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ">> MySQL migration complete")

		if !migrateClickHouse {
			return nil
		}

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chDB.Close()

		chPath := filepath.Join("migrations", "clickhouse", "001_transfer_batches.sql")
		chBytes, err := os.ReadFile(chPath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", chPath, err)
		}
		// clickhouse takes one statement per query
		for _, stmt := range splitStatements(string(chBytes)) {
			if _, err := chDB.Exec(stmt); err != nil {
				return fmt.Errorf("exec clickhouse migration: %w", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), ">> ClickHouse migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateClickHouse, "clickhouse", false, "also create the ClickHouse batch history tables")
}

func splitStatements(src string) []string {
	var out []string
	for _, s := range strings.Split(src, ";") {
		var lines []string
		for _, l := range strings.Split(s, "\n") {
			if strings.HasPrefix(strings.TrimSpace(l), "--") {
				continue
			}
			lines = append(lines, l)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

package db

import (
	"context"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/alioptr7/the-first-sub000/internal/config"
	"github.com/jmoiron/sqlx"
)

// NewClickHouseConnection opens the batch-history read store.
// DSN e.g. clickhouse://default:@localhost:9000/syncgw?dial_timeout=5s&compress=true
func NewClickHouseConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	db, err := sqlx.Open("clickhouse", cfg.DSN)
	if err != nil {
		return nil, err
	}
	applyPool(db, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

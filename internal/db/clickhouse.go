package db

import (
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmehdipour/realestate-billing/internal/config"
	"github.com/jmoiron/sqlx"
)

// OpenClickHouse opens the lifecycle event log,
// e.g. clickhouse://default:@localhost:9000/reb?dial_timeout=5s
func OpenClickHouse(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("empty ClickHouse DSN")
	}
	db, err := sqlx.Open("clickhouse", cfg.DSN)
	if err != nil {
		return nil, err
	}
	return ready(db, cfg, 3*time.Second)
}

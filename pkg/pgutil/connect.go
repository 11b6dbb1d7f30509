package pgutil

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/chainsafe/evm-indexer/pkg/config"
)

const (
	applicationName        = "evm-indexer"
	defaultMaxOpenConns    = 16
	defaultConnectTimeout  = 10 * time.Second
	defaultConnMaxIdleTime = 5 * time.Minute
)

// ConnectDB opens a pooled bun connection and verifies it with a ping.
// The connection pool must leave room for the ingestion lease, which pins one
// connection for the lifetime of the process.
func ConnectDB(cfg *config.DatabaseConfig) (*bun.DB, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}

	// Functional options escape special characters in credentials
	sqldb := sql.OpenDB(pgdriver.NewConnector(connectorOptions(cfg, timeout)...))
	sqldb.SetMaxOpenConns(maxOpen)
	sqldb.SetMaxIdleConns(maxOpen / 2)
	sqldb.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	db := bun.NewDB(sqldb, pgdialect.New())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database %s at %s:%d: %w", cfg.Database, cfg.Host, cfg.Port, err)
	}

	log.Printf("Connected to database %s (max_open_conns=%d)", cfg.Database, maxOpen)
	return db, nil
}

func connectorOptions(cfg *config.DatabaseConfig, timeout time.Duration) []pgdriver.Option {
	return []pgdriver.Option{
		pgdriver.WithNetwork("tcp"),
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.Database),
		pgdriver.WithInsecure(cfg.SSLMode == "" || cfg.SSLMode == "disable"),
		pgdriver.WithApplicationName(applicationName),
		pgdriver.WithDialTimeout(timeout),
	}
}

// Package storage opens the SQL and Redis connections the authcore binary runs on.
package storage

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

const pingTimeout = 3 * time.Second

// OpenSQL connects to dsn with driver "pgx" or "sqlite" and verifies the
// connection. SQLite is limited to one open connection.
func OpenSQL(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case "pgx", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
		return db, nil
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// RedisConfig describes a single Redis node.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// OpenRedis returns a client for cfg after a successful PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

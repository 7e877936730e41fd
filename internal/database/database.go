// Package database provides PostgreSQL connection management and
// schema bootstrap using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/accessly-app/accessly/internal/config"
)

// NewPool creates and validates a pgxpool connection pool.
// It retries a few times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				break
			} else {
				err = pingErr
			}
			pool.Close()
		}
		log.Warn("db connect failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return pool, nil
}

// schema is idempotent DDL for the events table and the registration
// ledger. The unique index on (user_id, event_id) backs the
// one-registration-per-user invariant; the admitted count is always
// derived from ledger rows, never stored on the event.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          UUID PRIMARY KEY,
	title       TEXT        NOT NULL,
	description TEXT        NOT NULL DEFAULT '',
	location    TEXT        NOT NULL DEFAULT '',
	start_time  TIMESTAMPTZ NOT NULL,
	end_time    TIMESTAMPTZ NOT NULL,
	capacity    INTEGER     NOT NULL CHECK (capacity > 0),
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS registrations (
	id            UUID PRIMARY KEY,
	user_id       TEXT        NOT NULL,
	event_id      UUID        NOT NULL REFERENCES events(id),
	created_at    TIMESTAMPTZ NOT NULL,
	checked_in    BOOLEAN     NOT NULL DEFAULT FALSE,
	check_in_time TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS registrations_user_event_idx
	ON registrations (user_id, event_id);

CREATE INDEX IF NOT EXISTS registrations_event_idx
	ON registrations (event_id);

CREATE INDEX IF NOT EXISTS registrations_user_created_idx
	ON registrations (user_id, created_at DESC);
`

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Package database implements the subscription and stream message
// repositories on PostgreSQL via pgx.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id               UUID PRIMARY KEY,
	platform         TEXT NOT NULL,
	guild_id         TEXT NOT NULL,
	broadcaster_id   TEXT NOT NULL,
	name             TEXT NOT NULL,
	display_name     TEXT NOT NULL DEFAULT '',
	channel_id       TEXT NOT NULL,
	role_id          TEXT NOT NULL DEFAULT '',
	message_template TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (platform, guild_id, name)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_broadcaster
	ON subscriptions (platform, broadcaster_id);

CREATE TABLE IF NOT EXISTS multistream_links (
	subscription_id UUID PRIMARY KEY REFERENCES subscriptions (id) ON DELETE CASCADE,
	counterpart_id  UUID NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stream_messages (
	id              UUID PRIMARY KEY,
	subscription_id UUID NOT NULL,
	guild_id        TEXT NOT NULL,
	channel_id      TEXT NOT NULL,
	message_id      TEXT NOT NULL DEFAULT '',
	twitch_leg      JSONB,
	kick_leg        JSONB,
	archived        BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_stream_messages_open
	ON stream_messages (subscription_id) WHERE NOT archived;
`

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// RunMigrations applies the schema. Statements are idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

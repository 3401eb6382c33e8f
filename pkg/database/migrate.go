package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied idempotently at startup. tracking_code carries the unique
// constraint that code generation relies on to detect collisions.
const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS profiles (
	id                 UUID PRIMARY KEY,
	email              TEXT NOT NULL DEFAULT '',
	name               TEXT NOT NULL DEFAULT '',
	tracking_code      TEXT,
	is_tracking_active BOOLEAN NOT NULL DEFAULT true,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT profiles_tracking_code_key UNIQUE (tracking_code)
);

CREATE TABLE IF NOT EXISTS tracking_relationships (
	id         UUID PRIMARY KEY,
	tracker_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	tracked_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT tracking_relationships_pair_key UNIQUE (tracker_id, tracked_id),
	CONSTRAINT tracking_relationships_no_self CHECK (tracker_id <> tracked_id)
);

CREATE INDEX IF NOT EXISTS idx_tracking_relationships_tracker ON tracking_relationships(tracker_id);

CREATE TABLE IF NOT EXISTS user_locations (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	accuracy   DOUBLE PRECISION,
	address    TEXT NOT NULL DEFAULT '',
	timestamp  TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_user_locations_user_ts ON user_locations(user_id, timestamp DESC);
`

// Migrate applies the schema
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

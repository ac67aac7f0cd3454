package postgres

import (
	"context"

	"github.com/dmitrymomot/agentpay/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS payment_plans (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	payment_type        TEXT NOT NULL,
	price               DOUBLE PRECISION NOT NULL,
	currency            TEXT NOT NULL,
	price_per_request   DOUBLE PRECISION,
	billing_period      TEXT,
	requests_per_period INTEGER,
	free_requests       INTEGER NOT NULL DEFAULT 0,
	features            TEXT[] NOT NULL DEFAULT '{}',
	is_active           BOOLEAN NOT NULL DEFAULT TRUE,
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	plan_id              TEXT NOT NULL REFERENCES payment_plans (id),
	status               TEXT NOT NULL,
	start_date           TIMESTAMPTZ NOT NULL,
	end_date             TIMESTAMPTZ,
	current_period_start TIMESTAMPTZ,
	current_period_end   TIMESTAMPTZ,
	usage_count          INTEGER NOT NULL DEFAULT 0,
	metadata             JSONB
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions (user_id, status);

CREATE TABLE IF NOT EXISTS payment_transactions (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	amount       DOUBLE PRECISION NOT NULL,
	currency     TEXT NOT NULL,
	provider     TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	metadata     JSONB
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON payment_transactions (user_id, status, created_at DESC);

CREATE TABLE IF NOT EXISTS usage_records (
	id        TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL,
	feature   TEXT NOT NULL,
	ts        TIMESTAMPTZ NOT NULL,
	cost      DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency  TEXT NOT NULL DEFAULT '',
	metadata  JSONB
);
CREATE INDEX IF NOT EXISTS idx_usage_user_ts ON usage_records (user_id, ts);
`

// EnsureSchema creates the tables and indexes when missing. Idempotent.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return storage.NewError(storageType, "ensure_schema", "", err)
	}
	return nil
}

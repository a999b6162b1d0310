package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Statements are idempotent so restarts
// are safe without a separate migration tool.
const schema = `
CREATE TABLE IF NOT EXISTS parents (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pin_credentials (
	parent_id UUID PRIMARY KEY REFERENCES parents(id) ON DELETE CASCADE,
	pin_hash TEXT NOT NULL,
	version INT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS children (
	id UUID PRIMARY KEY,
	parent_id UUID NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
	display_name TEXT NOT NULL,
	age_group TEXT NOT NULL DEFAULT 'kid',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS points_accounts (
	child_id UUID PRIMARY KEY REFERENCES children(id) ON DELETE CASCADE,
	balance INT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	lifetime_earned INT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS points_transactions (
	id UUID PRIMARY KEY,
	child_id UUID NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	delta INT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	source_type TEXT NOT NULL,
	source_id UUID,
	balance_after INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_points_transactions_child ON points_transactions (child_id, created_at DESC);

CREATE TABLE IF NOT EXISTS missions (
	id UUID PRIMARY KEY,
	parent_id UUID NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	points_reward INT NOT NULL CHECK (points_reward > 0),
	recurrence TEXT NOT NULL DEFAULT 'none',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	due_date TIMESTAMPTZ,
	photo_proof_required BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS mission_assignments (
	mission_id UUID NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
	child_id UUID NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	streak INT NOT NULL DEFAULT 0,
	PRIMARY KEY (mission_id, child_id)
);

CREATE TABLE IF NOT EXISTS mission_instances (
	id UUID PRIMARY KEY,
	mission_id UUID NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
	child_id UUID NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	period_key TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'active',
	streak_at_creation INT NOT NULL DEFAULT 0,
	proof_url TEXT,
	reject_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at TIMESTAMPTZ,
	UNIQUE (mission_id, child_id, period_key)
);

CREATE TABLE IF NOT EXISTS reward_items (
	id UUID PRIMARY KEY,
	parent_id UUID NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	points_cost INT NOT NULL CHECK (points_cost > 0),
	quantity_remaining INT,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	age_restriction TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reward_claims (
	id UUID PRIMARY KEY,
	item_id UUID NOT NULL REFERENCES reward_items(id) ON DELETE CASCADE,
	child_id UUID NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	points_cost INT NOT NULL,
	state TEXT NOT NULL DEFAULT 'pending',
	reject_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS punishment_definitions (
	id UUID PRIMARY KEY,
	parent_id UUID NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	escalation_levels JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS punishment_applications (
	id UUID PRIMARY KEY,
	definition_id UUID NOT NULL REFERENCES punishment_definitions(id) ON DELETE CASCADE,
	child_id UUID NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	level_index INT NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ,
	lifted_at TIMESTAMPTZ,
	lift_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_punishment_applications_child ON punishment_applications (definition_id, child_id);
`

// Bootstrap creates all application tables if they do not exist.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

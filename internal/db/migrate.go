package db

import (
	"context"

	"github.com/rotisserie/eris"
)

// Schema creates every table the stores use. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS discovery_sessions (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	method           TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'running',
	total_candidates INTEGER NOT NULL DEFAULT 0,
	valid_candidates INTEGER NOT NULL DEFAULT 0,
	inserted_sources INTEGER NOT NULL DEFAULT 0,
	duplicates       INTEGER NOT NULL DEFAULT 0,
	avg_confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	error            TEXT,
	started_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON discovery_sessions(started_at DESC);

CREATE TABLE IF NOT EXISTS discovered_sources (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url                TEXT NOT NULL UNIQUE,
	name               TEXT NOT NULL DEFAULT '',
	location           TEXT NOT NULL DEFAULT '',
	discovery_method   TEXT NOT NULL,
	business_type      TEXT NOT NULL DEFAULT '',
	reliability_score  DOUBLE PRECISION NOT NULL DEFAULT 0
		CHECK (reliability_score >= 0 AND reliability_score <= 100),
	status             TEXT NOT NULL DEFAULT 'discovered'
		CHECK (status IN ('discovered', 'validated', 'approved', 'rejected')),
	product_categories TEXT[] NOT NULL DEFAULT '{}',
	quality_indicators TEXT[] NOT NULL DEFAULT '{}',
	admin_notes        TEXT NOT NULL DEFAULT '',
	session_id         TEXT,
	discovered_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sources_status ON discovered_sources(status);
CREATE INDEX IF NOT EXISTS idx_sources_score ON discovered_sources(reliability_score DESC, discovered_at DESC);

CREATE TABLE IF NOT EXISTS source_reliability_metrics (
	id                        BIGSERIAL PRIMARY KEY,
	source_id                 TEXT NOT NULL REFERENCES discovered_sources(id) ON DELETE CASCADE,
	overall_quality_score     DOUBLE PRECISION NOT NULL,
	data_accuracy             DOUBLE PRECISION NOT NULL,
	text_quality_score        DOUBLE PRECISION NOT NULL,
	domain_relevance_score    DOUBLE PRECISION NOT NULL,
	business_legitimacy_score DOUBLE PRECISION NOT NULL,
	metric_date               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_metrics_source_date ON source_reliability_metrics(source_id, metric_date DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_metrics_date ON source_reliability_metrics(metric_date DESC, id DESC);

CREATE TABLE IF NOT EXISTS price_observations (
	id              BIGSERIAL PRIMARY KEY,
	catalog_item_id TEXT NOT NULL,
	source_id       TEXT NOT NULL,
	price           DOUBLE PRECISION NOT NULL CHECK (price > 0),
	is_active       BOOLEAN NOT NULL DEFAULT true,
	observed_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_observations_active ON price_observations(observed_at) WHERE is_active;

CREATE TABLE IF NOT EXISTS price_conflicts (
	id                    TEXT PRIMARY KEY,
	catalog_item_id       TEXT NOT NULL,
	source_a_id           TEXT NOT NULL,
	observation_a_id      BIGINT NOT NULL,
	price_a               DOUBLE PRECISION NOT NULL,
	source_b_id           TEXT NOT NULL,
	observation_b_id      BIGINT NOT NULL,
	price_b               DOUBLE PRECISION NOT NULL,
	relative_diff         DOUBLE PRECISION NOT NULL,
	resolved              BOOLEAN NOT NULL DEFAULT false,
	resolution_method     TEXT CHECK (resolution_method IN ('algorithm', 'manual')),
	resolved_price        DOUBLE PRECISION,
	resolution_confidence DOUBLE PRECISION,
	admin_notes           TEXT,
	resolved_by           TEXT,
	detected_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at           TIMESTAMPTZ,
	UNIQUE (observation_a_id, observation_b_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conflicts_open_pair
	ON price_conflicts(catalog_item_id, source_a_id, source_b_id) WHERE resolved = false;
CREATE INDEX IF NOT EXISTS idx_conflicts_detected ON price_conflicts(detected_at);

CREATE TABLE IF NOT EXISTS extraction_patterns (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	pattern_type     TEXT NOT NULL CHECK (pattern_type IN ('keyword', 'selector', 'regex')),
	pattern_value    TEXT NOT NULL,
	role             TEXT NOT NULL,
	label            TEXT NOT NULL DEFAULT '',
	business_type    TEXT NOT NULL DEFAULT '',
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 50,
	times_used       BIGINT NOT NULL DEFAULT 0,
	times_successful BIGINT NOT NULL DEFAULT 0 CHECK (times_successful <= times_used),
	is_active        BOOLEAN NOT NULL DEFAULT true,
	created_by       TEXT NOT NULL DEFAULT 'system',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (pattern_type, pattern_value, role, business_type)
);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return eris.Wrap(err, "db: migrate")
}

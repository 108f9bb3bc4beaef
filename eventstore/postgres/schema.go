package postgres

// Schema is the reference relational layout from spec.md §6. Callers
// run it once (e.g. via golang-migrate, or psql -f) before pointing a
// Store at the database; this package does not run migrations itself.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	stream_id  TEXT        NOT NULL,
	version    BIGINT      NOT NULL,
	event_type TEXT        NOT NULL,
	payload    BYTEA       NOT NULL,
	metadata   JSONB       NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	global_position BIGSERIAL,
	PRIMARY KEY (stream_id, version)
);
CREATE INDEX IF NOT EXISTS events_created_at_idx ON events (created_at);
CREATE INDEX IF NOT EXISTS events_event_type_idx ON events (event_type);
CREATE INDEX IF NOT EXISTS events_global_position_idx ON events (global_position);

CREATE TABLE IF NOT EXISTS snapshots (
	stream_id  TEXT PRIMARY KEY,
	version    BIGINT      NOT NULL,
	state_bytes BYTEA      NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS dlq_events (
	id             TEXT PRIMARY KEY,
	stream_id      TEXT        NOT NULL,
	intended_version BIGINT,
	payload        BYTEA       NOT NULL,
	failure_reason TEXT        NOT NULL,
	attempt_count  INT         NOT NULL,
	first_seen     TIMESTAMPTZ NOT NULL,
	last_seen      TIMESTAMPTZ NOT NULL
);
`

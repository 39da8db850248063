package lineage

// SchemaVersion identifies the lineage schema layout, recorded in a
// schema_version table on open.
const SchemaVersion = 1

// CoreSchema creates the four logical tables — golden_record, xref,
// merge_event, field_history — plus an idempotency_key table backing
// duplicate-event detection (grounded on
// other_examples/2bbecf5f_correlator..._lineage_store.go's
// idempotency-TTL design, adapted from Postgres to SQLite).
const CoreSchema = `
CREATE TABLE IF NOT EXISTS golden_record (
	golden_id   TEXT PRIMARY KEY,
	attributes  TEXT NOT NULL,
	cluster_id  TEXT NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS xref (
	source_record_id TEXT NOT NULL,
	source_system    TEXT NOT NULL,
	golden_id        TEXT NOT NULL REFERENCES golden_record(golden_id),
	valid_from       TEXT NOT NULL,
	valid_to         TEXT,
	confidence       REAL NOT NULL DEFAULT 1.0,
	PRIMARY KEY (source_record_id, source_system, valid_from)
);

CREATE INDEX IF NOT EXISTS idx_xref_golden_id ON xref(golden_id);
CREATE INDEX IF NOT EXISTS idx_xref_open ON xref(source_record_id, source_system) WHERE valid_to IS NULL;

CREATE TABLE IF NOT EXISTS merge_event (
	event_id             TEXT PRIMARY KEY,
	event_type           TEXT NOT NULL,
	timestamp            TEXT NOT NULL,
	actor                TEXT NOT NULL,
	affected_golden_ids  TEXT NOT NULL,
	affected_record_ids  TEXT NOT NULL,
	before_state         TEXT,
	after_state          TEXT
);

CREATE INDEX IF NOT EXISTS idx_merge_event_timestamp ON merge_event(timestamp);

CREATE TABLE IF NOT EXISTS field_history (
	golden_id     TEXT NOT NULL,
	field         TEXT NOT NULL,
	value         TEXT,
	source_record TEXT NOT NULL,
	source_system TEXT NOT NULL,
	observed_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_field_history_golden ON field_history(golden_id, field);

CREATE TABLE IF NOT EXISTS idempotency_key (
	event_id    TEXT PRIMARY KEY,
	recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS normalized_record (
	record_id        TEXT PRIMARY KEY,
	source_id        TEXT NOT NULL,
	attributes       TEXT NOT NULL,
	normalized       TEXT NOT NULL,
	embeddings       TEXT,
	trust            TEXT NOT NULL,
	ingest_time      TEXT NOT NULL,
	source_timestamp TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);
`

package sqlstore

// schema is applied statement by statement on open. Decimal values are kept
// as TEXT so no driver rounds them; only the event time in epoch
// milliseconds is persisted and the calendar date is derived from it.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS special_events (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT,
	type            TEXT NOT NULL,
	origin          TEXT NOT NULL,
	event_timestamp BIGINT NOT NULL,
	distance_value  TEXT NOT NULL,
	distance_unit   TEXT NOT NULL,
	velocity_value  TEXT,
	velocity_unit   TEXT,
	priority        TEXT NOT NULL,
	is_active       BOOLEAN,
	metadata        TEXT,
	created_at      BIGINT NOT NULL,
	updated_at      BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS special_events_active_idx ON special_events (is_active)`,
	`CREATE TABLE IF NOT EXISTS store_revision (
	id       INTEGER PRIMARY KEY,
	revision BIGINT NOT NULL
)`,
	`INSERT INTO store_revision (id, revision) VALUES (0, 0) ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS event_changes (
	revision BIGINT PRIMARY KEY,
	op       TEXT NOT NULL,
	event_id TEXT NOT NULL,
	payload  TEXT NOT NULL
)`,
}

const eventColumns = `id, name, description, type, origin, event_timestamp,
	distance_value, distance_unit, velocity_value, velocity_unit,
	priority, is_active, metadata, created_at, updated_at`

const insertEventSQL = `INSERT INTO special_events (` + eventColumns + `)
VALUES (:id, :name, :description, :type, :origin, :event_timestamp,
	:distance_value, :distance_unit, :velocity_value, :velocity_unit,
	:priority, :is_active, :metadata, :created_at, :updated_at)`

const updateEventSQL = `UPDATE special_events SET
	name = :name,
	description = :description,
	type = :type,
	origin = :origin,
	event_timestamp = :event_timestamp,
	distance_value = :distance_value,
	distance_unit = :distance_unit,
	velocity_value = :velocity_value,
	velocity_unit = :velocity_unit,
	priority = :priority,
	is_active = :is_active,
	metadata = :metadata,
	updated_at = :updated_at
WHERE id = :id`

const selectEventSQL = `SELECT ` + eventColumns + ` FROM special_events WHERE id = ?`

const deleteEventSQL = `DELETE FROM special_events WHERE id = ?`

const bumpRevisionSQL = `UPDATE store_revision SET revision = revision + 1 WHERE id = 0 RETURNING revision`

const selectRevisionSQL = `SELECT revision FROM store_revision WHERE id = 0`

const insertChangeSQL = `INSERT INTO event_changes (revision, op, event_id, payload) VALUES (?, ?, ?, ?)`

const pruneChangesSQL = `DELETE FROM event_changes WHERE revision <= ?`

const selectChangesSQL = `SELECT revision, op, payload FROM event_changes
WHERE revision > ? AND revision <= ? ORDER BY revision`

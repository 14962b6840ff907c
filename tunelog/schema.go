package tunelog

import (
	"database/sql"

	"github.com/hazyhaar/zapper/dbopen"
)

// Schema defines the tune event table. One row per resolution attempt,
// successful or not. Timestamps are unix seconds; duration_ms keeps the
// wall-clock cost of the attempt for slow-site triage.
const Schema = `
CREATE TABLE IF NOT EXISTS tune_events (
    tune_id     TEXT PRIMARY KEY,
    timestamp   INTEGER NOT NULL,
    channel     TEXT NOT NULL,
    site        TEXT NOT NULL DEFAULT '',
    strategy    TEXT NOT NULL DEFAULT '',
    success     INTEGER NOT NULL CHECK(success IN (0, 1)),
    reason      TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_tune_events_time ON tune_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_tune_events_channel ON tune_events(channel, timestamp DESC);
`

// OpenDB opens the tune event database at path with production-safe pragmas.
// The caller must blank-import the SQLite driver.
func OpenDB(path string) (*sql.DB, error) {
	return dbopen.Open(path, dbopen.WithMkdirAll())
}

// Init applies the tune event schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

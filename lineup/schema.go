package lineup

import (
	"database/sql"

	"github.com/hazyhaar/zapper/dbopen"
)

// Schema defines the lineup table that maps user-facing channel names (and
// optional dial numbers) to the site profile the tuner needs: which site to
// drive, which strategy fits its guide UI, and the selectors that strategy
// consumes.
//
// Strategies:
//   - "none":        navigation alone tunes; single-channel site.
//   - "guideGrid":   scroll-virtualized alphabetical grid, binary search.
//   - "channelRail": discovered sub-page with a lazy horizontal tile rail.
//   - "imageTile":   channel logo matched by image-URL fragment.
//   - "labelLink":   accessible label matched on a fully rendered list.
//
// The channel column holds the strategy-specific identifier (display name or
// station code for grid/label, image-URL fragment for imageTile, tile label
// for channelRail); empty means "use the row name". The enabled column parks
// a channel without losing its selectors.
//
// Any UPDATE to this table increments PRAGMA data_version, which the watch
// loop detects to reload the in-memory snapshot.
const Schema = `
CREATE TABLE IF NOT EXISTS lineup (
    name            TEXT PRIMARY KEY,
    number          INTEGER NOT NULL DEFAULT 0,
    site            TEXT NOT NULL,
    strategy        TEXT NOT NULL CHECK(strategy IN ('none','guideGrid','channelRail','imageTile','labelLink')),
    channel         TEXT NOT NULL DEFAULT '',
    guide_url       TEXT NOT NULL DEFAULT '',
    reveal_selector TEXT NOT NULL DEFAULT '',
    play_selector   TEXT NOT NULL DEFAULT '',
    rail_selector   TEXT NOT NULL DEFAULT '',
    discover_label  TEXT NOT NULL DEFAULT '',
    enabled         INTEGER NOT NULL DEFAULT 1 CHECK(enabled IN (0, 1)),
    updated_at      INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE INDEX IF NOT EXISTS idx_lineup_number ON lineup(number);

CREATE TRIGGER IF NOT EXISTS trg_lineup_updated_at
AFTER UPDATE ON lineup
FOR EACH ROW
BEGIN
    UPDATE lineup SET updated_at = strftime('%s','now') WHERE name = NEW.name;
END;
`

// OpenDB opens the lineup database at path with production-safe pragmas.
// The caller must blank-import the SQLite driver:
//
//	import _ "modernc.org/sqlite"
//
// Use this instead of sql.Open for any database shared between Admin writes,
// Store.Reload reads, and watch polling.
func OpenDB(path string) (*sql.DB, error) {
	return dbopen.Open(path, dbopen.WithMkdirAll())
}

// Init creates the lineup table if it doesn't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

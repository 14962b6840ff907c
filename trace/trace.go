// Package trace provides transparent SQL tracing for modernc.org/sqlite.
//
// It registers a "sqlite-trace" driver that wraps the standard "sqlite"
// driver and intercepts every Exec and Query at the database/sql/driver
// level. Switching a connection to tracing is a driver-name change, nothing
// more; the lineup and tune-log databases opt in through dbopen.WithTrace().
//
//	import _ "github.com/hazyhaar/zapper/trace" // registers "sqlite-trace"
//
//	traceDB, _ := sql.Open("sqlite", "traces.db") // raw driver, no recursion
//	store := trace.NewStore(traceDB)
//	store.Init()
//	trace.SetStore(store)
//
// Without a Store the driver still logs every statement via slog with
// adaptive levels: Debug normally, Warn past 100ms, Error on failure. Trace
// IDs come from the context via kit.GetTraceID, so HTTP and MCP calls
// correlate with the statements they caused.
package trace

import (
	"database/sql"
	"sync"

	sqlite "modernc.org/sqlite"
)

// Entry is one traced statement.
type Entry struct {
	Timestamp  int64  // unix microseconds
	TraceID    string // request correlation, empty for background work
	Op         string // "Exec" or "Query"
	Query      string
	DurationUs int64
	Error      string // empty on success
}

// Recorder persists trace entries. Store is the SQLite-backed
// implementation; tests substitute their own.
type Recorder interface {
	RecordAsync(e *Entry)
	Close() error
}

var (
	recMu    sync.RWMutex
	recorder Recorder // nil means slog-only
)

// SetStore installs the global trace recorder. Pass nil to disable
// persistence and fall back to slog-only mode.
func SetStore(r Recorder) {
	recMu.Lock()
	recorder = r
	recMu.Unlock()
}

func activeRecorder() Recorder {
	recMu.RLock()
	defer recMu.RUnlock()
	return recorder
}

func init() {
	sql.Register("sqlite-trace", &tracingDriver{inner: &sqlite.Driver{}})
}

// CLAUDE:SUMMARY Polls SQLite for version changes and debounces reload actions, used for lineup hot reload.

// Package watch provides a "poll SQLite, detect change, debounce, reload"
// loop. The zapper daemon uses it to pick up channel lineup edits without a
// restart: any process (admin API, sqlite3 shell, sync job) can write the
// lineup database and the running engine reloads within one poll interval.
//
// Typical usage:
//
//	w := watch.New(db, watch.Options{Interval: 200*time.Millisecond, Debounce: 500*time.Millisecond})
//	go w.OnChange(ctx, func() error { return store.Reload(ctx) })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token from the database. Two calls that
// return different values mean "something changed". int64 maps naturally to
// PRAGMA data_version, PRAGMA user_version, or a MAX(updated_at) query.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the watcher behaviour.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period a change must hold still before the
	// action fires. The window restarts whenever the pending version moves
	// again. 0 fires on the detecting poll. Default: 0.
	Debounce time.Duration
	// Detector overrides the default PragmaDataVersion detector.
	Detector ChangeDetector
	// Logger overrides slog.Default().
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls a SQLite database for changes and runs an action when a
// change sticks. Safe for concurrent use.
type Watcher struct {
	db       *sql.DB
	interval time.Duration
	debounce time.Duration
	detect   ChangeDetector
	log      *slog.Logger

	// applied is the last version whose action completed without error.
	// cond wakes WaitForVersion callers whenever it advances.
	mu      sync.Mutex
	cond    *sync.Cond
	applied int64

	// Counters surfaced through Stats.
	checks   atomic.Int64
	changes  atomic.Int64
	errors   atomic.Int64
	reloads  atomic.Int64
	reloadNs atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64         `json:"checks"`
	ChangesDetected int64         `json:"changes_detected"`
	Errors          int64         `json:"errors"`
	Reloads         int64         `json:"reloads"`
	AvgReloadTime   time.Duration `json:"avg_reload_time"`
}

// New creates a Watcher. Call OnChange to start the loop.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	w := &Watcher{
		db:       db,
		interval: opts.Interval,
		debounce: opts.Debounce,
		detect:   opts.Detector,
		log:      opts.Logger,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	s := Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Reloads:         w.reloads.Load(),
	}
	if s.Reloads > 0 {
		s.AvgReloadTime = time.Duration(w.reloadNs.Load() / s.Reloads)
	}
	return s
}

// Version returns the last successfully processed version token.
func (w *Watcher) Version() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.applied
}

// OnChange blocks until ctx is cancelled, polling at the configured interval.
// A detected version change is applied once it has held still for the
// debounce window, rounded up to the next poll.
//
// If action returns an error the version does NOT advance, so the change is
// picked up again on a later poll and the action retried.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	// Seed the baseline so a pre-existing database does not count as a change.
	if v, err := w.detect(ctx, w.db); err != nil {
		w.log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.advance(v)
	}

	w.log.Info("watch: started", "interval", w.interval, "debounce", w.debounce)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		pending int64
		armed   bool      // a change is waiting out its debounce window
		quietAt time.Time // earliest instant pending may be applied
	)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch: stopped")
			return

		case now := <-ticker.C:
			w.checks.Add(1)
			cur, err := w.detect(ctx, w.db)
			if err != nil {
				w.errors.Add(1)
				w.log.Warn("watch: version check failed", "error", err)
				continue
			}
			// Restart the window only when the pending version actually
			// moves, not on every poll that re-observes it.
			if cur != w.Version() && (!armed || cur != pending) {
				w.changes.Add(1)
				pending, armed = cur, true
				quietAt = now.Add(w.debounce)
				if w.debounce > 0 {
					w.log.Debug("watch: change detected, debouncing", "pending_version", cur)
				}
			}
			if armed && !now.Before(quietAt) {
				w.apply(action, pending)
				armed = false
			}
		}
	}
}

// WaitForVersion blocks until the watcher has observed and successfully
// processed (action returned nil) a version >= target, or ctx expires.
func (w *Watcher) WaitForVersion(ctx context.Context, target int64) error {
	// Wake the cond wait when ctx expires. The callback cannot run between
	// our ctx check and Wait because it needs the mutex Wait releases.
	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.cond.Broadcast()
	})
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.applied < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.cond.Wait()
	}
	return nil
}

func (w *Watcher) apply(action func() error, ver int64) {
	w.log.Info("watch: reloading", "old_version", w.Version(), "new_version", ver)
	start := time.Now()
	if err := action(); err != nil {
		w.errors.Add(1)
		w.log.Error("watch: reload failed", "error", err, "version", ver)
		return
	}
	elapsed := time.Since(start)
	w.reloads.Add(1)
	w.reloadNs.Add(int64(elapsed))
	w.advance(ver)
	w.log.Info("watch: reload complete", "version", ver, "duration", elapsed)
}

func (w *Watcher) advance(v int64) {
	w.mu.Lock()
	w.applied = v
	w.mu.Unlock()
	w.cond.Broadcast()
}

// ---------- Built-in detectors ----------

// PragmaDataVersion uses PRAGMA data_version, which increments whenever
// another connection writes to the same database file. It detects
// cross-process and cross-connection mutations, which makes it the default
// for lineup hot reload.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// PragmaUserVersion uses PRAGMA user_version, an application-controlled
// integer that callers bump explicitly after writes. Useful when tests want
// deterministic version numbers for WaitForVersion.
func PragmaUserVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}

// MaxColumnDetector returns a ChangeDetector that polls MAX(column) on a
// table, e.g. an updated_at timestamp on the channels table. Identifiers are
// quoted to prevent SQL injection.
func MaxColumnDetector(table, column string) ChangeDetector {
	query := "SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

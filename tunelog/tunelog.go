// CLAUDE:SUMMARY Append-only SQLite tune event log with async buffered writes, recent-events query, retention cleanup, and the /v1/events route.

// Package tunelog records the outcome of every tune attempt: which channel,
// which site and strategy, whether it succeeded, why it failed, and how long
// it took. The log is the service's flight recorder; an operator asking
// "why did ESPN stop tuning last night" reads it before touching a browser.
//
// Writes are buffered and flushed in batches so the tune path never waits on
// SQLite. Close drains the buffer.
package tunelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/zapper/idgen"
	"github.com/hazyhaar/zapper/tuner"
)

// Event is one tune attempt record.
type Event struct {
	TuneID     string    `json:"tune_id"`
	Timestamp  time.Time `json:"timestamp"`
	Channel    string    `json:"channel"`
	Site       string    `json:"site,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Log persists tune events asynchronously. Safe for concurrent use.
type Log struct {
	db    *sql.DB
	newID idgen.Generator
	log   *slog.Logger
	ch    chan Event
	stop  chan struct{}
	done  chan struct{}
}

// Option configures a Log.
type Option func(*Log)

// WithIDGenerator sets a custom generator for event IDs that arrive blank.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Log) { l.newID = gen }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.log = logger }
}

// New creates an async tune event log over a database with the tunelog
// schema applied. Recommended bufferSize: 256; the tune path produces at
// most one event per attempt, so this covers minutes of sustained failures.
func New(db *sql.DB, bufferSize int, opts ...Option) *Log {
	l := &Log{
		db:    db,
		newID: idgen.TuneID,
		log:   slog.Default(),
		ch:    make(chan Event, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// Append inserts an event synchronously. Tests and backfills use this; the
// tune path goes through AppendAsync.
func (l *Log) Append(ctx context.Context, ev Event) error {
	l.fillDefaults(&ev)
	return l.insert(ctx, ev)
}

// AppendAsync queues an event for batch persistence. Falls back to a
// synchronous insert when the buffer is full, so no outcome is dropped.
func (l *Log) AppendAsync(ev Event) {
	l.fillDefaults(&ev)
	select {
	case l.ch <- ev:
	default:
		l.log.Warn("tunelog: buffer full, sync fallback", "tune_id", ev.TuneID)
		if err := l.insert(context.Background(), ev); err != nil {
			l.log.Error("tunelog: sync fallback failed", "error", err, "tune_id", ev.TuneID)
		}
	}
}

// Record adapts a tune outcome into an event row. It satisfies the tuner
// admin's recorder contract, so the daemon wires the Log straight in.
func (l *Log) Record(ev tuner.TuneEvent) {
	l.AppendAsync(Event{
		TuneID:     ev.TuneID,
		Channel:    ev.Channel,
		Site:       ev.Site,
		Strategy:   string(ev.Strategy),
		Success:    ev.Success,
		Reason:     ev.Reason,
		DurationMs: ev.Duration.Milliseconds(),
	})
}

// Recent returns the newest events, most recent first. limit <= 0 means the
// default of 50.
func (l *Log) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT tune_id, timestamp, channel, site, strategy, success, reason, duration_ms
		FROM tune_events
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("tunelog: query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var ts int64
		var success int
		if err := rows.Scan(&ev.TuneID, &ts, &ev.Channel, &ev.Site, &ev.Strategy,
			&success, &ev.Reason, &ev.DurationMs); err != nil {
			return nil, fmt.Errorf("tunelog: scan: %w", err)
		}
		ev.Timestamp = time.Unix(ts, 0)
		ev.Success = success == 1
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Cleanup deletes events older than retentionDays and reports how many rows
// went away. The daemon runs this on a timer so the log never grows without
// bound on a long-lived box.
func (l *Log) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	result, err := l.db.ExecContext(ctx,
		`DELETE FROM tune_events WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("tunelog: cleanup: %w", err)
	}
	return result.RowsAffected()
}

// Close drains the buffer, flushes, and stops the background goroutine.
func (l *Log) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

// RegisterRoutes mounts the event log read API, typically at /v1/events.
func (l *Log) RegisterRoutes(r chi.Router) {
	r.Get("/", l.handleRecent)
}

func (l *Log) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("tunelog: bad limit %q", s))
			return
		}
		limit = n
	}
	events, err := l.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (l *Log) fillDefaults(ev *Event) {
	if ev.TuneID == "" {
		ev.TuneID = l.newID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
}

func (l *Log) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	batch := make([]Event, 0, 64)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			l.log.Error("tunelog: begin tx", "error", err)
			return
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			tx.Rollback()
			l.log.Error("tunelog: prepare", "error", err)
			return
		}
		defer stmt.Close()

		for _, ev := range batch {
			if _, err := stmt.ExecContext(ctx, insertArgs(ev)...); err != nil {
				l.log.Error("tunelog: insert", "error", err, "tune_id", ev.TuneID)
			}
		}
		if err := tx.Commit(); err != nil {
			l.log.Error("tunelog: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case ev := <-l.ch:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		case ev := <-l.ch:
			batch = append(batch, ev)
			if len(batch) >= 64 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

const insertSQL = `INSERT INTO tune_events
	(tune_id, timestamp, channel, site, strategy, success, reason, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func insertArgs(ev Event) []any {
	success := 0
	if ev.Success {
		success = 1
	}
	return []any{ev.TuneID, ev.Timestamp.Unix(), ev.Channel, ev.Site,
		ev.Strategy, success, ev.Reason, ev.DurationMs}
}

func (l *Log) insert(ctx context.Context, ev Event) error {
	_, err := l.db.ExecContext(ctx, insertSQL, insertArgs(ev)...)
	return err
}

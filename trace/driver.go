package trace

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/zapper/kit"
)

const (
	// pragmaQuiet filters watcher polls: PRAGMA statements faster than this
	// are not recorded unless they fail.
	pragmaQuiet = 10 * time.Millisecond
	// slowStatement raises the log level on statements past this duration.
	slowStatement = 100 * time.Millisecond
)

// tracingDriver wraps the modernc.org/sqlite driver. Registered as
// "sqlite-trace" in init(); open with sql.Open("sqlite-trace", path).
type tracingDriver struct {
	inner driver.Driver
}

func (d *tracingDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.inner.Open(name)
	if err != nil {
		return nil, err
	}
	return &tracedConn{Conn: conn}, nil
}

// tracedConn intercepts Prepare so every statement carries its SQL text.
type tracedConn struct {
	driver.Conn
}

func (c *tracedConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.Conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &tracedStmt{Stmt: stmt, query: query}, nil
}

func (c *tracedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	pc, ok := c.Conn.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	stmt, err := pc.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &tracedStmt{Stmt: stmt, query: query}, nil
}

type tracedStmt struct {
	driver.Stmt
	query string
}

func (s *tracedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	res, err := s.execContext(ctx, args)
	s.record(ctx, "Exec", time.Since(start), err)
	return res, err
}

func (s *tracedStmt) execContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		return ec.ExecContext(ctx, args)
	}
	return s.Stmt.Exec(flatten(args))
}

func (s *tracedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	rows, err := s.queryContext(ctx, args)
	s.record(ctx, "Query", time.Since(start), err)
	return rows, err
}

func (s *tracedStmt) queryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		return qc.QueryContext(ctx, args)
	}
	return s.Stmt.Query(flatten(args))
}

func (s *tracedStmt) Exec(args []driver.Value) (driver.Result, error) {
	start := time.Now()
	res, err := s.Stmt.Exec(args)
	s.record(context.Background(), "Exec", time.Since(start), err)
	return res, err
}

func (s *tracedStmt) Query(args []driver.Value) (driver.Rows, error) {
	start := time.Now()
	rows, err := s.Stmt.Query(args)
	s.record(context.Background(), "Query", time.Since(start), err)
	return rows, err
}

func (s *tracedStmt) record(ctx context.Context, op string, d time.Duration, err error) {
	// The lineup watcher polls PRAGMA data_version every second; skip that
	// noise unless it turns slow or fails.
	if err == nil && d < pragmaQuiet && strings.HasPrefix(s.query, "PRAGMA ") {
		return
	}

	e := Entry{
		Timestamp:  time.Now().UnixMicro(),
		TraceID:    kit.GetTraceID(ctx),
		Op:         op,
		Query:      s.query,
		DurationUs: d.Microseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}

	level := slog.LevelDebug
	switch {
	case err != nil:
		level = slog.LevelError
	case d > slowStatement:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("query", s.query),
		slog.Duration("duration", d),
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	slog.LogAttrs(ctx, level, "trace: sql", attrs...)

	if rec := activeRecorder(); rec != nil {
		rec.RecordAsync(&e)
	}
}

func flatten(named []driver.NamedValue) []driver.Value {
	vals := make([]driver.Value, len(named))
	for i, nv := range named {
		vals[i] = nv.Value
	}
	return vals
}

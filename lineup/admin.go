// CLAUDE:SUMMARY Lineup CRUD over SQLite plus the /v1/channels HTTP routes; writes flow through the table so the watcher reloads the snapshot.
package lineup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ErrNotFound reports a lineup name that is absent from the table.
type ErrNotFound struct {
	Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("lineup: channel not found: %s", e.Name)
}

// Admin provides CRUD operations on the lineup table, exposed over HTTP and
// as MCP tools so an operator or an LLM can administer the lineup at
// runtime.
//
// All mutations go through SQLite, so the watch loop picks up changes and
// reloads the Store snapshot without an explicit Reload call.
type Admin struct {
	db *sql.DB
}

// NewAdmin creates an Admin backed by the given database. The database must
// have the lineup schema applied (via Init).
func NewAdmin(db *sql.DB) *Admin {
	return &Admin{db: db}
}

// List returns every lineup row, enabled or not, ordered by dial number
// then name.
func (a *Admin) List(ctx context.Context) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT name, number, site, strategy, channel, guide_url,
		       reveal_selector, play_selector, rail_selector, discover_label,
		       enabled, updated_at
		FROM lineup ORDER BY number, name`)
	if err != nil {
		return nil, fmt.Errorf("lineup: list: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Get returns a single lineup row by exact name.
func (a *Admin) Get(ctx context.Context, name string) (Entry, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT name, number, site, strategy, channel, guide_url,
		       reveal_selector, play_selector, rail_selector, discover_label,
		       enabled, updated_at
		FROM lineup WHERE name = ?`, name)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, &ErrNotFound{Name: name}
	}
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Upsert inserts or updates a lineup entry. The entry is validated against
// the closed strategy set before it reaches the table; the CHECK constraint
// is the backstop for writes that bypass this Admin.
func (a *Admin) Upsert(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	enabled := 0
	if e.Enabled {
		enabled = 1
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO lineup (name, number, site, strategy, channel, guide_url,
		                    reveal_selector, play_selector, rail_selector,
		                    discover_label, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
		    number          = excluded.number,
		    site            = excluded.site,
		    strategy        = excluded.strategy,
		    channel         = excluded.channel,
		    guide_url       = excluded.guide_url,
		    reveal_selector = excluded.reveal_selector,
		    play_selector   = excluded.play_selector,
		    rail_selector   = excluded.rail_selector,
		    discover_label  = excluded.discover_label,
		    enabled         = excluded.enabled`,
		e.Name, e.Number, e.Site, e.Strategy, e.Channel, e.GuideURL,
		e.RevealSelector, e.PlaySelector, e.RailSelector, e.DiscoverLabel,
		enabled)
	if err != nil {
		return fmt.Errorf("lineup: upsert %q: %w", e.Name, err)
	}
	return nil
}

// Delete removes a lineup entry.
func (a *Admin) Delete(ctx context.Context, name string) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM lineup WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("lineup: delete %q: %w", name, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &ErrNotFound{Name: name}
	}
	return nil
}

// SetEnabled parks or reinstates a channel without losing its selectors.
func (a *Admin) SetEnabled(ctx context.Context, name string, enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	result, err := a.db.ExecContext(ctx,
		`UPDATE lineup SET enabled = ? WHERE name = ?`, enabledInt, name)
	if err != nil {
		return fmt.Errorf("lineup: set enabled %q: %w", name, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &ErrNotFound{Name: name}
	}
	return nil
}

// Seed inserts entries that do not exist yet and reports how many were
// added. Existing rows win: the config file seeds the first start, runtime
// edits through this Admin are authoritative afterwards.
func (a *Admin) Seed(ctx context.Context, entries []Entry) (int, error) {
	added := 0
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return added, err
		}
		enabled := 0
		if e.Enabled {
			enabled = 1
		}
		result, err := a.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO lineup
			    (name, number, site, strategy, channel, guide_url,
			     reveal_selector, play_selector, rail_selector,
			     discover_label, enabled)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Name, e.Number, e.Site, e.Strategy, e.Channel, e.GuideURL,
			e.RevealSelector, e.PlaySelector, e.RailSelector, e.DiscoverLabel,
			enabled)
		if err != nil {
			return added, fmt.Errorf("lineup: seed %q: %w", e.Name, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

// RegisterRoutes mounts the lineup CRUD under the given router, typically
// at /v1/channels.
func (a *Admin) RegisterRoutes(r chi.Router) {
	r.Get("/", a.handleList)
	r.Get("/{name}", a.handleGet)
	r.Put("/{name}", a.handlePut)
	r.Delete("/{name}", a.handleDelete)
	r.Post("/{name}/enable", a.handleEnable(true))
	r.Post("/{name}/disable", a.handleEnable(false))
}

func (a *Admin) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := a.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *Admin) handleGet(w http.ResponseWriter, r *http.Request) {
	e, err := a.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *Admin) handlePut(w http.ResponseWriter, r *http.Request) {
	var e Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// The path owns the name; a mismatched body name is a client bug.
	name := chi.URLParam(r, "name")
	if e.Name == "" {
		e.Name = name
	} else if e.Name != name {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("lineup: body name %q does not match path %q", e.Name, name))
		return
	}
	if err := a.Upsert(r.Context(), e); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Admin) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Admin) handleEnable(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.SetEnabled(r.Context(), chi.URLParam(r, "name"), enabled); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func statusFor(err error) int {
	var nf *ErrNotFound
	if errors.As(err, &nf) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

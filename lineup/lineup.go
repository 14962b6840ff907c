// CLAUDE:SUMMARY In-memory lineup snapshot: maps channel names and dial numbers to site profiles, hot-reloaded from SQLite.

// Package lineup maps user-facing channel names (and optional dial numbers)
// to the site profile the tuner consumes: which streaming site to drive,
// which resolution strategy fits its guide UI, and the selectors that
// strategy needs.
//
// The SQLite table is authoritative; the Store keeps an in-memory snapshot
// of the enabled rows for lock-cheap lookups on the tune path and reloads it
// when the watch loop detects a database change. Admin owns the writes.
package lineup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/hazyhaar/zapper/tuner"
)

// Entry is one lineup row. Channel holds the strategy-specific identifier
// (display name or station code for grid/label, image-URL fragment for
// imageTile, tile label for channelRail); empty means "use Name".
type Entry struct {
	Name           string `json:"name"`
	Number         int    `json:"number,omitempty"`
	Site           string `json:"site"`
	Strategy       string `json:"strategy"`
	Channel        string `json:"channel,omitempty"`
	GuideURL       string `json:"guide_url,omitempty"`
	RevealSelector string `json:"reveal_selector,omitempty"`
	PlaySelector   string `json:"play_selector,omitempty"`
	RailSelector   string `json:"rail_selector,omitempty"`
	DiscoverLabel  string `json:"discover_label,omitempty"`
	Enabled        bool   `json:"enabled"`
	UpdatedAt      int64  `json:"updated_at,omitempty"`
}

// Profile converts the entry into the tuner's immutable per-tune contract.
func (e Entry) Profile() tuner.SiteProfile {
	channel := e.Channel
	if channel == "" {
		channel = e.Name
	}
	return tuner.SiteProfile{
		Site:           e.Site,
		Channel:        channel,
		Strategy:       tuner.Strategy(e.Strategy),
		GuideURL:       e.GuideURL,
		RevealSelector: e.RevealSelector,
		PlaySelector:   e.PlaySelector,
		RailSelector:   e.RailSelector,
		DiscoverLabel:  e.DiscoverLabel,
	}
}

// Validate rejects entries the tuner could not dispatch.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("lineup: entry needs a name")
	}
	if _, err := tuner.ParseStrategy(e.Strategy); err != nil {
		return fmt.Errorf("lineup: entry %q: %w", e.Name, err)
	}
	if e.Strategy != string(tuner.StrategyNone) && strings.TrimSpace(e.Site) == "" {
		return fmt.Errorf("lineup: entry %q needs a site", e.Name)
	}
	return nil
}

// Store serves lineup lookups from an in-memory snapshot of the enabled
// rows. Reload swaps the snapshot wholesale, so readers never see a
// half-applied edit. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	mu       sync.RWMutex
	byName   map[string]Entry
	byNumber map[int]Entry
	count    int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// NewStore creates a Store over a database with the lineup schema applied.
// The snapshot starts empty; call Reload (or run it through a watcher) to
// populate it.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:       db,
		log:      slog.Default(),
		byName:   make(map[string]Entry),
		byNumber: make(map[int]Entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reload reads the enabled lineup rows and swaps the snapshot. Designed to
// run as the watch loop's change action:
//
//	go w.OnChange(ctx, func() error { return store.Reload(ctx) })
func (s *Store) Reload(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, number, site, strategy, channel, guide_url,
		       reveal_selector, play_selector, rail_selector, discover_label,
		       enabled, updated_at
		FROM lineup WHERE enabled = 1`)
	if err != nil {
		return fmt.Errorf("lineup: query: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]Entry)
	byNumber := make(map[int]Entry)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		byName[nameKey(e.Name)] = e
		if e.Number > 0 {
			byNumber[e.Number] = e
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lineup: rows: %w", err)
	}

	s.mu.Lock()
	s.byName = byName
	s.byNumber = byNumber
	s.count = len(byName)
	s.mu.Unlock()

	s.log.Info("lineup: snapshot reloaded", "channels", len(byName))
	return nil
}

// Lookup resolves a channel reference, either a name (case-insensitive) or
// a dial number, to its lineup entry.
func (s *Store) Lookup(ref string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.byName[nameKey(ref)]; ok {
		return e, true
	}
	if n, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil {
		if e, ok := s.byNumber[n]; ok {
			return e, true
		}
	}
	return Entry{}, false
}

// Profile implements the tuner's profile source: it resolves a channel
// reference straight to the SiteProfile the engine dispatches on.
func (s *Store) Profile(ref string) (tuner.SiteProfile, bool) {
	e, ok := s.Lookup(ref)
	if !ok {
		return tuner.SiteProfile{}, false
	}
	return e.Profile(), true
}

// Len reports the number of enabled channels in the snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// nameKey folds a channel name the same way the tuner folds guide names, so
// "ESPN", "espn" and "Espn " address the same entry.
func nameKey(name string) string {
	return tuner.Normalize(name)
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var e Entry
	var enabled int
	if err := r.Scan(
		&e.Name, &e.Number, &e.Site, &e.Strategy, &e.Channel, &e.GuideURL,
		&e.RevealSelector, &e.PlaySelector, &e.RailSelector, &e.DiscoverLabel,
		&enabled, &e.UpdatedAt,
	); err != nil {
		return Entry{}, fmt.Errorf("lineup: scan: %w", err)
	}
	e.Enabled = enabled == 1
	return e, nil
}

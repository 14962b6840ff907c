package lineup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/zapper/dbopen"
	"github.com/hazyhaar/zapper/tuner"
	"github.com/hazyhaar/zapper/watch"

	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func testEntries() []Entry {
	return []Entry{
		{Name: "ESPN", Number: 4, Site: "zap", Strategy: "guideGrid", PlaySelector: ".play", Enabled: true},
		{Name: "ABC", Number: 7, Site: "zap", Strategy: "guideGrid", Enabled: true},
		{Name: "Fox News", Number: 12, Site: "stream", Strategy: "channelRail", GuideURL: "https://tv.example.com/", Enabled: true},
		{Name: "Peacock Live", Site: "solo", Strategy: "none", Enabled: true},
		{Name: "Retired", Number: 99, Site: "zap", Strategy: "guideGrid", Enabled: false},
	}
}

func seedAll(t *testing.T, a *Admin, entries []Entry) {
	t.Helper()
	for _, e := range entries {
		if err := a.Upsert(context.Background(), e); err != nil {
			t.Fatalf("upsert %q: %v", e.Name, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Entry
// ---------------------------------------------------------------------------

func TestEntryProfile(t *testing.T) {
	e := Entry{
		Name: "ESPN", Site: "zap", Strategy: "guideGrid",
		RevealSelector: "#open", PlaySelector: ".play",
	}
	p := e.Profile()
	if p.Channel != "ESPN" {
		t.Errorf("empty channel must default to name, got %q", p.Channel)
	}
	if p.Strategy != tuner.StrategyGuideGrid {
		t.Errorf("strategy = %q", p.Strategy)
	}
	if p.RevealSelector != "#open" || p.PlaySelector != ".play" {
		t.Errorf("selectors not carried: %+v", p)
	}

	e.Channel = "espn-logo.png"
	if got := e.Profile().Channel; got != "espn-logo.png" {
		t.Errorf("explicit channel ignored, got %q", got)
	}
}

func TestEntryValidate(t *testing.T) {
	good := Entry{Name: "ESPN", Site: "zap", Strategy: "guideGrid"}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}

	if err := (Entry{Site: "zap", Strategy: "guideGrid"}).Validate(); err == nil {
		t.Error("missing name accepted")
	}
	if err := (Entry{Name: "X", Site: "zap", Strategy: "gridGuide"}).Validate(); err == nil {
		t.Error("unknown strategy accepted")
	}
	if err := (Entry{Name: "X", Strategy: "guideGrid"}).Validate(); err == nil {
		t.Error("missing site accepted for a searching strategy")
	}
	// A "none" channel is navigation-only; it may omit the site.
	if err := (Entry{Name: "X", Strategy: "none"}).Validate(); err != nil {
		t.Errorf("none strategy without site rejected: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Admin CRUD
// ---------------------------------------------------------------------------

func TestAdminCRUD(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	a := NewAdmin(db)
	seedAll(t, a, testEntries())

	entries, err := a.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("list = %d entries, want 5", len(entries))
	}
	// Ordered by number: Peacock Live (0) first, Retired (99) last.
	if entries[0].Name != "Peacock Live" || entries[len(entries)-1].Name != "Retired" {
		t.Fatalf("order wrong: first %q last %q", entries[0].Name, entries[len(entries)-1].Name)
	}

	e, err := a.Get(ctx, "ESPN")
	if err != nil {
		t.Fatal(err)
	}
	if e.Number != 4 || e.Site != "zap" || !e.Enabled {
		t.Fatalf("get = %+v", e)
	}

	// Update in place.
	e.PlaySelector = ".play-button"
	if err := a.Upsert(ctx, e); err != nil {
		t.Fatal(err)
	}
	e, _ = a.Get(ctx, "ESPN")
	if e.PlaySelector != ".play-button" {
		t.Fatalf("update lost: %+v", e)
	}

	if err := a.Delete(ctx, "Retired"); err != nil {
		t.Fatal(err)
	}
	var nf *ErrNotFound
	if _, err := a.Get(ctx, "Retired"); !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := a.Delete(ctx, "Retired"); !errors.As(err, &nf) {
		t.Fatalf("double delete = %v", err)
	}

	if err := a.SetEnabled(ctx, "ESPN", false); err != nil {
		t.Fatal(err)
	}
	e, _ = a.Get(ctx, "ESPN")
	if e.Enabled {
		t.Fatal("disable did not stick")
	}
	if err := a.SetEnabled(ctx, "Ghost", true); !errors.As(err, &nf) {
		t.Fatalf("enable on missing = %v", err)
	}
}

func TestAdminUpsert_RejectsBadStrategy(t *testing.T) {
	db := setupTestDB(t)
	a := NewAdmin(db)

	err := a.Upsert(context.Background(), Entry{Name: "X", Site: "zap", Strategy: "teleport"})
	if err == nil {
		t.Fatal("unknown strategy accepted")
	}
	if !strings.Contains(err.Error(), "teleport") {
		t.Fatalf("error does not name the strategy: %v", err)
	}
}

func TestAdminSeed_ExistingRowsWin(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	a := NewAdmin(db)

	added, err := a.Seed(ctx, testEntries())
	if err != nil {
		t.Fatal(err)
	}
	if added != 5 {
		t.Fatalf("first seed added %d, want 5", added)
	}

	// A runtime edit must survive a later seed with the original values.
	if err := a.Upsert(ctx, Entry{Name: "ESPN", Number: 4, Site: "zap", Strategy: "guideGrid", PlaySelector: ".fixed", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	added, err = a.Seed(ctx, testEntries())
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Fatalf("second seed added %d, want 0", added)
	}
	e, _ := a.Get(ctx, "ESPN")
	if e.PlaySelector != ".fixed" {
		t.Fatalf("seed overwrote a runtime edit: %+v", e)
	}
}

// ---------------------------------------------------------------------------
// Store snapshot
// ---------------------------------------------------------------------------

func TestStoreReloadAndLookup(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	a := NewAdmin(db)
	seedAll(t, a, testEntries())

	s := NewStore(db)
	if s.Len() != 0 {
		t.Fatalf("snapshot not empty before reload: %d", s.Len())
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	// Disabled rows stay out of the snapshot.
	if s.Len() != 4 {
		t.Fatalf("snapshot = %d channels, want 4", s.Len())
	}

	// Name lookup is case- and whitespace-insensitive.
	for _, ref := range []string{"ESPN", "espn", " Espn "} {
		if _, ok := s.Lookup(ref); !ok {
			t.Errorf("lookup %q missed", ref)
		}
	}
	// Dial number lookup.
	if e, ok := s.Lookup("12"); !ok || e.Name != "Fox News" {
		t.Fatalf("lookup by number = %+v, %v", e, ok)
	}
	if _, ok := s.Lookup("99"); ok {
		t.Fatal("disabled channel resolvable by number")
	}
	if _, ok := s.Lookup("Retired"); ok {
		t.Fatal("disabled channel resolvable by name")
	}

	p, ok := s.Profile("7")
	if !ok {
		t.Fatal("profile by number missed")
	}
	if p.Channel != "ABC" || p.Strategy != tuner.StrategyGuideGrid {
		t.Fatalf("profile = %+v", p)
	}
}

func TestStoreReload_SwapsWholesale(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	a := NewAdmin(db)
	seedAll(t, a, testEntries())

	s := NewStore(db)
	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	if err := a.Delete(ctx, "ESPN"); err != nil {
		t.Fatal(err)
	}
	// Stale until the next reload; then gone.
	if _, ok := s.Lookup("ESPN"); !ok {
		t.Fatal("snapshot mutated outside Reload")
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Lookup("ESPN"); ok {
		t.Fatal("deleted channel survived reload")
	}
}

// TestStoreWatchReload wires the store to the watch loop the way the daemon
// does and verifies an admin write reaches the snapshot without a manual
// reload. user_version stands in for data_version so the test controls the
// version token on a single shared connection.
func TestStoreWatchReload(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db := setupTestDB(t)
	a := NewAdmin(db)
	s := NewStore(db)

	w := watch.New(db, watch.Options{
		Interval: 20 * time.Millisecond,
		Detector: watch.PragmaUserVersion,
	})
	go w.OnChange(ctx, func() error { return s.Reload(ctx) })

	// Let the baseline version seed before writing.
	time.Sleep(50 * time.Millisecond)

	if err := a.Upsert(ctx, Entry{Name: "ESPN", Site: "zap", Strategy: "guideGrid", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatal(err)
	}

	if err := w.WaitForVersion(ctx, 1); err != nil {
		t.Fatalf("watch loop never delivered the lineup change: %v", err)
	}
	if _, ok := s.Lookup("ESPN"); !ok {
		t.Fatal("snapshot missing channel after watch reload")
	}
}

// ---------------------------------------------------------------------------
// HTTP routes
// ---------------------------------------------------------------------------

func adminServer(t *testing.T) (*httptest.Server, *Admin) {
	t.Helper()
	db := setupTestDB(t)
	a := NewAdmin(db)

	r := chi.NewRouter()
	r.Route("/v1/channels", a.RegisterRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, a
}

func doJSON(t *testing.T, method, url string, body string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestAdminRoutes(t *testing.T) {
	srv, _ := adminServer(t)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/v1/channels/ESPN",
		`{"number":4,"site":"zap","strategy":"guideGrid","enabled":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put = %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/channels/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d", resp.StatusCode)
	}
	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("list body: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "ESPN" {
		t.Fatalf("list = %+v", entries)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/channels/ESPN", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get = %d", resp.StatusCode)
	}
	var e Entry
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatal(err)
	}
	if e.Number != 4 {
		t.Fatalf("get = %+v", e)
	}

	// Body/path name mismatch is a client bug.
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/v1/channels/ESPN",
		`{"name":"CNN","site":"zap","strategy":"guideGrid"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("mismatched put = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/channels/ESPN/disable", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disable = %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/channels/ESPN", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get after disable = %d", resp.StatusCode)
	}
	e = Entry{}
	json.Unmarshal(body, &e)
	if e.Enabled {
		t.Fatal("disable route did not stick")
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/channels/ESPN", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/channels/ESPN", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d", resp.StatusCode)
	}
}

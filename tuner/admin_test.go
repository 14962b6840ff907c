package tuner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeProfiles map[string]SiteProfile

func (f fakeProfiles) Profile(ref string) (SiteProfile, bool) {
	p, ok := f[ref]
	return p, ok
}

// fakePages hands out one fakePage per site, optionally failing or stalling
// to expose the admin's serialization behaviour.
type fakePages struct {
	t     *testing.T
	mu    sync.Mutex
	pages map[string]*fakePage
	err   error

	delay       time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func newFakePages(t *testing.T) *fakePages {
	return &fakePages{t: t, pages: make(map[string]*fakePage)}
}

func (f *fakePages) PageFor(ctx context.Context, site string) (Page, error) {
	f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[site]
	if !ok {
		p = newFakePage(f.t)
		f.pages[site] = p
	}
	return p, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []TuneEvent
}

func (r *fakeRecorder) Record(ev TuneEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *fakeRecorder) all() []TuneEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TuneEvent(nil), r.events...)
}

func testAdmin(t *testing.T, profiles fakeProfiles, pages PageProvider) (*Admin, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	a := NewAdmin(AdminConfig{
		Engine:      New(testConfig()),
		Profiles:    profiles,
		Pages:       pages,
		Events:      rec,
		TuneTimeout: 2 * time.Second,
	})
	return a, rec
}

// ---------------------------------------------------------------------------
// Tune
// ---------------------------------------------------------------------------

func TestAdminTune_NavigationOnly(t *testing.T) {
	ctx := context.Background()
	pages := newFakePages(t)
	a, rec := testAdmin(t, fakeProfiles{
		"Peacock Live": {Site: "solo", Strategy: StrategyNone, Channel: "Main Feed"},
	}, pages)

	resp, err := a.Tune(ctx, "Peacock Live")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("tune failed: %s", resp.Reason)
	}
	if !strings.HasPrefix(resp.TuneID, "tune_") {
		t.Fatalf("tune id %q lacks prefix", resp.TuneID)
	}
	if resp.Channel != "Peacock Live" || resp.Site != "solo" || resp.Strategy != StrategyNone {
		t.Fatalf("response identity: %+v", resp)
	}
	// PageFor runs (navigation alone tunes a none-strategy site), but the
	// engine never touches the page.
	if pages.calls.Load() != 1 {
		t.Fatalf("PageFor called %d times, want 1", pages.calls.Load())
	}
	if pages.pages["solo"].calls != 0 {
		t.Fatalf("engine touched the page %d times", pages.pages["solo"].calls)
	}

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.TuneID != resp.TuneID || !ev.Success || ev.Strategy != StrategyNone {
		t.Fatalf("event = %+v", ev)
	}
}

func TestAdminTune_UnknownChannel(t *testing.T) {
	pages := newFakePages(t)
	a, rec := testAdmin(t, fakeProfiles{}, pages)

	_, err := a.Tune(context.Background(), "Ghost")
	var unknown *UnknownChannelError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownChannelError, got %v", err)
	}
	if unknown.Ref != "Ghost" {
		t.Fatalf("Ref = %q", unknown.Ref)
	}
	if pages.calls.Load() != 0 {
		t.Fatal("unknown channel must not request a page")
	}
	if len(rec.all()) != 0 {
		t.Fatal("unknown channel must not record an event")
	}
}

func TestAdminTune_PageFailure(t *testing.T) {
	pages := newFakePages(t)
	pages.err = fmt.Errorf("chrome went away")
	a, rec := testAdmin(t, fakeProfiles{
		"ESPN": {Site: "zap", Strategy: StrategyGuideGrid, Channel: "ESPN"},
	}, pages)

	_, err := a.Tune(context.Background(), "ESPN")
	if err == nil || !strings.Contains(err.Error(), "chrome went away") {
		t.Fatalf("err = %v", err)
	}

	// The failed attempt still lands in the event log.
	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(events))
	}
	if events[0].Success || !strings.Contains(events[0].Reason, "browser session") {
		t.Fatalf("event = %+v", events[0])
	}
}

func TestAdminTune_ResolutionFailureIsAResponse(t *testing.T) {
	pages := newFakePages(t)
	a, rec := testAdmin(t, fakeProfiles{
		"Mystery": {Site: "zap", Strategy: Strategy("mystery"), Channel: "Mystery"},
	}, pages)

	resp, err := a.Tune(context.Background(), "Mystery")
	if err != nil {
		t.Fatalf("a failed resolution is not a transport error: %v", err)
	}
	if resp.Success {
		t.Fatal("expected failure response")
	}
	if !strings.Contains(resp.Reason, `unknown strategy "mystery"`) {
		t.Fatalf("reason = %q", resp.Reason)
	}
	events := rec.all()
	if len(events) != 1 || events[0].Success {
		t.Fatalf("events = %+v", events)
	}
}

func TestAdminTune_SerializesSameSite(t *testing.T) {
	pages := newFakePages(t)
	pages.delay = 20 * time.Millisecond
	a, _ := testAdmin(t, fakeProfiles{
		"Peacock Live": {Site: "solo", Strategy: StrategyNone, Channel: "Main Feed"},
	}, pages)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Tune(context.Background(), "Peacock Live"); err != nil {
				t.Errorf("tune: %v", err)
			}
		}()
	}
	wg.Wait()

	if max := pages.maxInFlight.Load(); max != 1 {
		t.Fatalf("same-site tunes overlapped: max in flight %d", max)
	}
	if pages.calls.Load() != 4 {
		t.Fatalf("PageFor called %d times, want 4", pages.calls.Load())
	}
}

// ---------------------------------------------------------------------------
// Discover / direct URL
// ---------------------------------------------------------------------------

func TestAdminDiscover(t *testing.T) {
	ctx := context.Background()
	pages := newFakePages(t)
	a, _ := testAdmin(t, fakeProfiles{
		"ABC": {Site: "list", Strategy: StrategyLabelLink, Channel: "ABC"},
	}, pages)

	page := newFakePage(t)
	page.evalFn[jsAllLabels] = func([]any) (any, error) {
		return []string{"ABC 7", "CBS  2", "ABC 7"}, nil
	}
	pages.pages["list"] = page

	names, err := a.Discover(ctx, "ABC")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "abc 7" || names[1] != "cbs 2" {
		t.Fatalf("names = %v", names)
	}

	_, err = a.Discover(ctx, "Ghost")
	var unknown *UnknownChannelError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownChannelError, got %v", err)
	}
}

func TestAdminDiscover_Unsupported(t *testing.T) {
	pages := newFakePages(t)
	a, _ := testAdmin(t, fakeProfiles{
		"NBC": {Site: "logos", Strategy: StrategyImageTile, Channel: "nbc-logo"},
	}, pages)

	_, err := a.Discover(context.Background(), "NBC")
	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
}

func TestAdminDirectURL(t *testing.T) {
	ctx := context.Background()
	pages := newFakePages(t)
	a, _ := testAdmin(t, fakeProfiles{
		"Fox News": {Site: "stream", Strategy: StrategyChannelRail, Channel: "Fox News"},
	}, pages)

	resp, err := a.DirectURL(ctx, "Fox News")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Found {
		t.Fatalf("cold cache reported a URL: %+v", resp)
	}

	for _, entry := range a.cfg.Engine.reg.entries {
		if rail, ok := entry.impl.(*railStrategy); ok {
			rail.urls.PutWatch("stream", "fox news", "https://tv.example.com/watch/fox")
		}
	}

	resp, err = a.DirectURL(ctx, "Fox News")
	if err != nil || !resp.Found {
		t.Fatalf("DirectURL = %+v, %v", resp, err)
	}
	if resp.URL != "https://tv.example.com/watch/fox" {
		t.Fatalf("URL = %q", resp.URL)
	}

	if err := a.InvalidateDirectURL("Fox News"); err != nil {
		t.Fatal(err)
	}
	resp, _ = a.DirectURL(ctx, "Fox News")
	if resp.Found {
		t.Fatal("invalidated URL still returned")
	}

	if err := a.InvalidateDirectURL("Ghost"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

func adminServer(t *testing.T, a *Admin) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		a.RegisterRoutes(r)
		r.Get("/channels/discover", a.HandleDiscover)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestAdminHTTP_Tune(t *testing.T) {
	pages := newFakePages(t)
	a, _ := testAdmin(t, fakeProfiles{
		"Peacock Live": {Site: "solo", Strategy: StrategyNone, Channel: "Main Feed"},
	}, pages)
	srv := adminServer(t, a)

	resp, err := http.Post(srv.URL+"/v1/tune", "application/json",
		bytes.NewReader([]byte(`{"channel":"Peacock Live"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tune = %d", resp.StatusCode)
	}
	var tr TuneResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatal(err)
	}
	if !tr.Success || tr.Channel != "Peacock Live" {
		t.Fatalf("response = %+v", tr)
	}

	// Unknown channel maps to 404.
	resp, err = http.Post(srv.URL+"/v1/tune", "application/json",
		bytes.NewReader([]byte(`{"channel":"Ghost"}`)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown channel = %d, want 404", resp.StatusCode)
	}

	// Empty body and empty channel are client bugs.
	for _, body := range []string{"", `{}`} {
		resp, err = http.Post(srv.URL+"/v1/tune", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestAdminHTTP_ClearCaches(t *testing.T) {
	pages := newFakePages(t)
	a, _ := testAdmin(t, fakeProfiles{}, pages)
	srv := adminServer(t, a)

	var grid *gridStrategy
	for _, entry := range a.cfg.Engine.reg.entries {
		if g, ok := entry.impl.(*gridStrategy); ok {
			grid = g
		}
	}
	grid.rows.Put("zap", "espn", 13)

	resp, err := http.Post(srv.URL+"/v1/caches/clear", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear = %d", resp.StatusCode)
	}
	if grid.rows.Len() != 0 {
		t.Fatal("row cache survived the clear endpoint")
	}
}

func TestAdminHTTP_Discover(t *testing.T) {
	pages := newFakePages(t)
	a, _ := testAdmin(t, fakeProfiles{
		"ABC": {Site: "list", Strategy: StrategyLabelLink, Channel: "ABC"},
	}, pages)
	page := newFakePage(t)
	page.evalFn[jsAllLabels] = func([]any) (any, error) {
		return []string{"ABC 7"}, nil
	}
	pages.pages["list"] = page
	srv := adminServer(t, a)

	resp, err := http.Get(srv.URL + "/v1/channels/discover?channel=ABC")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discover = %d", resp.StatusCode)
	}
	var out struct {
		Channel  string   `json:"channel"`
		Channels []string `json:"channels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Channel != "ABC" || len(out.Channels) != 1 || out.Channels[0] != "abc 7" {
		t.Fatalf("out = %+v", out)
	}

	resp, err = http.Get(srv.URL + "/v1/channels/discover")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing channel = %d, want 400", resp.StatusCode)
	}
}

func TestAdminHTTP_DirectURL(t *testing.T) {
	pages := newFakePages(t)
	a, _ := testAdmin(t, fakeProfiles{
		"Fox News": {Site: "stream", Strategy: StrategyChannelRail, Channel: "Fox News"},
	}, pages)
	srv := adminServer(t, a)

	for _, entry := range a.cfg.Engine.reg.entries {
		if rail, ok := entry.impl.(*railStrategy); ok {
			rail.urls.PutWatch("stream", "fox news", "https://tv.example.com/watch/fox")
		}
	}

	resp, err := http.Get(srv.URL + "/v1/direct-url?channel=Fox+News")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("direct-url = %d", resp.StatusCode)
	}
	var dr DirectURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		t.Fatal(err)
	}
	if !dr.Found || dr.URL != "https://tv.example.com/watch/fox" {
		t.Fatalf("response = %+v", dr)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/direct-url?channel=Fox+News", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("invalidate = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/direct-url?channel=Fox+News")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	dr = DirectURLResponse{}
	json.NewDecoder(resp.Body).Decode(&dr)
	if dr.Found {
		t.Fatal("invalidated URL still served")
	}
}

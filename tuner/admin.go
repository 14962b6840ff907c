// CLAUDE:SUMMARY Admin surface over the engine: tune/discover/direct-URL/cache-clear operations exposed as HTTP routes, with per-site serialization and event recording.

package tuner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/zapper/idgen"
)

// ProfileSource resolves a channel reference (name or dial number) to the
// site profile the engine dispatches on. The lineup store implements it.
type ProfileSource interface {
	Profile(ref string) (SiteProfile, bool)
}

// PageProvider hands the admin layer a driving page for a site. The daemon
// implements it over the browser session pool: one stealth tab per site,
// reused across tunes, replaced wholesale on browser recycle.
type PageProvider interface {
	PageFor(ctx context.Context, site string) (Page, error)
}

// TuneEvent is the outcome record of one resolution attempt, handed to the
// event recorder after the engine returns.
type TuneEvent struct {
	TuneID   string
	Channel  string
	Site     string
	Strategy Strategy
	Success  bool
	Reason   string
	Duration time.Duration
}

// EventRecorder receives each tune outcome. The tune event log implements
// it; recording is fire-and-forget so a slow disk never extends a tune.
type EventRecorder interface {
	Record(ev TuneEvent)
}

// UnknownChannelError reports a channel reference absent from the lineup.
type UnknownChannelError struct {
	Ref string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("tuner: unknown channel %q", e.Ref)
}

// AdminConfig wires an Admin. Engine, Profiles, and Pages are required;
// Events is optional (nil disables event recording).
type AdminConfig struct {
	Engine   *Engine
	Profiles ProfileSource
	Pages    PageProvider
	Events   EventRecorder

	// TuneTimeout bounds one whole tune: page acquisition plus resolution.
	// Default: 90s.
	TuneTimeout time.Duration

	// NewID generates tune IDs. Default: idgen.TuneID.
	NewID idgen.Generator

	Logger *slog.Logger
}

func (c *AdminConfig) defaults() {
	if c.TuneTimeout <= 0 {
		c.TuneTimeout = 90 * time.Second
	}
	if c.NewID == nil {
		c.NewID = idgen.TuneID
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Admin is the operational surface over the engine: tune, discover,
// direct-URL, cache clear. It owns two responsibilities the engine
// deliberately does not: resolving channel references through the lineup,
// and serializing resolutions that would share a page.
type Admin struct {
	cfg AdminConfig
	log *slog.Logger

	// One mutex per site: the engine forbids concurrent resolutions on the
	// same page, and the page provider hands out one page per site.
	mu        sync.Mutex
	siteLocks map[string]*sync.Mutex
}

// NewAdmin creates the admin surface.
func NewAdmin(cfg AdminConfig) *Admin {
	cfg.defaults()
	return &Admin{
		cfg:       cfg,
		log:       cfg.Logger,
		siteLocks: make(map[string]*sync.Mutex),
	}
}

// TuneResponse is the JSON result of one tune request.
type TuneResponse struct {
	TuneID     string   `json:"tune_id"`
	Channel    string   `json:"channel"`
	Site       string   `json:"site"`
	Strategy   Strategy `json:"strategy"`
	Success    bool     `json:"success"`
	Reason     string   `json:"reason,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// Tune resolves a channel reference through the lineup and runs exactly one
// resolution against the site's page. A failed resolution is a normal
// response, not an error; errors mean the request never reached the engine
// (unknown channel, no page).
func (a *Admin) Tune(ctx context.Context, ref string) (TuneResponse, error) {
	profile, ok := a.cfg.Profiles.Profile(ref)
	if !ok {
		return TuneResponse{}, &UnknownChannelError{Ref: ref}
	}

	tuneID := a.cfg.NewID()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.TuneTimeout)
	defer cancel()

	unlock := a.lockSite(profile.Site)
	defer unlock()

	a.log.Info("tuner: tune started",
		"tune_id", tuneID, "channel", ref, "site", profile.Site, "strategy", profile.Strategy)

	start := time.Now()
	page, err := a.cfg.Pages.PageFor(ctx, profile.Site)
	if err != nil {
		a.record(TuneEvent{
			TuneID: tuneID, Channel: ref, Site: profile.Site, Strategy: profile.Strategy,
			Reason: "browser session: " + err.Error(), Duration: time.Since(start),
		})
		return TuneResponse{}, fmt.Errorf("tuner: page for site %s: %w", profile.Site, err)
	}

	res := a.cfg.Engine.Resolve(ctx, page, profile)
	elapsed := time.Since(start)

	a.record(TuneEvent{
		TuneID: tuneID, Channel: ref, Site: profile.Site, Strategy: profile.Strategy,
		Success: res.Success, Reason: res.Reason, Duration: elapsed,
	})
	a.log.Info("tuner: tune finished",
		"tune_id", tuneID, "channel", ref, "success", res.Success, "duration", elapsed)

	return TuneResponse{
		TuneID:     tuneID,
		Channel:    ref,
		Site:       profile.Site,
		Strategy:   profile.Strategy,
		Success:    res.Success,
		Reason:     res.Reason,
		DurationMs: elapsed.Milliseconds(),
	}, nil
}

// ClearCaches drops every session cache in the engine.
func (a *Admin) ClearCaches() {
	a.cfg.Engine.ClearAllCaches()
}

// Discover walks the full guide of the referenced channel's site and returns
// every discoverable channel name, normalized. Diagnostic: an operator uses
// it to find the exact names the guide renders before adding lineup entries.
func (a *Admin) Discover(ctx context.Context, ref string) ([]string, error) {
	profile, ok := a.cfg.Profiles.Profile(ref)
	if !ok {
		return nil, &UnknownChannelError{Ref: ref}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.TuneTimeout)
	defer cancel()

	unlock := a.lockSite(profile.Site)
	defer unlock()

	page, err := a.cfg.Pages.PageFor(ctx, profile.Site)
	if err != nil {
		return nil, fmt.Errorf("tuner: page for site %s: %w", profile.Site, err)
	}
	return a.cfg.Engine.Enumerate(ctx, page, profile)
}

// DirectURLResponse reports whether a skip-ahead watch URL is known for a
// channel.
type DirectURLResponse struct {
	Channel string `json:"channel"`
	URL     string `json:"url,omitempty"`
	Found   bool   `json:"found"`
}

// DirectURL returns the cached skip-ahead watch URL for the referenced
// channel, when its strategy supports one.
func (a *Admin) DirectURL(ctx context.Context, ref string) (DirectURLResponse, error) {
	profile, ok := a.cfg.Profiles.Profile(ref)
	if !ok {
		return DirectURLResponse{}, &UnknownChannelError{Ref: ref}
	}

	unlock := a.lockSite(profile.Site)
	defer unlock()

	page, err := a.cfg.Pages.PageFor(ctx, profile.Site)
	if err != nil {
		return DirectURLResponse{}, fmt.Errorf("tuner: page for site %s: %w", profile.Site, err)
	}
	url, found, err := a.cfg.Engine.DirectURL(ctx, page, profile)
	if err != nil {
		return DirectURLResponse{}, err
	}
	return DirectURLResponse{Channel: ref, URL: url, Found: found}, nil
}

// InvalidateDirectURL drops the cached watch URL for the referenced channel,
// typically after the caller observed the URL no longer plays.
func (a *Admin) InvalidateDirectURL(ref string) error {
	profile, ok := a.cfg.Profiles.Profile(ref)
	if !ok {
		return &UnknownChannelError{Ref: ref}
	}
	a.cfg.Engine.InvalidateDirectURL(profile)
	return nil
}

func (a *Admin) record(ev TuneEvent) {
	if a.cfg.Events != nil {
		a.cfg.Events.Record(ev)
	}
}

func (a *Admin) lockSite(site string) (unlock func()) {
	a.mu.Lock()
	l, ok := a.siteLocks[site]
	if !ok {
		l = &sync.Mutex{}
		a.siteLocks[site] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ---------- HTTP ----------

// RegisterRoutes mounts the tune operations, typically under /v1:
// POST /tune, POST /caches/clear, GET+DELETE /direct-url. The discover
// handler is exported separately so the daemon can place it inside the
// channels route group.
func (a *Admin) RegisterRoutes(r chi.Router) {
	r.Post("/tune", a.handleTune)
	r.Post("/caches/clear", a.handleClearCaches)
	r.Get("/direct-url", a.handleDirectURL)
	r.Delete("/direct-url", a.handleInvalidateDirectURL)
}

type tuneRequest struct {
	Channel string `json:"channel"`
}

func (a *Admin) handleTune(w http.ResponseWriter, r *http.Request) {
	var req tuneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("tuner: decode request: %w", err))
		return
	}
	if req.Channel == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("tuner: request needs a channel"))
		return
	}
	resp, err := a.Tune(r.Context(), req.Channel)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Admin) handleClearCaches(w http.ResponseWriter, _ *http.Request) {
	a.ClearCaches()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleDiscover serves GET …/channels/discover?channel=REF. Exported as a
// bare handler: it lives inside the channels route group next to the lineup
// CRUD, which a different package owns.
func (a *Admin) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("channel")
	if ref == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("tuner: discover needs a channel parameter"))
		return
	}
	names, err := a.Discover(r.Context(), ref)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": ref, "channels": names})
}

func (a *Admin) handleDirectURL(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("channel")
	if ref == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("tuner: direct-url needs a channel parameter"))
		return
	}
	resp, err := a.DirectURL(r.Context(), ref)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Admin) handleInvalidateDirectURL(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("channel")
	if ref == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("tuner: direct-url needs a channel parameter"))
		return
	}
	if err := a.InvalidateDirectURL(ref); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	var unknown *UnknownChannelError
	var unsupported *UnsupportedError
	var badStrategy *UnknownStrategyError
	switch {
	case errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.As(err, &unsupported), errors.As(err, &badStrategy):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

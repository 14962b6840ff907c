// CLAUDE:SUMMARY Resolution coordinator: dispatches site profiles to registered strategies and owns the cache-clear hook.

// Package tuner locates and activates one channel inside a third-party web
// player that hosts many channels behind a single guide page. It is the
// tuning layer of the capture service: given a page handle and a site
// profile it picks the configured resolution strategy, searches the guide
// UI, and triggers playback.
//
// The hard part is partial observability: virtualized guides materialize
// only a small window of a long sorted list in any DOM snapshot, so the
// grid strategy runs a bounded binary search with call-sign position
// inference and a linear fallback. Session caches (row positions,
// discovered URLs) cut repeat tunes to a single confirmation read; they are
// owned here and cleared as a unit when the browser session restarts.
//
// The engine never retries a whole resolution and never decides which
// channel to tune; both belong to the caller.
package tuner

import (
	"context"
	"log/slog"
	"time"
)

// Budgets for the search and activation tiers. They bound worst-case tune
// latency; changing them changes the latency contract, so they are fixed
// rather than configurable.
const (
	maxSearchIterations = 12
	linearScanStride    = 10
	activationAttempts  = 3
)

// Config carries the engine's timeout constants.
type Config struct {
	// ImagePollTimeout bounds the pre-dispatch wait for identifier images.
	ImagePollTimeout time.Duration
	// NavigateTimeout bounds each page navigation.
	NavigateTimeout time.Duration
	// WaitTimeout bounds element and predicate waits.
	WaitTimeout time.Duration
	// SettleDelay is the pause after scrolls before reading or clicking.
	SettleDelay time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ImagePollTimeout <= 0 {
		c.ImagePollTimeout = 10 * time.Second
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 25 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 350 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine is the resolution coordinator. One Engine serves every site; the
// per-site state lives in the strategy-owned caches. Safe for concurrent
// use across distinct pages.
type Engine struct {
	cfg Config
	log *slog.Logger
	reg *registry
}

// New constructs an Engine with all strategies registered.
func New(cfg Config) *Engine {
	cfg.defaults()

	grid := newGridStrategy(cfg)
	rail := newRailStrategy(cfg)
	tile := newImageTileStrategy(cfg)
	label := newLabelLinkStrategy(cfg)

	reg := newRegistry()
	reg.register(&strategyEntry{name: StrategyGuideGrid, execute: grid.execute, impl: grid})
	reg.register(&strategyEntry{name: StrategyChannelRail, execute: rail.execute, impl: rail})
	reg.register(&strategyEntry{name: StrategyImageTile, imageIdentifier: true, execute: tile.execute, impl: tile})
	reg.register(&strategyEntry{name: StrategyLabelLink, execute: label.execute, impl: label})

	return &Engine{cfg: cfg, log: cfg.Logger, reg: reg}
}

// Resolve locates and activates the profile's channel on the given page.
// It never swallows or rewrites a strategy's result; failures carry a
// human-actionable reason and are logged once here.
func (e *Engine) Resolve(ctx context.Context, page Page, profile SiteProfile) Result {
	// Single-channel sites tune by navigation alone.
	if profile.Strategy == StrategyNone || profile.Channel == "" {
		return succeed()
	}

	entry := e.reg.lookup(profile.Strategy)
	if entry == nil {
		e.log.Error("tuner: unknown strategy", "strategy", profile.Strategy, "site", profile.Site)
		return fail("unknown strategy %q for site %s", profile.Strategy, profile.Site)
	}

	if entry.imageIdentifier {
		// Logo tiles render before their image finishes loading; a match
		// on a half-loaded tile misclicks. The timeout is non-fatal: the
		// strategy's own search reports a precise miss.
		if err := page.WaitFor(ctx, jsImageLoaded, e.cfg.ImagePollTimeout, profile.Channel); err != nil {
			e.log.Warn("tuner: identifier image not loaded, dispatching anyway",
				"site", profile.Site, "channel", profile.Channel, "error", err)
		}
	}

	res := entry.execute(ctx, page, profile)
	if !res.Success {
		e.log.Warn("tuner: resolution failed",
			"site", profile.Site, "strategy", profile.Strategy,
			"channel", profile.Channel, "reason", res.Reason)
	} else {
		e.log.Debug("tuner: resolved",
			"site", profile.Site, "strategy", profile.Strategy, "channel", profile.Channel)
	}
	return res
}

// ClearAllCaches drops every session cache in every strategy. The browser
// manager invokes this after recycling Chrome: row positions and discovered
// URLs describe pages of the dead process.
func (e *Engine) ClearAllCaches() {
	for _, entry := range e.reg.entries {
		if c, ok := entry.impl.(cacheClearer); ok {
			c.clearCaches()
		}
	}
	e.log.Info("tuner: all session caches cleared")
}

// DirectURL returns a cached skip-ahead watch URL for providers that
// support it. found is false when the provider has no cached URL or the
// strategy has no direct-URL capability.
func (e *Engine) DirectURL(ctx context.Context, page Page, profile SiteProfile) (url string, found bool, err error) {
	entry := e.reg.lookup(profile.Strategy)
	if entry == nil {
		return "", false, &UnknownStrategyError{Strategy: profile.Strategy}
	}
	dr, ok := entry.impl.(directResolver)
	if !ok {
		return "", false, nil
	}
	url, found = dr.directURL(ctx, page, profile)
	return url, found, nil
}

// InvalidateDirectURL drops the cached watch URL for the profile's channel,
// typically after the caller observed the URL no longer plays.
func (e *Engine) InvalidateDirectURL(profile SiteProfile) {
	entry := e.reg.lookup(profile.Strategy)
	if entry == nil {
		return
	}
	if dr, ok := entry.impl.(directResolver); ok {
		dr.invalidateDirectURL(profile)
	}
}

// Enumerate walks the profile's guide and returns every discoverable
// channel name, normalized. Used by lineup discovery; not every strategy
// supports it.
func (e *Engine) Enumerate(ctx context.Context, page Page, profile SiteProfile) ([]string, error) {
	entry := e.reg.lookup(profile.Strategy)
	if entry == nil {
		return nil, &UnknownStrategyError{Strategy: profile.Strategy}
	}
	en, ok := entry.impl.(enumerator)
	if !ok {
		return nil, &UnsupportedError{Op: "enumerate", Strategy: profile.Strategy}
	}
	return en.enumerate(ctx, page, profile)
}

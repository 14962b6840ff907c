// CLAUDE:SUMMARY Rail strategy: discover the live-TV sub-page from a landing page, scrape a lazy tile rail for a watch URL, one-shot stale-cache recovery.
package tuner

import (
	"context"
	"fmt"
	"log/slog"
)

// Rail strategy defaults when the profile leaves them empty.
const (
	defaultDiscoverLabel = "Live TV"
	defaultRailMarker    = `[data-rail], .channel-rail`
)

const (
	// jsLinkByLabel is a predicate: a link whose accessible label matches
	// exists on the page.
	jsLinkByLabel = `(label) => {
		const want = label.trim().toLowerCase().replace(/\s+/g, ' ');
		const links = document.querySelectorAll('a[href]');
		for (const a of links) {
			const l = ((a.getAttribute('aria-label') || a.textContent) || '').trim().toLowerCase().replace(/\s+/g, ' ');
			if (l === want) return true;
		}
		return false;
	}`

	// jsDiscoverHref extracts the destination of the labeled link.
	jsDiscoverHref = `(label) => {
		const want = label.trim().toLowerCase().replace(/\s+/g, ' ');
		const links = document.querySelectorAll('a[href]');
		for (const a of links) {
			const l = ((a.getAttribute('aria-label') || a.textContent) || '').trim().toLowerCase().replace(/\s+/g, ' ');
			if (l === want) return { found: true, href: a.getAttribute('href') };
		}
		return { found: false };
	}`

	// jsRailPopulated is a predicate: the rail's lazy tiles have mounted
	// at least one link.
	jsRailPopulated = `(sel) => {
		const rail = document.querySelector(sel);
		return !!rail && rail.querySelectorAll('a[href]').length > 0;
	}`

	// jsRailLinks reads every tile link with its backup text label (alt
	// text or aria-label; tiles are logo images).
	jsRailLinks = `(sel) => {
		const rail = document.querySelector(sel);
		if (!rail) return [];
		return Array.from(rail.querySelectorAll('a[href]')).map(a => {
			const img = a.querySelector('img');
			const label = (a.getAttribute('aria-label') || (img && img.alt) || a.textContent || '').trim();
			return { label: label, href: a.getAttribute('href') };
		});
	}`
)

type hrefHit struct {
	Found bool   `json:"found"`
	Href  string `json:"href"`
}

type railLink struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// railStrategy tunes via two-phase navigation: discover the live-guide
// sub-page from a landing page, then scrape its lazily populated tile rail
// for the channel's watch URL and navigate to it.
type railStrategy struct {
	urls *URLCache
	cfg  Config
	log  *slog.Logger
}

func newRailStrategy(cfg Config) *railStrategy {
	return &railStrategy{urls: NewURLCache(), cfg: cfg, log: cfg.Logger}
}

func (s *railStrategy) clearCaches() { s.urls.Clear() }

func (s *railStrategy) execute(ctx context.Context, page Page, profile SiteProfile) Result {
	target := Normalize(profile.Channel)

	dest, usedCache := s.urls.Dest(profile.Site)
	if !usedCache {
		var err error
		dest, err = s.discover(ctx, page, profile)
		if err != nil {
			return fail("discover live guide from %s: %v", profile.GuideURL, err)
		}
	}

	// At most one rediscovery per tune, and only when the failing
	// destination came from cache. A second failure is terminal.
	retried := false
	for {
		err := s.openRail(ctx, page, profile, dest)
		if err == nil {
			break
		}
		if usedCache && !retried {
			retried = true
			usedCache = false
			s.urls.InvalidateDest(profile.Site)
			s.log.Info("tuner: cached rail destination stale, rediscovering",
				"site", profile.Site, "dest", dest)
			dest, err = s.discover(ctx, page, profile)
			if err != nil {
				return fail("rediscover live guide after stale cache: %v", err)
			}
			continue
		}
		return fail("channel rail never appeared at %s while tuning %q: %v", dest, profile.Channel, err)
	}

	watchURL, res := s.scanRail(ctx, page, profile, target, dest)
	if !res.Success {
		return res
	}

	if err := page.Navigate(ctx, watchURL, s.cfg.NavigateTimeout); err != nil {
		return fail("open watch page %s for %q: %v", watchURL, profile.Channel, err)
	}
	return succeed()
}

// discover runs Phase A: from the landing page, extract the live-guide
// destination by accessible label and cache it for the site.
func (s *railStrategy) discover(ctx context.Context, page Page, profile SiteProfile) (string, error) {
	if profile.GuideURL == "" {
		return "", fmt.Errorf("no landing page configured for site %s", profile.Site)
	}
	if err := page.Navigate(ctx, profile.GuideURL, s.cfg.NavigateTimeout); err != nil {
		return "", err
	}

	label := profile.DiscoverLabel
	if label == "" {
		label = defaultDiscoverLabel
	}
	if err := page.WaitFor(ctx, jsLinkByLabel, s.cfg.WaitTimeout, label); err != nil {
		return "", fmt.Errorf("no link labeled %q on %s: %w", label, profile.GuideURL, err)
	}

	var hit hrefHit
	if err := page.Eval(ctx, jsDiscoverHref, &hit, label); err != nil {
		return "", err
	}
	if !hit.Found {
		return "", fmt.Errorf("link labeled %q vanished from %s", label, profile.GuideURL)
	}

	dest, err := resolveDestURL(profile.GuideURL, hit.Href)
	if err != nil {
		return "", err
	}
	s.urls.PutDest(profile.Site, dest)
	return dest, nil
}

// openRail runs Phase B: navigate to the destination, wait for the rail
// marker, scroll it into the viewport so the lazy tiles mount, and wait
// for tile links to appear.
func (s *railStrategy) openRail(ctx context.Context, page Page, profile SiteProfile, dest string) error {
	if err := page.Navigate(ctx, dest, s.cfg.NavigateTimeout); err != nil {
		return err
	}

	marker := profile.RailSelector
	if marker == "" {
		marker = defaultRailMarker
	}
	if err := page.WaitFor(ctx, jsSelectorInteractable, s.cfg.WaitTimeout, marker); err != nil {
		return fmt.Errorf("rail marker %q: %w", marker, err)
	}
	if _, ok, err := selectorCenter(ctx, page, marker); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("rail marker %q vanished after wait", marker)
	}
	if err := page.WaitFor(ctx, jsRailPopulated, s.cfg.WaitTimeout, marker); err != nil {
		return fmt.Errorf("rail tiles never populated: %w", err)
	}
	return nil
}

// scanRail runs Phase C: match tile labels against the target and extract
// a validated watch URL. The per-channel result backs the direct-URL
// capability for future skip-ahead tunes.
func (s *railStrategy) scanRail(ctx context.Context, page Page, profile SiteProfile, target, dest string) (string, Result) {
	marker := profile.RailSelector
	if marker == "" {
		marker = defaultRailMarker
	}

	var links []railLink
	if err := page.Eval(ctx, jsRailLinks, &links, marker); err != nil {
		return "", fail("read rail tiles for %q: %v", profile.Channel, err)
	}

	for _, l := range links {
		if Normalize(l.Label) != target {
			continue
		}
		watch, err := resolveWatchURL(dest, l.Href)
		if err != nil {
			s.log.Warn("tuner: rail tile link not playable",
				"site", profile.Site, "channel", profile.Channel, "href", l.Href, "error", err)
			continue
		}
		s.urls.PutWatch(profile.Site, target, watch)
		return watch, succeed()
	}
	return "", fail("channel %q not on the rail at %s (%d tiles scanned); the label must match the tile's alt text exactly", profile.Channel, dest, len(links))
}

// directURL returns the cached watch URL for skip-ahead navigation.
func (s *railStrategy) directURL(_ context.Context, _ Page, profile SiteProfile) (string, bool) {
	return s.urls.Watch(profile.Site, Normalize(profile.Channel))
}

func (s *railStrategy) invalidateDirectURL(profile SiteProfile) {
	s.urls.InvalidateWatch(profile.Site, Normalize(profile.Channel))
}

// enumerate opens the rail and returns every tile label, normalized.
func (s *railStrategy) enumerate(ctx context.Context, page Page, profile SiteProfile) ([]string, error) {
	dest, ok := s.urls.Dest(profile.Site)
	if !ok {
		var err error
		dest, err = s.discover(ctx, page, profile)
		if err != nil {
			return nil, fmt.Errorf("tuner: discover: %w", err)
		}
	}
	if err := s.openRail(ctx, page, profile, dest); err != nil {
		return nil, fmt.Errorf("tuner: open rail: %w", err)
	}

	marker := profile.RailSelector
	if marker == "" {
		marker = defaultRailMarker
	}
	var links []railLink
	if err := page.Eval(ctx, jsRailLinks, &links, marker); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	for _, l := range links {
		name := Normalize(l.Label)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// CLAUDE:SUMMARY Label-link strategy: exact accessible-label match with "{Network} {Number}" affiliate fallback and alternate-name table.
package tuner

import (
	"context"
	"log/slog"
)

// AlternateNames maps a normalized channel name to label spellings some
// regional guides use instead. Checked only after the exact and
// prefix-plus-number passes miss. Deployments extend it at startup for
// local quirks.
var AlternateNames = map[string][]string{
	"the cw":  {"cw"},
	"ion":     {"ion television"},
	"me tv":   {"metv"},
	"cozi tv": {"cozi"},
}

const (
	// jsLabelHref finds a link by exact case-insensitive accessible label.
	jsLabelHref = `(label) => {
		const want = label.trim().toLowerCase().replace(/\s+/g, ' ');
		const links = document.querySelectorAll('a[aria-label], [role="link"][aria-label]');
		for (const a of links) {
			const l = a.getAttribute('aria-label').trim().toLowerCase().replace(/\s+/g, ' ');
			if (l === want) return { found: true, href: a.getAttribute('href') || '' };
		}
		return { found: false };
	}`

	// jsLabelPrefixHref matches "{Network} {Number}" affiliate labels:
	// the target name followed by a space and a digit ("NBC 5" for "NBC").
	jsLabelPrefixHref = `(prefix) => {
		const want = prefix.trim().toLowerCase().replace(/\s+/g, ' ') + ' ';
		const links = document.querySelectorAll('a[aria-label], [role="link"][aria-label]');
		for (const a of links) {
			const l = a.getAttribute('aria-label').trim().toLowerCase().replace(/\s+/g, ' ');
			if (l.indexOf(want) === 0 && /^[0-9]/.test(l.slice(want.length))) {
				return { found: true, href: a.getAttribute('href') || '' };
			}
		}
		return { found: false };
	}`

	// jsAllLabels lists every accessible label in the channel list.
	jsAllLabels = `() => {
		return Array.from(document.querySelectorAll('a[aria-label], [role="link"][aria-label]'))
			.map(a => a.getAttribute('aria-label').trim())
			.filter(s => s.length > 0);
	}`
)

// labelLinkStrategy handles non-virtualized guides where the entire channel
// list is present at once: one attribute-selector query per matching pass,
// then direct navigation to the extracted link. No clicks, no caching.
type labelLinkStrategy struct {
	cfg Config
	log *slog.Logger
}

func newLabelLinkStrategy(cfg Config) *labelLinkStrategy {
	return &labelLinkStrategy{cfg: cfg, log: cfg.Logger}
}

func (s *labelLinkStrategy) execute(ctx context.Context, page Page, profile SiteProfile) Result {
	target := Normalize(profile.Channel)

	href, ok, err := s.lookup(ctx, page, jsLabelHref, target)
	if err != nil {
		return fail("label query for %q: %v", profile.Channel, err)
	}
	if !ok {
		// Local affiliates label themselves "{Network} {Number}".
		href, ok, err = s.lookup(ctx, page, jsLabelPrefixHref, target)
		if err != nil {
			return fail("affiliate label query for %q: %v", profile.Channel, err)
		}
	}
	if !ok {
		for _, alt := range AlternateNames[target] {
			href, ok, err = s.lookup(ctx, page, jsLabelHref, alt)
			if err != nil {
				return fail("alternate label query %q for %q: %v", alt, profile.Channel, err)
			}
			if ok {
				s.log.Debug("tuner: matched alternate label",
					"channel", profile.Channel, "alternate", alt)
				break
			}
		}
	}
	if !ok {
		return fail("no channel link labeled %q (exact, numbered-affiliate, and alternate spellings tried)", profile.Channel)
	}

	base, err := page.CurrentURL(ctx)
	if err != nil {
		return fail("read page location for %q: %v", profile.Channel, err)
	}
	watch, err := resolveWatchURL(base, href)
	if err != nil {
		return fail("channel link for %q is not playable: %v", profile.Channel, err)
	}

	if err := page.Navigate(ctx, watch, s.cfg.NavigateTimeout); err != nil {
		return fail("open watch page %s for %q: %v", watch, profile.Channel, err)
	}
	return succeed()
}

func (s *labelLinkStrategy) lookup(ctx context.Context, page Page, js, label string) (string, bool, error) {
	var hit hrefHit
	if err := page.Eval(ctx, js, &hit, label); err != nil {
		return "", false, err
	}
	return hit.Href, hit.Found, nil
}

// directURL scans the rendered list for the channel's link without tuning.
// Nothing is cached: the list is a single query away, so a live scan is as
// cheap as a cache probe and never goes stale.
func (s *labelLinkStrategy) directURL(ctx context.Context, page Page, profile SiteProfile) (string, bool) {
	target := Normalize(profile.Channel)

	href, ok, err := s.lookup(ctx, page, jsLabelHref, target)
	if err != nil {
		return "", false
	}
	if !ok {
		href, ok, err = s.lookup(ctx, page, jsLabelPrefixHref, target)
		if err != nil {
			return "", false
		}
	}
	if !ok {
		return "", false
	}

	base, err := page.CurrentURL(ctx)
	if err != nil {
		return "", false
	}
	watch, err := resolveWatchURL(base, href)
	if err != nil {
		return "", false
	}
	return watch, true
}

func (s *labelLinkStrategy) invalidateDirectURL(SiteProfile) {}

// enumerate returns every accessible label in the fully rendered list.
func (s *labelLinkStrategy) enumerate(ctx context.Context, page Page, _ SiteProfile) ([]string, error) {
	var labels []string
	if err := page.Eval(ctx, jsAllLabels, &labels); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var names []string
	for _, l := range labels {
		name := Normalize(l)
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

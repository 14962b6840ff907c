package tuner

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// watchPathPattern is the shape a playable watch path must take. Guide
// pages link to schedules, detail pages, and promos from the same tiles;
// only paths of this shape start playback.
var watchPathPattern = regexp.MustCompile(`^/(?:watch|live|channel)/[A-Za-z0-9._~-]+`)

// sameSite reports whether two URLs share a registered domain (eTLD+1),
// so subdomain hops stay acceptable but off-site links are rejected.
func sameSite(a, b *url.URL) bool {
	if strings.EqualFold(a.Hostname(), b.Hostname()) {
		return true
	}
	ad, err1 := publicsuffix.EffectiveTLDPlusOne(a.Hostname())
	bd, err2 := publicsuffix.EffectiveTLDPlusOne(b.Hostname())
	return err1 == nil && err2 == nil && strings.EqualFold(ad, bd)
}

// resolveWatchURL resolves href against base, rejecting links that leave
// the site or whose path is not a playable watch path.
func resolveWatchURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	abs := b.ResolveReference(ref)
	if !sameSite(b, abs) {
		return "", fmt.Errorf("link %s leaves site %s", abs, b.Hostname())
	}
	if !watchPathPattern.MatchString(abs.Path) {
		return "", fmt.Errorf("path %q is not a watch path", abs.Path)
	}
	return abs.String(), nil
}

// resolveDestURL resolves a discovered guide destination against the
// landing page, requiring only that it stays on site.
func resolveDestURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	if ref.String() == "" {
		return "", fmt.Errorf("empty destination link")
	}
	abs := b.ResolveReference(ref)
	if !sameSite(b, abs) {
		return "", fmt.Errorf("link %s leaves site %s", abs, b.Hostname())
	}
	return abs.String(), nil
}

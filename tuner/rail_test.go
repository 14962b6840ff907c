package tuner

import (
	"context"
	"strings"
	"testing"
)

const (
	railLanding = "https://tv.example.com/"
	railDest    = "https://tv.example.com/live"
)

// newRailSite scripts a two-page provider: a landing page whose labeled link
// points at /live, and the /live page carrying a populated tile rail.
func newRailSite(t *testing.T, tiles []railLink) *fakePage {
	page := newFakePage(t)
	page.waitFn[jsLinkByLabel] = func([]any) bool {
		return page.currentURL == railLanding
	}
	page.evalFn[jsDiscoverHref] = func([]any) (any, error) {
		if page.currentURL != railLanding {
			return hrefHit{}, nil
		}
		return hrefHit{Found: true, Href: "/live"}, nil
	}
	page.waitFn[jsSelectorInteractable] = func([]any) bool {
		return page.currentURL == railDest
	}
	page.evalFn[jsSelectorCenter] = func([]any) (any, error) {
		if page.currentURL != railDest {
			return centerHit{Found: false}, nil
		}
		return centerHit{Found: true, X: 50, Y: 700}, nil
	}
	page.waitFn[jsRailPopulated] = func([]any) bool {
		return page.currentURL == railDest
	}
	page.evalFn[jsRailLinks] = func([]any) (any, error) {
		if page.currentURL != railDest {
			return []railLink{}, nil
		}
		return tiles, nil
	}
	return page
}

func railTiles() []railLink {
	return []railLink{
		{Label: "ESPN", Href: "/watch/espn"},
		{Label: "Fox News", Href: "/watch/fox-news"},
		{Label: "Promo", Href: "/promo/big-game"},
	}
}

func railProfile(channel string) SiteProfile {
	return SiteProfile{
		Site:     "stream",
		Channel:  channel,
		Strategy: StrategyChannelRail,
		GuideURL: railLanding,
	}
}

func TestRailExecute_DiscoversAndTunes(t *testing.T) {
	ctx := context.Background()
	page := newRailSite(t, railTiles())
	s := newRailStrategy(testConfig())

	// Extra whitespace in the lineup entry must not break tile matching.
	res := s.execute(ctx, page, railProfile("Fox  News"))
	if !res.Success {
		t.Fatalf("execute failed: %s", res.Reason)
	}

	want := []string{railLanding, railDest, "https://tv.example.com/watch/fox-news"}
	if len(page.navigations) != len(want) {
		t.Fatalf("navigations = %v, want %v", page.navigations, want)
	}
	for i, u := range want {
		if page.navigations[i] != u {
			t.Fatalf("navigations = %v, want %v", page.navigations, want)
		}
	}

	if dest, ok := s.urls.Dest("stream"); !ok || dest != railDest {
		t.Fatalf("destination not cached: %q, %v", dest, ok)
	}
	if url, ok := s.directURL(ctx, page, railProfile("Fox News")); !ok || url != "https://tv.example.com/watch/fox-news" {
		t.Fatalf("watch URL not cached: %q, %v", url, ok)
	}
}

func TestRailExecute_CachedDestSkipsDiscovery(t *testing.T) {
	ctx := context.Background()
	page := newRailSite(t, railTiles())
	s := newRailStrategy(testConfig())
	s.urls.PutDest("stream", railDest)

	res := s.execute(ctx, page, railProfile("ESPN"))
	if !res.Success {
		t.Fatalf("execute failed: %s", res.Reason)
	}
	if page.evalCalls[jsDiscoverHref] != 0 {
		t.Fatalf("discovery ran %d times with a fresh cached destination", page.evalCalls[jsDiscoverHref])
	}
	if page.navigations[0] != railDest {
		t.Fatalf("first navigation = %q, want the cached destination", page.navigations[0])
	}
}

func TestRailExecute_StaleCache_OneRediscovery(t *testing.T) {
	ctx := context.Background()
	page := newRailSite(t, railTiles())
	s := newRailStrategy(testConfig())

	stale := "https://tv.example.com/old-live"
	s.urls.PutDest("stream", stale)

	res := s.execute(ctx, page, railProfile("ESPN"))
	if !res.Success {
		t.Fatalf("execute failed: %s", res.Reason)
	}
	if n := page.evalCalls[jsDiscoverHref]; n != 1 {
		t.Fatalf("rediscovery ran %d times, want exactly 1", n)
	}

	want := []string{stale, railLanding, railDest, "https://tv.example.com/watch/espn"}
	if len(page.navigations) != len(want) {
		t.Fatalf("navigations = %v, want %v", page.navigations, want)
	}
	for i, u := range want {
		if page.navigations[i] != u {
			t.Fatalf("navigations = %v, want %v", page.navigations, want)
		}
	}

	if dest, ok := s.urls.Dest("stream"); !ok || dest != railDest {
		t.Fatalf("cache not refreshed after rediscovery: %q, %v", dest, ok)
	}
}

func TestRailExecute_SecondFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	page := newRailSite(t, railTiles())
	// The rail never materializes anywhere.
	page.waitFn[jsSelectorInteractable] = func([]any) bool { return false }

	s := newRailStrategy(testConfig())
	s.urls.PutDest("stream", "https://tv.example.com/old-live")

	res := s.execute(ctx, page, railProfile("ESPN"))
	if res.Success {
		t.Fatal("expected terminal failure")
	}
	if !strings.Contains(res.Reason, "never appeared") {
		t.Fatalf("reason = %q", res.Reason)
	}
	if n := page.evalCalls[jsDiscoverHref]; n != 1 {
		t.Fatalf("rediscovery ran %d times, want exactly 1", n)
	}
}

func TestRailExecute_FreshDiscoveryFailureNoRetry(t *testing.T) {
	ctx := context.Background()
	page := newRailSite(t, railTiles())
	page.waitFn[jsSelectorInteractable] = func([]any) bool { return false }

	s := newRailStrategy(testConfig())

	res := s.execute(ctx, page, railProfile("ESPN"))
	if res.Success {
		t.Fatal("expected failure")
	}
	// The destination was freshly discovered, so a rail failure must not
	// trigger a second discovery pass.
	if n := page.evalCalls[jsDiscoverHref]; n != 1 {
		t.Fatalf("discovery ran %d times, want exactly 1", n)
	}
	if len(page.navigations) != 2 {
		t.Fatalf("navigations = %v, want landing then destination only", page.navigations)
	}
}

func TestRailExecute_NoLabeledLink(t *testing.T) {
	ctx := context.Background()
	page := newRailSite(t, railTiles())
	page.waitFn[jsLinkByLabel] = func([]any) bool { return false }

	s := newRailStrategy(testConfig())
	res := s.execute(ctx, page, railProfile("ESPN"))
	if res.Success {
		t.Fatal("expected discovery failure")
	}
	if !strings.Contains(res.Reason, "discover live guide") {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestRailExecute_ChannelNotOnRail(t *testing.T) {
	ctx := context.Background()
	page := newRailSite(t, railTiles())
	s := newRailStrategy(testConfig())

	res := s.execute(ctx, page, railProfile("Starz Encore"))
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Reason, "not on the rail") || !strings.Contains(res.Reason, "3 tiles scanned") {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestRailExecute_SkipsUnplayableTiles(t *testing.T) {
	ctx := context.Background()
	// The first ESPN tile links to a promo page; only the second is a
	// real watch link.
	page := newRailSite(t, []railLink{
		{Label: "ESPN", Href: "/promo/espn-day"},
		{Label: "ESPN", Href: "/watch/espn"},
	})
	s := newRailStrategy(testConfig())

	res := s.execute(ctx, page, railProfile("ESPN"))
	if !res.Success {
		t.Fatalf("execute failed: %s", res.Reason)
	}
	last := page.navigations[len(page.navigations)-1]
	if last != "https://tv.example.com/watch/espn" {
		t.Fatalf("navigated to %q", last)
	}
}

func TestRailDiscover_Labels(t *testing.T) {
	ctx := context.Background()
	s := newRailStrategy(testConfig())

	var gotLabel string
	page := newRailSite(t, railTiles())
	page.evalFn[jsDiscoverHref] = func(args []any) (any, error) {
		gotLabel = args[0].(string)
		return hrefHit{Found: true, Href: "/live"}, nil
	}

	profile := railProfile("ESPN")
	if _, err := s.discover(ctx, page, profile); err != nil {
		t.Fatal(err)
	}
	if gotLabel != defaultDiscoverLabel {
		t.Fatalf("label = %q, want default %q", gotLabel, defaultDiscoverLabel)
	}

	profile.DiscoverLabel = "Watch Live"
	if _, err := s.discover(ctx, page, profile); err != nil {
		t.Fatal(err)
	}
	if gotLabel != "Watch Live" {
		t.Fatalf("label = %q, want profile override", gotLabel)
	}
}

func TestRailInvalidateDirectURL(t *testing.T) {
	ctx := context.Background()
	page := newRailSite(t, railTiles())
	s := newRailStrategy(testConfig())

	if res := s.execute(ctx, page, railProfile("ESPN")); !res.Success {
		t.Fatalf("execute failed: %s", res.Reason)
	}
	if _, ok := s.directURL(ctx, page, railProfile("ESPN")); !ok {
		t.Fatal("expected a cached watch URL")
	}

	s.invalidateDirectURL(railProfile("ESPN"))
	if _, ok := s.directURL(ctx, page, railProfile("ESPN")); ok {
		t.Fatal("invalidated watch URL still cached")
	}
}

func TestRailEnumerate(t *testing.T) {
	ctx := context.Background()
	page := newRailSite(t, []railLink{
		{Label: "ESPN", Href: "/watch/espn"},
		{Label: " Fox  News ", Href: "/watch/fox-news"},
		{Label: "ESPN", Href: "/watch/espn-duplicate"},
		{Label: "", Href: "/watch/unnamed"},
	})
	s := newRailStrategy(testConfig())

	names, err := s.enumerate(ctx, page, railProfile(""))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"espn", "fox news"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

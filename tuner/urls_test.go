package tuner

import "testing"

func TestResolveWatchURL(t *testing.T) {
	const base = "https://tv.example.com/live"

	cases := []struct {
		href    string
		want    string
		wantErr bool
	}{
		{"/watch/espn", "https://tv.example.com/watch/espn", false},
		{"../channel/abc-7", "https://tv.example.com/channel/abc-7", false},
		{"https://player.tv.example.com/live/nbc", "https://player.tv.example.com/live/nbc", false},
		{" /watch/espn ", "https://tv.example.com/watch/espn", false},
		{"/promo/fall-lineup", "", true},         // not a watch path
		{"/watch/", "", true},                    // empty slug
		{"https://ads.example.net/watch/x", "", true}, // off-site
		{"://bad", "", true},
	}
	for _, c := range cases {
		got, err := resolveWatchURL(base, c.href)
		if c.wantErr {
			if err == nil {
				t.Errorf("resolveWatchURL(%q) = %q, want error", c.href, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("resolveWatchURL(%q): %v", c.href, err)
			continue
		}
		if got != c.want {
			t.Errorf("resolveWatchURL(%q) = %q, want %q", c.href, got, c.want)
		}
	}
}

func TestResolveDestURL(t *testing.T) {
	const base = "https://tv.example.com/"

	got, err := resolveDestURL(base, "/live-tv")
	if err != nil {
		t.Fatalf("resolveDestURL: %v", err)
	}
	if got != "https://tv.example.com/live-tv" {
		t.Fatalf("resolveDestURL = %q", got)
	}

	// Destination paths are unconstrained, unlike watch paths.
	if _, err := resolveDestURL(base, "/any/old/path"); err != nil {
		t.Fatalf("destination resolution must not require a watch path: %v", err)
	}

	if _, err := resolveDestURL(base, ""); err == nil {
		t.Fatal("expected error for empty link")
	}
	if _, err := resolveDestURL(base, "https://other.example.org/live"); err == nil {
		t.Fatal("expected error for off-site link")
	}
}

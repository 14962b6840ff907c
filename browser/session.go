package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// Session wraps a Rod page prepared for tuning: stealth applied, resource
// blocking installed. The tuner keeps one Session per streaming site so
// logins and player state survive across tune requests.
type Session struct {
	Page    *rod.Page
	Site    string
	manager *Manager
}

// OpenSession creates a stealth page for a site and optionally navigates to
// startURL. Pass an empty startURL to leave the page blank; the tuner
// navigates it per request.
func OpenSession(ctx context.Context, mgr *Manager, site, startURL string) (*Session, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	if startURL != "" {
		navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if err := page.Context(navCtx).Navigate(startURL); err != nil {
			page.Close()
			return nil, fmt.Errorf("browser: navigate %s: %w", startURL, err)
		}
		if err := page.Context(navCtx).WaitLoad(); err != nil {
			mgr.cfg.Logger.Warn("browser: wait load timeout", "url", startURL, "error", err)
		}
	}

	return &Session{
		Page:    page,
		Site:    site,
		manager: mgr,
	}, nil
}

// Close closes the underlying page.
func (s *Session) Close() error {
	if s.Page != nil {
		return s.Page.Close()
	}
	return nil
}

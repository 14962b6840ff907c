// CLAUDE:SUMMARY Per-site session pool behind the tuner: one stealth tab per streaming site, re-navigated to the guide URL before each tune, dropped wholesale on recycle.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/zapper/tuner"
)

// PoolConfig wires a Pool.
type PoolConfig struct {
	Manager *Manager

	// SiteURLs maps a site name to its guide start URL. A site absent from
	// the map cannot be tuned.
	SiteURLs map[string]string

	// NavigateTimeout bounds the pre-tune navigation. Default: 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

func (c *PoolConfig) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pool hands the tuner one page per streaming site. Tabs are opened lazily
// and reused across tunes so logins and player state survive; every PageFor
// call re-navigates the tab to the site's guide URL, because the previous
// tune left it in playback state and the strategies assume a freshly
// rendered guide. DropAll is wired to the browser recycle callback: tabs of
// a dead Chrome are unusable.
type Pool struct {
	cfg PoolConfig
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewPool creates a session pool over the manager.
func NewPool(cfg PoolConfig) *Pool {
	cfg.defaults()
	return &Pool{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: make(map[string]*Session),
	}
}

// PageFor returns the site's tab, landed on the site's guide URL. It retries
// once through a fresh tab when navigation fails, which covers the window
// between a browser recycle and the cache-clear callback.
func (p *Pool) PageFor(ctx context.Context, site string) (tuner.Page, error) {
	url, ok := p.cfg.SiteURLs[site]
	if !ok {
		return nil, fmt.Errorf("browser: no configured URL for site %q", site)
	}

	s, err := p.session(ctx, site)
	if err != nil {
		return nil, err
	}

	page := tuner.NewRodPage(s.Page)
	if err := page.Navigate(ctx, url, p.cfg.NavigateTimeout); err != nil {
		p.log.Warn("browser: stale session, reopening", "site", site, "error", err)
		p.drop(site)

		s, err = p.session(ctx, site)
		if err != nil {
			return nil, err
		}
		page = tuner.NewRodPage(s.Page)
		if err := page.Navigate(ctx, url, p.cfg.NavigateTimeout); err != nil {
			p.drop(site)
			return nil, fmt.Errorf("browser: land on %s: %w", url, err)
		}
	}
	return page, nil
}

// DropAll closes every session. Tabs are recreated lazily on the next tune.
func (p *Pool) DropAll() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	for site, s := range sessions {
		if err := s.Close(); err != nil {
			p.log.Debug("browser: close session", "site", site, "error", err)
		}
	}
	if len(sessions) > 0 {
		p.log.Info("browser: dropped sessions", "count", len(sessions))
	}
}

func (p *Pool) session(ctx context.Context, site string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[site]; ok {
		return s, nil
	}
	// Open blank; PageFor performs the navigation with its own timeout.
	s, err := OpenSession(ctx, p.cfg.Manager, site, "")
	if err != nil {
		return nil, fmt.Errorf("browser: open session for %s: %w", site, err)
	}
	p.sessions[site] = s
	p.log.Info("browser: session opened", "site", site)
	return s, nil
}

func (p *Pool) drop(site string) {
	p.mu.Lock()
	s, ok := p.sessions[site]
	delete(p.sessions, site)
	p.mu.Unlock()

	if ok {
		s.Close()
	}
}

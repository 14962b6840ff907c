// CLAUDE:SUMMARY Virtualized-grid strategy: bounded binary search with call-sign inference and linear fallback over a scroll-virtualized guide.
package tuner

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// The guide contract: an alphabetically sorted list of ~100+ channels of
// which only a small contiguous window (~13 rows) exists in any DOM
// snapshot, centered on the scroll offset. Scrolling to
// baseOffset + row*rowHeight is the only way to bring a row into the
// snapshot.

// Grid JS, issued through the Page capability set.
const (
	// jsGridVisible is a predicate: at least one guide row is rendered.
	jsGridVisible = `() => {
		const rows = document.querySelectorAll('[role="grid"] [role="row"], .guide-grid .guide-row');
		return rows.length > 0;
	}`

	// jsGridMetrics reads the constant row height, derives the total row
	// count from the virtual spacer's extent, and computes the offset that
	// puts row 0 at the top of the viewport. Returns null before the grid
	// renders.
	jsGridMetrics = `() => {
		const row = document.querySelector('[role="grid"] [role="row"], .guide-grid .guide-row');
		if (!row) return null;
		const rect = row.getBoundingClientRect();
		if (rect.height === 0) return null;
		const scroller = row.closest('[data-virtualized], [role="grid"], .guide-grid') || document.scrollingElement;
		const extent = scroller.scrollHeight;
		const attr = row.getAttribute('aria-rowindex');
		const idx = attr ? parseInt(attr, 10) - 1 : 0;
		const base = scroller.scrollTop + rect.top - scroller.getBoundingClientRect().top - idx * rect.height;
		return {
			rowHeight: rect.height,
			totalRows: Math.round((extent - base) / rect.height),
			baseOffset: base
		};
	}`

	// jsGridScroll sets the guide scroller to a pixel offset.
	jsGridScroll = `(offset) => {
		const row = document.querySelector('[role="grid"] [role="row"], .guide-grid .guide-row');
		const scroller = (row && row.closest('[data-virtualized], [role="grid"], .guide-grid')) || document.scrollingElement;
		scroller.scrollTop = offset;
		return scroller.scrollTop;
	}`

	// jsGridSnapshot reads every rendered row: channel name, DOM order,
	// and the absolute row index (aria-rowindex when present, otherwise
	// derived from viewport geometry; -1 when underivable).
	jsGridSnapshot = `(base, rowHeight) => {
		const els = document.querySelectorAll('[role="grid"] [role="row"], .guide-grid .guide-row');
		const out = [];
		els.forEach((el, i) => {
			const cell = el.querySelector('[data-channel-name], .channel-name, [role="rowheader"]');
			const name = ((cell ? cell.textContent : el.getAttribute('aria-label')) || '').trim();
			if (!name) return;
			let row = -1;
			const attr = el.getAttribute('aria-rowindex');
			if (attr) {
				row = parseInt(attr, 10) - 1;
			} else if (rowHeight > 0) {
				const scroller = el.closest('[data-virtualized], [role="grid"], .guide-grid') || document.scrollingElement;
				const r = el.getBoundingClientRect();
				row = Math.round((scroller.scrollTop + r.top - scroller.getBoundingClientRect().top - base) / rowHeight);
			}
			out.push({ name: name, domIndex: i, row: row });
		});
		return out;
	}`

	// jsGridRowCell locates the currently-airing cell in the named row,
	// scrolls it into view, and returns its center.
	jsGridRowCell = `(name) => {
		const want = name.trim().toLowerCase().replace(/\s+/g, ' ');
		const els = document.querySelectorAll('[role="grid"] [role="row"], .guide-grid .guide-row');
		for (const el of els) {
			const cell = el.querySelector('[data-channel-name], .channel-name, [role="rowheader"]');
			const label = (((cell ? cell.textContent : el.getAttribute('aria-label')) || '')).trim().toLowerCase().replace(/\s+/g, ' ');
			if (label !== want) continue;
			const now = el.querySelector('[data-on-now], .on-now, [aria-current="true"]') || el;
			now.scrollIntoView({ block: 'center', inline: 'nearest' });
			const r = now.getBoundingClientRect();
			return { found: true, x: r.left + r.width / 2, y: r.top + r.height / 2 };
		}
		return { found: false };
	}`
)

// revealInitialWait is the short first window for grid rows to appear after
// activating the reveal control; a miss inside it triggers one re-activation
// to absorb a transitional animating state.
const revealInitialWait = 4 * time.Second

// RenderedChannel is one row read from a grid snapshot. Transient: it
// exists only within one search iteration. Name is normalized at read time;
// Row is -1 when the DOM exposes no absolute index.
type RenderedChannel struct {
	Name     string `json:"name"`
	DOMIndex int    `json:"domIndex"`
	Row      int    `json:"row"`
}

type gridMetrics struct {
	RowHeight  float64 `json:"rowHeight"`
	TotalRows  int     `json:"totalRows"`
	BaseOffset float64 `json:"baseOffset"`
}

// gridReader is the scroll-and-read surface the search tiers run against.
// Production uses pageGrid; tests drive the search with synthetic grids.
type gridReader interface {
	ScrollToRow(ctx context.Context, row int) error
	ReadRows(ctx context.Context) ([]RenderedChannel, error)
}

// pageGrid implements gridReader against a live page.
type pageGrid struct {
	page    Page
	metrics gridMetrics
	settle  time.Duration
}

func (g *pageGrid) ScrollToRow(ctx context.Context, row int) error {
	offset := g.metrics.BaseOffset + float64(row)*g.metrics.RowHeight
	if err := g.page.Eval(ctx, jsGridScroll, nil, offset); err != nil {
		return err
	}
	return sleepCtx(ctx, g.settle)
}

func (g *pageGrid) ReadRows(ctx context.Context) ([]RenderedChannel, error) {
	var rows []RenderedChannel
	if err := g.page.Eval(ctx, jsGridSnapshot, &rows, g.metrics.BaseOffset, g.metrics.RowHeight); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Name = Normalize(rows[i].Name)
	}
	return rows, nil
}

// gridStrategy resolves channels on scroll-virtualized alphabetical guides.
type gridStrategy struct {
	rows *RowCache
	cfg  Config
	log  *slog.Logger
}

func newGridStrategy(cfg Config) *gridStrategy {
	return &gridStrategy{rows: NewRowCache(), cfg: cfg, log: cfg.Logger}
}

func (s *gridStrategy) clearCaches() { s.rows.Clear() }

func (s *gridStrategy) execute(ctx context.Context, page Page, profile SiteProfile) Result {
	target := Normalize(profile.Channel)

	if res := s.reveal(ctx, page, profile); !res.Success {
		return res
	}

	metrics, err := s.readMetrics(ctx, page)
	if err != nil {
		return fail("guide grid metrics unavailable while tuning %q: %v", profile.Channel, err)
	}

	reader := &pageGrid{page: page, metrics: metrics, settle: s.cfg.SettleDelay}

	match, found, err := s.findRow(ctx, reader, profile.Site, target, metrics.TotalRows)
	if err != nil {
		return fail("grid search for %q aborted: %v", profile.Channel, err)
	}
	if !found {
		return fail("channel %q not found in guide grid (%d rows, binary search and full scan exhausted); check the channel name against the guide's spelling", profile.Channel, metrics.TotalRows)
	}

	return s.activate(ctx, page, reader, profile, match)
}

// reveal activates the optional "reveal guide" control and waits for grid
// rows to appear, re-activating once if the first short window misses.
func (s *gridStrategy) reveal(ctx context.Context, page Page, profile SiteProfile) Result {
	if profile.RevealSelector != "" {
		if _, err := clickSelector(ctx, page, profile.RevealSelector, s.cfg.WaitTimeout, s.cfg.SettleDelay); err != nil {
			return fail("reveal guide control %q: %v", profile.RevealSelector, err)
		}
	}

	if err := page.WaitFor(ctx, jsGridVisible, revealInitialWait); err == nil {
		return succeed()
	}

	// The guide can be mid-animation when the first activation lands,
	// swallowing the click. One re-activation absorbs that state.
	if profile.RevealSelector != "" {
		if _, err := clickSelector(ctx, page, profile.RevealSelector, s.cfg.WaitTimeout, s.cfg.SettleDelay); err != nil {
			return fail("re-activate reveal control %q: %v", profile.RevealSelector, err)
		}
	}
	if err := page.WaitFor(ctx, jsGridVisible, s.cfg.WaitTimeout); err != nil {
		return fail("guide grid never became visible (reveal %q): %v", profile.RevealSelector, err)
	}
	return succeed()
}

func (s *gridStrategy) readMetrics(ctx context.Context, page Page) (gridMetrics, error) {
	var m gridMetrics
	if err := page.Eval(ctx, jsGridMetrics, &m); err != nil {
		return m, err
	}
	if m.RowHeight <= 0 || m.TotalRows <= 0 {
		return m, fmt.Errorf("implausible metrics: rowHeight=%.1f totalRows=%d", m.RowHeight, m.TotalRows)
	}
	return m, nil
}

// findRow runs the three search tiers in order: cache shortcut, bounded
// binary search with position inference, linear stride scan.
func (s *gridStrategy) findRow(ctx context.Context, r gridReader, site, target string, totalRows int) (RenderedChannel, bool, error) {
	// Tier 1: cache shortcut. Scroll straight to the remembered row and
	// confirm with a single read. The scroll stops one row shy so the
	// row's neighbors render too; inferred entries confirm against their
	// anchor pair, which the target row alone cannot provide.
	if row, ok := s.rows.Get(site, target); ok {
		top := row - 1
		if top < 0 {
			top = 0
		}
		if err := r.ScrollToRow(ctx, top); err != nil {
			return RenderedChannel{}, false, err
		}
		rows, err := r.ReadRows(ctx)
		if err != nil {
			return RenderedChannel{}, false, err
		}
		s.cacheRows(site, rows)
		if m, ok := matchExact(rows, target); ok {
			return m, true, nil
		}
		// Entries written by inference point at rows that render a call
		// sign, never the target's own name, so confirmation re-runs the
		// inference over the same snapshot before declaring a miss.
		if m, ok := s.inferPosition(site, rows, target); ok {
			return m, true, nil
		}
		// Confirmed miss: the guide drifted under the cache.
		s.rows.Evict(site, target)
		s.log.Debug("tuner: cached row stale, evicted", "site", site, "channel", target, "row", row)
	}

	// Tier 2: binary search, bounded by maxSearchIterations.
	lo, hi := 0, totalRows-1
search:
	for iter := 0; iter < maxSearchIterations && lo <= hi; iter++ {
		mid := (lo + hi) / 2
		if err := r.ScrollToRow(ctx, mid); err != nil {
			return RenderedChannel{}, false, err
		}
		rows, err := r.ReadRows(ctx)
		if err != nil {
			return RenderedChannel{}, false, err
		}
		s.cacheRows(site, rows)

		if m, ok := matchExact(rows, target); ok {
			return m, true, nil
		}

		first, last, ok := anchorBounds(rows)
		if !ok {
			// Every rendered name is a call sign; they sort by hidden
			// network names, so direction is unknowable.
			break search
		}
		switch {
		case compareNames(target, first) < 0:
			hi = mid - 1
		case compareNames(target, last) > 0:
			lo = mid + 1
		default:
			// Target sorts inside this window but is not rendered under
			// its own name: a local affiliate displayed as a call sign.
			if m, ok := s.inferPosition(site, rows, target); ok {
				return m, true, nil
			}
			break search
		}
	}

	// Tier 3: linear stride scan across the whole range.
	return s.linearScan(ctx, r, site, target, totalRows)
}

// linearScan reads windows every linearScanStride rows. Window size (~13)
// exceeds the stride, so coverage is complete.
func (s *gridStrategy) linearScan(ctx context.Context, r gridReader, site, target string, totalRows int) (RenderedChannel, bool, error) {
	for row := 0; row < totalRows; row += linearScanStride {
		if err := r.ScrollToRow(ctx, row); err != nil {
			return RenderedChannel{}, false, err
		}
		rows, err := r.ReadRows(ctx)
		if err != nil {
			return RenderedChannel{}, false, err
		}
		s.cacheRows(site, rows)
		if m, ok := matchExact(rows, target); ok {
			return m, true, nil
		}
		if m, ok := s.inferPosition(site, rows, target); ok {
			return m, true, nil
		}
	}
	return RenderedChannel{}, false, nil
}

// inferPosition handles affiliates rendered as call signs but searched by
// network name. Non-call-sign names in the window are sort anchors; if the
// target collates between two adjacent anchors, a call-sign row lying
// strictly between them in DOM order is the target.
func (s *gridStrategy) inferPosition(site string, rows []RenderedChannel, target string) (RenderedChannel, bool) {
	var anchors []RenderedChannel
	for _, r := range rows {
		if !isCallSign(r.Name) {
			anchors = append(anchors, r)
		}
	}
	for i := 0; i+1 < len(anchors); i++ {
		a, b := anchors[i], anchors[i+1]
		if compareNames(target, a.Name) <= 0 || compareNames(target, b.Name) >= 0 {
			continue
		}
		for _, r := range rows {
			if !isCallSign(r.Name) {
				continue
			}
			if r.DOMIndex > a.DOMIndex && r.DOMIndex < b.DOMIndex {
				if r.Row >= 0 {
					// Cache under the searched name so the next tune for
					// this network hits the shortcut directly.
					s.rows.Put(site, target, r.Row)
				}
				s.log.Debug("tuner: inferred call-sign position",
					"site", site, "channel", target, "call_sign", r.Name, "row", r.Row)
				return r, true
			}
		}
	}
	return RenderedChannel{}, false
}

func (s *gridStrategy) cacheRows(site string, rows []RenderedChannel) {
	for _, r := range rows {
		if r.Row >= 0 && r.Name != "" {
			s.rows.Put(site, r.Name, r.Row)
		}
	}
}

func matchExact(rows []RenderedChannel, target string) (RenderedChannel, bool) {
	for _, r := range rows {
		if r.Name == target {
			return r, true
		}
	}
	return RenderedChannel{}, false
}

func anchorBounds(rows []RenderedChannel) (first, last string, ok bool) {
	for _, r := range rows {
		if !isCallSign(r.Name) {
			first = r.Name
			ok = true
			break
		}
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if !isCallSign(rows[i].Name) {
			last = rows[i].Name
			break
		}
	}
	return first, last, ok
}

// activate clicks the currently-airing cell in the resolved row with a full
// pointer sequence, then the optional play control. The row's DOM can exist
// before its event handlers are wired, so the whole sequence retries with
// growing settle delays; the final attempt waits longest.
func (s *gridStrategy) activate(ctx context.Context, page Page, reader gridReader, profile SiteProfile, match RenderedChannel) Result {
	for attempt := 1; attempt <= activationAttempts; attempt++ {
		settle := time.Duration(attempt) * s.cfg.SettleDelay

		if match.Row >= 0 {
			if err := reader.ScrollToRow(ctx, match.Row); err != nil {
				return fail("scroll to row %d for %q: %v", match.Row, profile.Channel, err)
			}
		}

		var hit centerHit
		if err := page.Eval(ctx, jsGridRowCell, &hit, match.Name); err != nil {
			return fail("locate cell for %q: %v", profile.Channel, err)
		}
		if !hit.Found {
			if err := sleepCtx(ctx, settle); err != nil {
				return fail("activation of %q cancelled: %v", profile.Channel, err)
			}
			continue
		}

		if err := settleClick(ctx, page, hit.point(), settle); err != nil {
			return fail("click cell for %q: %v", profile.Channel, err)
		}

		if profile.PlaySelector == "" {
			return succeed()
		}

		timeout := s.cfg.WaitTimeout
		if attempt == activationAttempts {
			// Last chance gets double the window.
			timeout = 2 * s.cfg.WaitTimeout
		}
		clicked, err := clickSelector(ctx, page, profile.PlaySelector, timeout, s.cfg.SettleDelay)
		if err != nil {
			return fail("play control %q for %q: %v", profile.PlaySelector, profile.Channel, err)
		}
		if clicked {
			return succeed()
		}

		s.log.Debug("tuner: play control missing, re-activating",
			"channel", profile.Channel, "attempt", attempt)
		if err := sleepCtx(ctx, settle); err != nil {
			return fail("activation of %q cancelled: %v", profile.Channel, err)
		}
	}
	return fail("play control %q never appeared for channel %q after %d activation attempts",
		profile.PlaySelector, profile.Channel, activationAttempts)
}

// enumerate walks the full grid in stride windows and returns every
// rendered channel name once, in first-seen order.
func (s *gridStrategy) enumerate(ctx context.Context, page Page, profile SiteProfile) ([]string, error) {
	if res := s.reveal(ctx, page, profile); !res.Success {
		return nil, fmt.Errorf("tuner: %s", res.Reason)
	}
	metrics, err := s.readMetrics(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("tuner: grid metrics: %w", err)
	}
	reader := &pageGrid{page: page, metrics: metrics, settle: s.cfg.SettleDelay}

	seen := make(map[string]struct{})
	var names []string
	for row := 0; row < metrics.TotalRows; row += linearScanStride {
		if err := reader.ScrollToRow(ctx, row); err != nil {
			return nil, err
		}
		rows, err := reader.ReadRows(ctx)
		if err != nil {
			return nil, err
		}
		s.cacheRows(profile.Site, rows)
		for _, r := range rows {
			if _, dup := seen[r.Name]; dup {
				continue
			}
			seen[r.Name] = struct{}{}
			names = append(names, r.Name)
		}
	}
	return names, nil
}

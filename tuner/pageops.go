// CLAUDE:SUMMARY Shared DOM primitives: settle-then-click, selector centers, bounded interactable waits, image-load polling.
package tuner

import (
	"context"
	"time"
)

// JS sources shared by more than one strategy. Each snippet is a named
// constant so logs and test fakes can identify the operation being issued.
const (
	// jsSelectorInteractable is a predicate: the first match of sel is
	// rendered, visible, and not disabled.
	jsSelectorInteractable = `(sel) => {
		const el = document.querySelector(sel);
		if (!el) return false;
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		const style = window.getComputedStyle(el);
		if (style.visibility === 'hidden' || style.display === 'none') return false;
		return !el.disabled;
	}`

	// jsSelectorCenter scrolls the first match of sel into view and
	// returns its viewport center.
	jsSelectorCenter = `(sel) => {
		const el = document.querySelector(sel);
		if (!el) return { found: false };
		el.scrollIntoView({ block: 'center', inline: 'center' });
		const r = el.getBoundingClientRect();
		return { found: true, x: r.left + r.width / 2, y: r.top + r.height / 2 };
	}`

	// jsImageLoaded is a predicate: some image whose source contains the
	// fragment has finished loading with nonzero rendered dimensions.
	jsImageLoaded = `(fragment) => {
		const imgs = document.querySelectorAll('img');
		for (const img of imgs) {
			const src = img.currentSrc || img.src || '';
			if (src.indexOf(fragment) === -1) continue;
			const r = img.getBoundingClientRect();
			if (r.width > 0 && r.height > 0 && img.complete) return true;
		}
		return false;
	}`
)

// centerHit is the decoded shape of jsSelectorCenter and the per-strategy
// locate snippets.
type centerHit struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

func (h centerHit) point() Point { return Point{X: h.X, Y: h.Y} }

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// settleClick waits out a settle delay, then issues the pointer sequence.
// Scroll animations and lazy mounts finish during the settle; clicking
// earlier hits a cell that is still moving.
func settleClick(ctx context.Context, page Page, pt Point, settle time.Duration) error {
	if err := sleepCtx(ctx, settle); err != nil {
		return err
	}
	return page.Click(ctx, pt)
}

// selectorCenter locates the first match of sel, scrolled into view.
func selectorCenter(ctx context.Context, page Page, sel string) (Point, bool, error) {
	var hit centerHit
	if err := page.Eval(ctx, jsSelectorCenter, &hit, sel); err != nil {
		return Point{}, false, err
	}
	if !hit.Found {
		return Point{}, false, nil
	}
	return hit.point(), true, nil
}

// clickSelector waits for sel to become interactable, then settle-clicks
// its center. Returns false when the wait or locate misses, which callers
// treat as an ordinary fallback trigger.
func clickSelector(ctx context.Context, page Page, sel string, timeout, settle time.Duration) (bool, error) {
	if err := page.WaitFor(ctx, jsSelectorInteractable, timeout, sel); err != nil {
		return false, nil
	}
	pt, ok, err := selectorCenter(ctx, page, sel)
	if err != nil || !ok {
		return false, err
	}
	if err := settleClick(ctx, page, pt, settle); err != nil {
		return false, err
	}
	return true, nil
}

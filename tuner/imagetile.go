// CLAUDE:SUMMARY Image-tile strategy: single-pass scan for a logo by image-URL fragment, click its nearest interactive ancestor.
package tuner

import (
	"context"
	"log/slog"
)

// jsImageTileCenter scans all images for one whose source contains the
// fragment and has nonzero rendered size, then walks ancestors for the
// nearest interactive container: semantic tags and roles first, pointer
// cursor styling as a fallback, the image itself as a last resort.
const jsImageTileCenter = `(fragment) => {
	const imgs = document.querySelectorAll('img');
	for (const img of imgs) {
		const src = img.currentSrc || img.src || '';
		if (src.indexOf(fragment) === -1) continue;
		const rect = img.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;

		let el = img.parentElement, semantic = null, styled = null;
		while (el && el !== document.body) {
			const tag = el.tagName.toLowerCase();
			const role = el.getAttribute('role');
			if (tag === 'a' || tag === 'button' || role === 'button' || role === 'link') {
				semantic = el;
				break;
			}
			if (!styled && window.getComputedStyle(el).cursor === 'pointer') styled = el;
			el = el.parentElement;
		}
		const target = semantic || styled || img;
		target.scrollIntoView({ block: 'center', inline: 'center' });
		const r = target.getBoundingClientRect();
		return { found: true, x: r.left + r.width / 2, y: r.top + r.height / 2 };
	}
	return { found: false };
}`

// imageTileStrategy matches a channel logo by a source-URL fragment and
// clicks its tile. Single-pass, no caching; the coordinator pre-polls for
// the image load because the identifier is an image fragment.
type imageTileStrategy struct {
	cfg Config
	log *slog.Logger
}

func newImageTileStrategy(cfg Config) *imageTileStrategy {
	return &imageTileStrategy{cfg: cfg, log: cfg.Logger}
}

func (s *imageTileStrategy) execute(ctx context.Context, page Page, profile SiteProfile) Result {
	var hit centerHit
	if err := page.Eval(ctx, jsImageTileCenter, &hit, profile.Channel); err != nil {
		return fail("scan images for %q: %v", profile.Channel, err)
	}
	if !hit.Found {
		return fail("no loaded image matching %q on the page; the fragment must appear in the logo's src", profile.Channel)
	}

	if err := settleClick(ctx, page, hit.point(), s.cfg.SettleDelay); err != nil {
		return fail("click tile for %q: %v", profile.Channel, err)
	}

	// Optional secondary confirmation control (e.g. a "Watch" overlay).
	if profile.PlaySelector != "" {
		clicked, err := clickSelector(ctx, page, profile.PlaySelector, s.cfg.WaitTimeout, s.cfg.SettleDelay)
		if err != nil {
			return fail("confirmation control %q for %q: %v", profile.PlaySelector, profile.Channel, err)
		}
		if !clicked {
			return fail("confirmation control %q never appeared after clicking %q", profile.PlaySelector, profile.Channel)
		}
	}
	return succeed()
}

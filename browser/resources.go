package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToCDP translates the config's resource names into CDP resource
// types. Config speaks plurals ("images"), CDP speaks singular type names.
var configToCDP = map[string]string{
	"images":      "image",
	"fonts":       "font",
	"media":       "media",
	"stylesheets": "stylesheet",
}

// blockedTypes builds the CDP type set the hijack handler drops. Unknown
// names pass through as-is so raw CDP types work in the config too.
func blockedTypes(names []string) map[string]bool {
	blocked := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(n)
		if cdp, ok := configToCDP[n]; ok {
			n = cdp
		}
		blocked[n] = true
	}
	return blocked
}

// applyResourceBlocking intercepts the page's requests and drops the
// configured resource types. Blocking "images" breaks the imageTile
// strategy, so the daemon only enables it for grid and rail sites.
func applyResourceBlocking(page *rod.Page, types []string) error {
	blocked := blockedTypes(types)

	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if blocked[strings.ToLower(string(ctx.Request.Type()))] {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()

	return nil
}

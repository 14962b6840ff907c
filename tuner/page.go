package tuner

import (
	"context"
	"time"
)

// Point is a pair of viewport coordinates, the center of a located and
// scrolled-into-view element. Produced by a strategy's DOM read phase and
// consumed only by the click primitive.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Page is the capability set the engine consumes from the page-automation
// layer. The production implementation wraps a Rod page (see RodPage); tests
// substitute scripted fakes. Every method must respect ctx: when the
// underlying page is closed or navigated away mid-resolution, in-flight
// calls fail fast instead of hanging.
//
// The engine issues at most one outstanding call per Page at a time;
// implementations do not need internal serialization for correctness, only
// for crash safety.
type Page interface {
	// Navigate loads url and waits for the load event, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// CurrentURL reports the page's current location.
	CurrentURL(ctx context.Context) (string, error)

	// Eval runs a pure read-or-scroll JS function against the document,
	// passing args and unmarshalling the JSON result into out. A nil out
	// discards the result.
	Eval(ctx context.Context, js string, out any, args ...any) error

	// WaitFor polls predicateJS with args until it returns true or timeout
	// elapses. A timeout returns a *WaitError.
	WaitFor(ctx context.Context, predicateJS string, timeout time.Duration, args ...any) error

	// Click synthesizes a full pointer sequence (move, press, release) at
	// viewport coordinates. Delegated UI event handling requires real
	// press/release semantics, not a bare element.click().
	Click(ctx context.Context, pt Point) error
}

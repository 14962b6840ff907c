// CLAUDE:SUMMARY Adapts a Rod page to the tuner's Page capability set: navigate, eval with JSON decode, predicate waits, pointer clicks.
package tuner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodPage adapts a Rod page to the Page capability set. One RodPage wraps
// one tab; the engine's single-outstanding-call discipline means no extra
// locking is required here.
type RodPage struct {
	p   *rod.Page
	log *slog.Logger
}

// NewRodPage wraps an existing Rod page.
func NewRodPage(p *rod.Page) *RodPage {
	return &RodPage{p: p, log: slog.Default()}
}

func (r *RodPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	page := r.p.Context(ctx).Timeout(timeout)
	if err := page.Navigate(url); err != nil {
		return &NavigateError{URL: url, Err: err}
	}
	if err := page.WaitLoad(); err != nil {
		// Streaming SPAs keep requests open past the load event; the
		// page is usually usable anyway.
		r.log.Debug("tuner: wait load timed out", "url", url, "error", err)
	}
	return nil
}

func (r *RodPage) CurrentURL(ctx context.Context) (string, error) {
	info, err := r.p.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("tuner: page info: %w", err)
	}
	return info.URL, nil
}

func (r *RodPage) Eval(ctx context.Context, js string, out any, args ...any) error {
	res, err := r.p.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("tuner: eval: %w", err)
	}
	if out == nil {
		return nil
	}
	data, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("tuner: eval result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("tuner: decode eval result: %w", err)
	}
	return nil
}

func (r *RodPage) WaitFor(ctx context.Context, predicateJS string, timeout time.Duration, args ...any) error {
	if err := r.p.Context(ctx).Timeout(timeout).Wait(rod.Eval(predicateJS, args...)); err != nil {
		return &WaitError{What: "page predicate", Timeout: timeout, Err: err}
	}
	return nil
}

func (r *RodPage) Click(ctx context.Context, pt Point) error {
	m := r.p.Context(ctx).Mouse
	if err := m.MoveTo(proto.Point{X: pt.X, Y: pt.Y}); err != nil {
		return fmt.Errorf("tuner: mouse move: %w", err)
	}
	if err := m.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("tuner: mouse down: %w", err)
	}
	// A human press has width; some delegated handlers debounce
	// zero-duration clicks.
	if err := sleepCtx(ctx, 40*time.Millisecond); err != nil {
		return err
	}
	if err := m.Up(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("tuner: mouse up: %w", err)
	}
	return nil
}

package tuner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"
)

// fakePage scripts the Page capability set for tests. Eval and WaitFor
// dispatch on the identity of the JS snippet constant, so a test describes
// behavior per operation instead of per call site. Unscripted evals fail
// the test; unscripted predicates time out, matching the real adapter.
type fakePage struct {
	t *testing.T

	evalFn map[string]func(args []any) (any, error)
	waitFn map[string]func(args []any) bool

	navigateErr map[string]error

	currentURL  string
	navigations []string
	clicks      []Point

	// calls counts every Page method invocation, scripted or not.
	calls        int
	evalCalls    map[string]int
	waitCalls    map[string]int
	waitTimeouts map[string]time.Duration
}

func newFakePage(t *testing.T) *fakePage {
	return &fakePage{
		t:            t,
		evalFn:       make(map[string]func(args []any) (any, error)),
		waitFn:       make(map[string]func(args []any) bool),
		navigateErr:  make(map[string]error),
		evalCalls:    make(map[string]int),
		waitCalls:    make(map[string]int),
		waitTimeouts: make(map[string]time.Duration),
	}
}

func (p *fakePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	p.calls++
	p.navigations = append(p.navigations, url)
	if err := p.navigateErr[url]; err != nil {
		return err
	}
	p.currentURL = url
	return nil
}

func (p *fakePage) CurrentURL(context.Context) (string, error) {
	p.calls++
	return p.currentURL, nil
}

func (p *fakePage) Eval(_ context.Context, js string, out any, args ...any) error {
	p.calls++
	p.evalCalls[js]++
	fn, ok := p.evalFn[js]
	if !ok {
		p.t.Fatalf("unscripted eval: %.80s", js)
	}
	v, err := fn(args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		p.t.Fatalf("marshal scripted result: %v", err)
	}
	return json.Unmarshal(data, out)
}

func (p *fakePage) WaitFor(_ context.Context, predicateJS string, timeout time.Duration, args ...any) error {
	p.calls++
	p.waitCalls[predicateJS]++
	p.waitTimeouts[predicateJS] = timeout
	if fn, ok := p.waitFn[predicateJS]; ok && fn(args) {
		return nil
	}
	return &WaitError{What: "page predicate", Timeout: timeout}
}

func (p *fakePage) Click(_ context.Context, pt Point) error {
	p.calls++
	p.clicks = append(p.clicks, pt)
	return nil
}

// testConfig keeps the engine's real code paths but shrinks every delay so
// the suite stays fast. Strategies constructed directly (bypassing New)
// still need a logger, so one is always set.
func testConfig() Config {
	return Config{
		ImagePollTimeout: 5 * time.Millisecond,
		NavigateTimeout:  50 * time.Millisecond,
		WaitTimeout:      20 * time.Millisecond,
		SettleDelay:      time.Millisecond,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

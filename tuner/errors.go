package tuner

import (
	"fmt"
	"time"
)

// UnknownStrategyError reports a profile whose strategy is outside the
// closed set. Resolve converts it to a failure Result; the error form is
// used by the capability entry points (DirectURL, Enumerate).
type UnknownStrategyError struct {
	Strategy Strategy
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("tuner: unknown strategy %q", e.Strategy)
}

// UnsupportedError reports an operation a strategy does not implement,
// such as enumerating channels on an image-match provider.
type UnsupportedError struct {
	Op       string
	Strategy Strategy
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("tuner: %s not supported by strategy %q", e.Op, e.Strategy)
}

// WaitError reports a bounded wait that expired. Most waits are recoverable
// (they trigger the next fallback tier); the strategy decides.
type WaitError struct {
	What    string
	Timeout time.Duration
	Err     error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("tuner: wait for %s exceeded %s: %v", e.What, e.Timeout, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }

// NavigateError reports a failed page navigation.
type NavigateError struct {
	URL string
	Err error
}

func (e *NavigateError) Error() string {
	return fmt.Sprintf("tuner: navigate %s: %v", e.URL, e.Err)
}

func (e *NavigateError) Unwrap() error { return e.Err }

package schemas

import "fmt"

// Sentinel error kinds surfaced by browser actions. The agent tool layer
// converts these into plain string results instead of propagating them.
var (
	ErrElementNotFound    = fmt.Errorf("element not found")
	ErrSelectorTimeout    = fmt.Errorf("selector timeout")
	ErrActionFailure      = fmt.Errorf("action failure")
	ErrSessionUnavailable = fmt.Errorf("session unavailable")
)

// ElementNotFoundError reports a selector that matched nothing, including
// after the recursive shadow-root fallback search.
func ElementNotFoundError(selector string) error {
	return fmt.Errorf("%w: no element matches %q in document or any shadow root", ErrElementNotFound, selector)
}

// SelectorTimeoutError reports a bounded wait that expired before the
// selector resolved.
func SelectorTimeoutError(selector string, ms int64) error {
	return fmt.Errorf("%w: %q did not resolve within %dms", ErrSelectorTimeout, selector, ms)
}

// ActionFailureError wraps a failure from an element that was located but
// could not be acted upon.
func ActionFailureError(action, selector string, cause error) error {
	return fmt.Errorf("%w: %s on %q: %v", ErrActionFailure, action, selector, cause)
}

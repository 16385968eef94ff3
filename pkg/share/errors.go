package share

import "fmt"

// ValidationError rejects a malformed share request before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid share request: %s: %s", e.Field, e.Reason)
}

// Notifier surfaces user-visible notices from the pipeline, such as an
// authorization denial. It is not an error channel; the pipeline result
// stays falsy without raising.
type Notifier interface {
	Warn(msg string)
}

// NopNotifier discards notices.
type NopNotifier struct{}

func (NopNotifier) Warn(string) {}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(msg string)

func (f NotifierFunc) Warn(msg string) { f(msg) }

package extract

import (
	"errors"
	"fmt"
)

// Kind classifies why an extraction failed
type Kind string

const (
	// KindNotFound: unknown source, or the source cannot play this media type
	KindNotFound Kind = "not_found"
	// KindPoolExhausted: no browser session became free in time; retryable
	KindPoolExhausted Kind = "pool_exhausted"
	// KindNavigation: the embed page itself failed to load
	KindNavigation Kind = "navigation_error"
	// KindTimeout: the request deadline passed
	KindTimeout Kind = "timeout"
	// KindInternal: engine crash or unexpected fault
	KindInternal Kind = "internal_error"
)

// Degrades reports whether the failure falls back to iframe embedding
// instead of surfacing as an error.
func (k Kind) Degrades() bool {
	return k == KindNavigation || k == KindTimeout
}

// Error is the only error type Engine.Extract returns
type Error struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("extract %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, KindInternal for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

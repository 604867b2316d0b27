package ccache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by Cache.Principal for a cache that has no
	// default principal yet (never initialized, or missing).
	ErrNotInitialized = errors.New("credential cache not initialized")

	// ErrCollection marks a failure to enumerate the cache collection itself,
	// as opposed to a single unreadable cache.
	ErrCollection = errors.New("credential cache collection unreadable")

	// ErrClosed is returned when a handle is used or closed after Close.
	ErrClosed = errors.New("credential cache handle closed")

	// ErrInvalidName is returned when a cache name does not belong to the
	// collection's namespace.
	ErrInvalidName = errors.New("invalid credential cache name")

	// ErrMalformedPrincipal is returned when a principal string cannot be parsed.
	ErrMalformedPrincipal = errors.New("malformed principal name")

	// ErrNoDefaultRealm is returned when a principal without realm is parsed
	// and no default realm is known.
	ErrNoDefaultRealm = errors.New("no default realm configured")
)

// Consolidation steps reported in ConsolidateError.
const (
	StepPrincipal  = "principal"
	StepResolve    = "resolve"
	StepInitialize = "initialize"
	StepStore      = "store"
)

// ConsolidateError reports which consolidation step failed for which target.
type ConsolidateError struct {
	Step   string
	Target string
	Source string
	Err    error
}

func (e *ConsolidateError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("consolidate %s from %s: %s: %v", e.Target, e.Source, e.Step, e.Err)
	}
	return fmt.Sprintf("consolidate %s: %s: %v", e.Target, e.Step, e.Err)
}

func (e *ConsolidateError) Unwrap() error {
	return e.Err
}

package loader

import (
	"errors"
	"fmt"
)

// Load failure kinds. Every error returned by Loader.Load wraps exactly one.
var (
	// ErrNetworkFetch means the entry artifact was unreachable or unreadable.
	// Retrying the navigation later may succeed.
	ErrNetworkFetch = errors.New("network fetch failure")

	// ErrDependencyConflict means a shared singleton library constraint was
	// violated. Not retried: the conflicting remote must be redeployed.
	ErrDependencyConflict = errors.New("dependency conflict")

	// ErrUnresolvedExposedUnit means the requested exposed name is absent
	// from the manifest or its implementation could not be produced.
	ErrUnresolvedExposedUnit = errors.New("unresolved exposed unit")
)

// LoadError describes a failed load of one exposed unit.
type LoadError struct {
	Location string
	Exposed  string
	Err      error
}

func (e *LoadError) Error() string {
	if e.Exposed != "" {
		return fmt.Sprintf("load %s from %s: %v", e.Exposed, e.Location, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Location, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Kind classifies err for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNetworkFetch):
		return "network_fetch"
	case errors.Is(err, ErrDependencyConflict):
		return "dependency_conflict"
	case errors.Is(err, ErrUnresolvedExposedUnit):
		return "unresolved_exposed_unit"
	default:
		return "unknown"
	}
}

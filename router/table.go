// Package router maps navigation paths to remote exposed units and keeps
// the single active view of the shell.
package router

import (
	"fmt"
	"strings"

	"github.com/najoast/mfshell/federation"
)

// Route binds a path to an exposed unit of a remote.
type Route struct {
	Path string
	Ref  federation.ExposedRef
}

// Table is the ordered route table. The first exact match wins; paths that
// match nothing are redirected to the default path.
type Table struct {
	routes      []Route
	defaultPath string
}

// NewTable validates routes and builds a table. defaultPath may be empty,
// in which case unmatched paths fail with ErrNoRoute.
func NewTable(routes []Route, defaultPath string) (*Table, error) {
	t := &Table{
		routes:      make([]Route, 0, len(routes)),
		defaultPath: normalize(defaultPath),
	}

	seen := make(map[string]bool, len(routes))
	for i, r := range routes {
		path := normalize(r.Path)
		if path == "" {
			return nil, fmt.Errorf("route[%d]: %w", i, ErrEmptyPath)
		}
		if seen[path] {
			return nil, fmt.Errorf("route[%d]: %w: /%s", i, ErrDuplicateRoute, path)
		}
		if r.Ref.Remote.EntryLocation == "" || r.Ref.ExposedName == "" {
			return nil, fmt.Errorf("route[%d] /%s: %w", i, path, ErrIncompleteRoute)
		}
		seen[path] = true
		r.Path = path
		t.routes = append(t.routes, r)
	}

	if t.defaultPath != "" && !seen[t.defaultPath] {
		return nil, fmt.Errorf("%w: /%s", ErrInvalidDefault, t.defaultPath)
	}
	return t, nil
}

// Match returns the first route whose path equals path.
func (t *Table) Match(path string) (Route, bool) {
	path = normalize(path)
	for _, r := range t.routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Resolve matches path, falling back to the default redirect. redirected
// reports whether the default was applied.
func (t *Table) Resolve(path string) (route Route, redirected bool, err error) {
	if r, ok := t.Match(path); ok {
		return r, false, nil
	}
	if t.defaultPath == "" {
		return Route{}, false, fmt.Errorf("%w: /%s", ErrNoRoute, normalize(path))
	}
	r, _ := t.Match(t.defaultPath)
	return r, true, nil
}

// DefaultPath returns the redirect target for unmatched paths.
func (t *Table) DefaultPath() string {
	return t.defaultPath
}

// Routes returns the routes in table order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

func normalize(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

package federation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is the build-time declaration of one remote: the units it
// exposes and the libraries it shares with the shell.
type Registry struct {
	name string

	mu        sync.RWMutex
	exposes   map[string]string
	factories map[string]Factory
	shared    []SharedLib
}

// NewRegistry creates an empty registry for the named remote.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:      name,
		exposes:   make(map[string]string),
		factories: make(map[string]Factory),
	}
}

// Name returns the remote's name.
func (r *Registry) Name() string {
	return r.name
}

// Publish exposes factory under exposedName. Exposed names are unique per
// remote.
func (r *Registry) Publish(exposedName string, factory Factory) error {
	if !validExposedName(exposedName) {
		return fmt.Errorf("%w: exposed name %q", ErrInvalidName, exposedName)
	}
	if factory == nil {
		return fmt.Errorf("%w: %s", ErrNilFactory, exposedName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.exposes[exposedName]; exists {
		return fmt.Errorf("%w: %s in remote %s", ErrDuplicateExposed, exposedName, r.name)
	}
	handle := r.handleFor(exposedName)
	r.exposes[exposedName] = handle
	r.factories[handle] = factory
	return nil
}

// MustPublish is like Publish but panics on error. Remotes call it from
// package initialisation, where a duplicate is a build mistake.
func (r *Registry) MustPublish(exposedName string, factory Factory) {
	if err := r.Publish(exposedName, factory); err != nil {
		panic(err)
	}
}

// Share declares a shared library.
func (r *Registry) Share(lib SharedLib) error {
	if strings.TrimSpace(lib.Name) == "" {
		return fmt.Errorf("%w: shared library name", ErrInvalidName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.shared {
		if existing.Name == lib.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateShared, lib.Name)
		}
	}
	r.shared = append(r.shared, lib)
	return nil
}

// ShareAll declares every library in versions (name → required version)
// with the same singleton and strict-version policy.
func (r *Registry) ShareAll(versions map[string]string, singleton, strict bool) error {
	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		err := r.Share(SharedLib{
			Name:            name,
			RequiredVersion: versions[name],
			Singleton:       singleton,
			StrictVersion:   strict,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Manifest compiles the registry into its entry artifact.
func (r *Registry) Manifest() Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exposes := make(map[string]string, len(r.exposes))
	for name, handle := range r.exposes {
		exposes[name] = handle
	}
	shared := make([]SharedLib, len(r.shared))
	copy(shared, r.shared)

	return Manifest{Name: r.name, Exposes: exposes, Shared: shared}
}

// Install registers the remote's implementations in catalog.
func (r *Registry) Install(catalog *Catalog) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]string, 0, len(r.factories))
	for h := range r.factories {
		handles = append(handles, h)
	}
	sort.Strings(handles)

	for _, h := range handles {
		if err := catalog.Register(h, r.factories[h]); err != nil {
			return fmt.Errorf("install remote %s: %w", r.name, err)
		}
	}
	return nil
}

func (r *Registry) handleFor(exposedName string) string {
	return r.name + ":" + strings.TrimPrefix(exposedName, "./")
}

func validExposedName(name string) bool {
	trimmed := strings.TrimPrefix(name, "./")
	if trimmed == "" {
		return false
	}
	return !strings.ContainsAny(trimmed, " \t\r\n:")
}

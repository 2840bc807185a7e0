// Package loader fetches remote entry artifacts, negotiates their shared
// libraries and hands back the implementation of an exposed unit.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/najoast/mfshell/federation"
)

// Loader resolves (entry location, exposed name) pairs to factories.
//
// Fetched artifacts are cached for the lifetime of the Loader, keyed by
// location, and never evicted. Concurrent loads of one location share a
// single in-flight fetch.
type Loader struct {
	fetcher Fetcher
	catalog *federation.Catalog
	shared  *SharedScope
	logger  *zap.Logger
	metrics *Metrics

	group singleflight.Group

	mu         sync.RWMutex
	cache      map[string]federation.Manifest
	negotiated map[string]bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithMetrics sets the loader's metrics.
func WithMetrics(m *Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// WithSharedScope sets the active shared-library set the loader negotiates
// against. By default each Loader gets its own empty scope.
func WithSharedScope(s *SharedScope) Option {
	return func(l *Loader) { l.shared = s }
}

// New creates a loader fetching through fetcher and resolving
// implementations through catalog.
func New(fetcher Fetcher, catalog *federation.Catalog, opts ...Option) *Loader {
	l := &Loader{
		fetcher:    fetcher,
		catalog:    catalog,
		logger:     zap.NewNop(),
		cache:      make(map[string]federation.Manifest),
		negotiated: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.shared == nil {
		l.shared = NewSharedScope(l.logger)
	}
	return l
}

// Shared returns the loader's shared-library scope.
func (l *Loader) Shared() *SharedScope {
	return l.shared
}

// Load returns the implementation of exposedName published by the remote at
// entryLocation. The returned factory is not yet instantiated.
func (l *Loader) Load(ctx context.Context, entryLocation, exposedName string) (federation.Factory, error) {
	factory, err := l.load(ctx, entryLocation, exposedName)
	if err != nil {
		l.metrics.recordFailure(err)
		l.logger.Warn("remote load failed",
			zap.String("location", entryLocation),
			zap.String("exposed", exposedName),
			zap.String("kind", Kind(err)),
			zap.Error(err))
		return nil, err
	}
	return factory, nil
}

func (l *Loader) load(ctx context.Context, entryLocation, exposedName string) (federation.Factory, error) {
	manifest, err := l.Manifest(ctx, entryLocation)
	if err != nil {
		return nil, &LoadError{Location: entryLocation, Exposed: exposedName, Err: err}
	}

	if err := l.negotiate(entryLocation, manifest); err != nil {
		return nil, &LoadError{Location: entryLocation, Exposed: exposedName, Err: err}
	}

	handle, ok := manifest.Handle(exposedName)
	if !ok {
		return nil, &LoadError{
			Location: entryLocation,
			Exposed:  exposedName,
			Err:      fmt.Errorf("%w: %s not exposed by %s", ErrUnresolvedExposedUnit, exposedName, manifest.Name),
		}
	}

	factory, err := l.catalog.Lookup(handle)
	if err != nil {
		return nil, &LoadError{
			Location: entryLocation,
			Exposed:  exposedName,
			Err:      fmt.Errorf("%w: %v", ErrUnresolvedExposedUnit, err),
		}
	}
	return factory, nil
}

// Manifest returns the entry artifact at location, fetching it on first use.
// A failed fetch leaves no cache entry behind.
func (l *Loader) Manifest(ctx context.Context, location string) (federation.Manifest, error) {
	if m, ok := l.cached(location); ok {
		l.metrics.recordCacheHit()
		return m, nil
	}

	ch := l.group.DoChan(location, func() (interface{}, error) {
		if m, ok := l.cached(location); ok {
			return m, nil
		}

		start := time.Now()
		// Shared by every waiter: one caller giving up does not cancel it.
		m, err := l.fetcher.Fetch(context.WithoutCancel(ctx), location)
		l.metrics.recordFetch(start, err)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetworkFetch, err)
		}

		l.mu.Lock()
		l.cache[location] = m
		l.mu.Unlock()

		l.logger.Info("remote entry fetched",
			zap.String("location", location),
			zap.String("remote", m.Name),
			zap.Int("exposes", len(m.Exposes)),
			zap.Duration("took", time.Since(start)))
		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return federation.Manifest{}, res.Err
		}
		return res.Val.(federation.Manifest), nil
	case <-ctx.Done():
		return federation.Manifest{}, fmt.Errorf("%w: %v", ErrNetworkFetch, context.Cause(ctx))
	}
}

// Cached reports whether the artifact at location is in the cache.
func (l *Loader) Cached(location string) bool {
	_, ok := l.cached(location)
	return ok
}

func (l *Loader) cached(location string) (federation.Manifest, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.cache[location]
	return m, ok
}

func (l *Loader) negotiate(location string, m federation.Manifest) error {
	l.mu.RLock()
	done := l.negotiated[location]
	l.mu.RUnlock()
	if done {
		return nil
	}

	if err := l.shared.Negotiate(m.Name, m.Shared); err != nil {
		return err
	}

	l.mu.Lock()
	l.negotiated[location] = true
	l.mu.Unlock()
	return nil
}

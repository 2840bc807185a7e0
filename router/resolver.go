package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/najoast/mfshell/federation"
	"github.com/najoast/mfshell/loader"
)

// Loader resolves an exposed unit of the remote at entryLocation.
type Loader interface {
	Load(ctx context.Context, entryLocation, exposedName string) (federation.Factory, error)
}

// Outcome is the result of one navigation. Navigation never panics and
// never returns an error directly: failures are reported here. A failure to
// resolve, fetch, negotiate or construct leaves the previously active view
// in place. A unit that fails to mount leaves no active view, since the
// outgoing unit was already torn down.
type Outcome struct {
	ID        string
	Requested string
	Route     Route

	// Redirected is set when the default redirect was applied
	Redirected bool

	// Reused is set when the route was already active
	Reused bool

	// Stale is set when a newer navigation superseded this one
	Stale bool

	Unit federation.Unit
	Err  error
}

// OK reports whether the navigation activated its unit.
func (o Outcome) OK() bool {
	return o.Err == nil && !o.Stale
}

type activeView struct {
	route Route
	unit  federation.Unit
	since time.Time
}

// Resolver performs navigations against a route table.
type Resolver struct {
	table   *Table
	loader  Loader
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.Mutex
	gen      uint64
	inflight context.CancelFunc
	active   *activeView
	closed   bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics sets the resolver's metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver with no active view.
func NewResolver(table *Table, l Loader, opts ...Option) *Resolver {
	r := &Resolver{
		table:  table,
		loader: l,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Table returns the resolver's route table.
func (r *Resolver) Table() *Table {
	return r.table
}

// Navigate resolves path, loads its unit lazily and makes it the active
// view. A navigation still in flight is cancelled and its result discarded.
func (r *Resolver) Navigate(ctx context.Context, path string) Outcome {
	out := Outcome{ID: uuid.NewString(), Requested: path}
	start := time.Now()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		out.Err = ErrClosed
		return out
	}
	r.gen++
	gen := r.gen
	if r.inflight != nil {
		r.inflight()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.inflight = cancel
	r.mu.Unlock()
	defer cancel()

	route, redirected, err := r.table.Resolve(path)
	out.Route, out.Redirected = route, redirected
	if err != nil {
		return r.fail(out, err, start)
	}
	if redirected {
		r.logger.Debug("navigation redirected",
			zap.String("from", path),
			zap.String("to", "/"+route.Path))
	}

	if unit, ok := r.current(route); ok {
		out.Unit, out.Reused = unit, true
		r.metrics.recordNavigation("reused", start)
		return out
	}

	factory, err := r.loader.Load(ctx, route.Ref.Remote.EntryLocation, route.Ref.ExposedName)
	if err != nil {
		if r.superseded(gen) {
			return r.discard(out, nil, start)
		}
		return r.fail(out, err, start)
	}

	unit, err := r.construct(factory)
	if err != nil {
		if r.superseded(gen) {
			return r.discard(out, nil, start)
		}
		return r.fail(out, fmt.Errorf("%w: %s: %v", loader.ErrUnresolvedExposedUnit, route.Ref, err), start)
	}

	r.mu.Lock()
	if gen != r.gen || r.closed {
		r.mu.Unlock()
		return r.discard(out, unit, start)
	}
	prev := r.active
	r.active = nil
	r.mu.Unlock()

	// The outgoing unit's token fires before the incoming unit mounts.
	if prev != nil {
		teardown(prev.unit, r.logger)
	}

	if err := r.mount(ctx, unit); err != nil {
		if r.superseded(gen) {
			return r.discard(out, nil, start)
		}
		return r.fail(out, fmt.Errorf("%w: %s: %v", loader.ErrUnresolvedExposedUnit, route.Ref, err), start)
	}

	r.mu.Lock()
	if gen != r.gen || r.closed {
		r.mu.Unlock()
		return r.discard(out, unit, start)
	}
	r.active = &activeView{route: route, unit: unit, since: time.Now()}
	r.inflight = nil
	r.mu.Unlock()

	out.Unit = unit
	r.metrics.recordNavigation("ok", start)
	r.logger.Info("navigation complete",
		zap.String("id", out.ID),
		zap.String("path", "/"+route.Path),
		zap.String("remote", route.Ref.Remote.Name),
		zap.String("unit", unit.Name()),
		zap.Duration("took", time.Since(start)))
	return out
}

// Active returns the active route and unit.
func (r *Resolver) Active() (Route, federation.Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return Route{}, nil, false
	}
	return r.active.route, r.active.unit, true
}

// Actions lists the action names of the active unit.
func (r *Resolver) Actions() []string {
	_, unit, ok := r.Active()
	if !ok {
		return nil
	}
	actionable, ok := unit.(federation.Actionable)
	if !ok {
		return nil
	}
	names := make([]string, 0)
	for name := range actionable.Actions() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch invokes a named action on the active unit.
func (r *Resolver) Dispatch(name string) (string, error) {
	_, unit, ok := r.Active()
	if !ok {
		return "", ErrNoActiveUnit
	}
	actionable, ok := unit.(federation.Actionable)
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrUnknownAction, name, unit.Name())
	}
	action, ok := actionable.Actions()[name]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrUnknownAction, name, unit.Name())
	}
	return action()
}

// Close cancels any navigation in flight and tears down the active unit.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.inflight != nil {
		r.inflight()
		r.inflight = nil
	}
	prev := r.active
	r.active = nil
	r.mu.Unlock()

	if prev != nil {
		teardown(prev.unit, r.logger)
	}
}

func (r *Resolver) current(route Route) (federation.Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.route.Path != route.Path {
		return nil, false
	}
	r.inflight = nil
	return r.active.unit, true
}

func (r *Resolver) superseded(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gen != r.gen || r.closed
}

func (r *Resolver) fail(out Outcome, err error, start time.Time) Outcome {
	out.Err = err
	r.metrics.recordNavigation("failed", start)
	r.metrics.recordFailure(err)

	fields := []zap.Field{
		zap.String("id", out.ID),
		zap.String("path", out.Requested),
		zap.String("kind", loader.Kind(err)),
		zap.Error(err),
	}
	if out.Route.Path != "" {
		fields = append(fields, zap.String("remote", out.Route.Ref.Remote.Name))
	}
	if errors.Is(err, loader.ErrUnresolvedExposedUnit) {
		r.logger.Error("navigation failed: remote configuration error", fields...)
	} else {
		r.logger.Warn("navigation failed", fields...)
	}
	return out
}

func (r *Resolver) discard(out Outcome, unit federation.Unit, start time.Time) Outcome {
	if unit != nil {
		teardown(unit, r.logger)
	}
	out.Stale = true
	r.metrics.recordNavigation("stale", start)
	r.logger.Debug("stale navigation discarded",
		zap.String("id", out.ID),
		zap.String("path", out.Requested))
	return out
}

// construct calls factory. A panic is reported as an error.
func (r *Resolver) construct(factory federation.Factory) (unit federation.Unit, err error) {
	defer func() {
		if p := recover(); p != nil {
			unit, err = nil, fmt.Errorf("construct: panic: %v", p)
		}
	}()

	unit, err = factory()
	if err != nil {
		return nil, fmt.Errorf("construct: %w", err)
	}
	if unit == nil {
		return nil, errors.New("construct: factory returned no unit")
	}
	return unit, nil
}

// mount mounts unit, tearing it down if Mount fails or panics.
func (r *Resolver) mount(ctx context.Context, unit federation.Unit) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("mount %s: panic: %v", unit.Name(), p)
		}
		if err != nil {
			teardown(unit, r.logger)
		}
	}()

	if err := unit.Mount(ctx); err != nil {
		return fmt.Errorf("mount %s: %w", unit.Name(), err)
	}
	return nil
}

func teardown(unit federation.Unit, logger *zap.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("unit teardown panicked",
				zap.String("unit", unit.Name()),
				zap.Any("panic", p))
		}
	}()
	unit.Teardown()
}

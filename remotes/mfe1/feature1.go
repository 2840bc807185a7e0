// Package mfe1 is the first bundled remote. It exposes ./Feature1Component,
// a greeting unit whose subscriptions end with its lifecycle scope.
package mfe1

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/najoast/mfshell/federation"
	"github.com/najoast/mfshell/lifecycle"
)

const (
	// Greeting is the result of the click action.
	Greeting = "Hello from MFE1 Feature1 Component!"

	observableValue = "Feature1 Observable Value"
)

// Feature1 observes a one-value stream, an uptime ticker and its own click
// events, all guarded by the unit's scope.
type Feature1 struct {
	id      string
	scope   *lifecycle.Scope
	logger  *zap.Logger
	tick    time.Duration
	clicked *lifecycle.Subject[int]

	mu       sync.Mutex
	observed []string
	ticks    int
	clicks   int
}

// NewFeature1 creates an unmounted unit. A non-positive tick disables the
// uptime ticker.
func NewFeature1(logger *zap.Logger, tick time.Duration) *Feature1 {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("unit", "Feature1"), zap.String("instance", id))
	return &Feature1{
		id:      id,
		scope:   lifecycle.NewScope("Feature1", logger),
		logger:  logger,
		tick:    tick,
		clicked: lifecycle.NewSubject[int](),
	}
}

func (f *Feature1) Name() string { return "Feature1" }

// Mount subscribes the unit's streams.
func (f *Feature1) Mount(ctx context.Context) error {
	token := f.scope.Token()

	f.scope.Track(lifecycle.Of(observableValue).TakeUntil(token).Subscribe(func(v string) {
		f.logger.Info(v)
		f.mu.Lock()
		f.observed = append(f.observed, v)
		f.mu.Unlock()
	}))

	f.scope.Track(f.clicked.Stream().TakeUntil(token).Subscribe(func(n int) {
		f.logger.Info("button clicked", zap.Int("clicks", n))
	}))

	if f.tick > 0 {
		f.scope.Track(lifecycle.Interval(f.tick).TakeUntil(token).Subscribe(func(int) {
			f.mu.Lock()
			f.ticks++
			f.mu.Unlock()
		}))
	}
	return nil
}

func (f *Feature1) Render() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("Feature1 [%s]\nobserved: %s\nticks: %d clicks: %d",
		f.id[:8], strings.Join(f.observed, ", "), f.ticks, f.clicks)
}

// Teardown destroys the scope, ending every subscription.
func (f *Feature1) Teardown() {
	f.scope.Destroy()
}

func (f *Feature1) Actions() map[string]federation.Action {
	return map[string]federation.Action{
		"click": f.click,
	}
}

func (f *Feature1) click() (string, error) {
	f.mu.Lock()
	f.clicks++
	n := f.clicks
	f.mu.Unlock()

	f.clicked.Next(n)
	return Greeting, nil
}

// Observed returns the values delivered so far.
func (f *Feature1) Observed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.observed...)
}

// Ticks returns the number of uptime ticks delivered so far.
func (f *Feature1) Ticks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks
}

// Token exposes the unit's cancellation signal.
func (f *Feature1) Token() *lifecycle.Token {
	return f.scope.Token()
}

// Package mfe2 is the second bundled remote. It exposes ./Feature2Component,
// a counter unit.
package mfe2

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/najoast/mfshell/federation"
	"github.com/najoast/mfshell/lifecycle"
)

// Counter is a mutex-guarded integer starting at zero.
type Counter struct {
	mu    sync.Mutex
	value int
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Decrement subtracts one and returns the new value.
func (c *Counter) Decrement() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value--
	return c.value
}

// Value returns the current value.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Feature2 renders a counter with increment and decrement actions.
type Feature2 struct {
	Counter

	scope  *lifecycle.Scope
	logger *zap.Logger
}

// NewFeature2 creates a unit with its counter at zero.
func NewFeature2(logger *zap.Logger) *Feature2 {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feature2{
		scope:  lifecycle.NewScope("Feature2", logger),
		logger: logger.With(zap.String("unit", "Feature2")),
	}
}

func (f *Feature2) Name() string { return "Feature2" }

func (f *Feature2) Mount(ctx context.Context) error {
	return nil
}

func (f *Feature2) Render() string {
	return fmt.Sprintf("Feature2\ncounter: %d", f.Value())
}

func (f *Feature2) Teardown() {
	f.logger.Debug("counter discarded", zap.Int("value", f.Value()))
	f.scope.Destroy()
}

func (f *Feature2) Actions() map[string]federation.Action {
	return map[string]federation.Action{
		"increment": func() (string, error) {
			return fmt.Sprintf("counter: %d", f.Increment()), nil
		},
		"decrement": func() (string, error) {
			return fmt.Sprintf("counter: %d", f.Decrement()), nil
		},
	}
}

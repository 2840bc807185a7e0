// Package lifecycle ties the asynchronous work of a loaded unit to the
// unit's teardown.
//
// A unit holds one Token by composition (usually through a Scope). Every
// subscription the unit starts is registered against that token, and the
// hosting environment fires it exactly once when the unit leaves the view.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrTornDown is the cancellation cause of contexts derived from a fired Token.
var ErrTornDown = errors.New("unit torn down")

// Token is a single-use, broadcast cancellation signal.
//
// The zero value is not usable; create tokens with NewToken.
type Token struct {
	mu        sync.Mutex
	fired     atomic.Bool
	done      chan struct{}
	nextID    uint64
	callbacks []callback
}

type callback struct {
	id uint64
	fn func()
}

// NewToken returns a fresh, not yet fired token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Signal fires the token. Registered callbacks run synchronously on the
// calling goroutine in registration order, then the token is complete.
// Calls after the first are no-ops.
func (t *Token) Signal() {
	t.mu.Lock()
	if t.fired.Load() {
		t.mu.Unlock()
		return
	}
	t.fired.Store(true)
	close(t.done)
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb.fn()
	}
}

// OnCancel registers fn to run when the token fires. If the token has
// already fired, fn runs immediately and synchronously.
//
// The returned stop function unregisters fn and reports whether it did so
// before the token fired.
func (t *Token) OnCancel(fn func()) (stop func() bool) {
	t.mu.Lock()
	if t.fired.Load() {
		t.mu.Unlock()
		fn()
		return func() bool { return false }
	}
	t.nextID++
	id := t.nextID
	t.callbacks = append(t.callbacks, callback{id: id, fn: fn})
	t.mu.Unlock()

	return func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, cb := range t.callbacks {
			if cb.id == id {
				t.callbacks = append(t.callbacks[:i], t.callbacks[i+1:]...)
				return true
			}
		}
		return false
	}
}

// IsCancelled reports whether the token has fired.
func (t *Token) IsCancelled() bool {
	return t.fired.Load()
}

// Done returns a channel closed when the token fires.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Context derives a context from parent that is cancelled with ErrTornDown
// when the token fires. The returned cancel func releases the registration.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := t.OnCancel(func() { cancel(ErrTornDown) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// pending returns the number of callbacks still waiting for the signal.
func (t *Token) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.callbacks)
}

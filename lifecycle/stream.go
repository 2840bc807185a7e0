package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Producer pushes values into emit until ctx is done, emit returns false,
// or it runs out of values.
type Producer[T any] func(ctx context.Context, emit func(T) bool)

// Stream is a cold source of values. Each Subscribe runs the producer anew.
type Stream[T any] struct {
	produce Producer[T]
	attach  func(emit func(T) bool) (detach func())
	async   bool
	gates   []func() bool
}

// New wraps a synchronous producer: Subscribe returns after it finishes.
func New[T any](produce Producer[T]) Stream[T] {
	return Stream[T]{produce: produce}
}

// NewAsync wraps a producer that waits on time or channels. Subscribe runs
// it on its own goroutine.
func NewAsync[T any](produce Producer[T]) Stream[T] {
	return Stream[T]{produce: produce, async: true}
}

// NewHot wraps a source that pushes values from other goroutines. attach
// registers emit before Subscribe returns, so no value sent after Subscribe
// is missed; detach runs once ctx is done or done is closed.
func NewHot[T any](attach func(emit func(T) bool) (detach func()), done <-chan struct{}) Stream[T] {
	return Stream[T]{
		attach: attach,
		async:  true,
		produce: func(ctx context.Context, emit func(T) bool) {
			select {
			case <-ctx.Done():
			case <-done:
			}
		},
	}
}

// Of emits values synchronously, then completes.
func Of[T any](values ...T) Stream[T] {
	return New(func(ctx context.Context, emit func(T) bool) {
		for _, v := range values {
			if ctx.Err() != nil || !emit(v) {
				return
			}
		}
	})
}

// FromChan emits everything received on ch until ch is closed.
func FromChan[T any](ch <-chan T) Stream[T] {
	return NewAsync(func(ctx context.Context, emit func(T) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-ch:
				if !ok || !emit(v) {
					return
				}
			}
		}
	})
}

// Interval emits 0, 1, 2, ... every d. It never completes on its own.
func Interval(d time.Duration) Stream[int] {
	return NewAsync(func(ctx context.Context, emit func(int) bool) {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for n := 0; ; n++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !emit(n) {
					return
				}
			}
		}
	})
}

// TakeUntil mirrors s until t fires. No value emitted after Signal returns
// is delivered; a delivery that had already started when Signal was called
// may still finish. Subscribing after t fired completes immediately without
// running the upstream producer.
func (s Stream[T]) TakeUntil(t *Token) Stream[T] {
	produce := s.produce
	gates := append(append([]func() bool(nil), s.gates...), func() bool { return !t.IsCancelled() })
	guard := func(emit func(T) bool) func(T) bool {
		return func(v T) bool {
			if t.IsCancelled() {
				return false
			}
			return emit(v)
		}
	}

	var attach func(emit func(T) bool) func()
	if s.attach != nil {
		upstream := s.attach
		attach = func(emit func(T) bool) func() { return upstream(guard(emit)) }
	}
	return Stream[T]{
		async:  s.async,
		attach: attach,
		gates:  gates,
		produce: func(ctx context.Context, emit func(T) bool) {
			ctx, cancel := t.Context(ctx)
			defer cancel()
			produce(ctx, guard(emit))
		},
	}
}

// Subscribe starts delivering values to next.
func (s Stream[T]) Subscribe(next func(T)) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	for _, open := range s.gates {
		if !open() {
			sub.finish()
			return sub
		}
	}

	deliver := func(v T) bool {
		if sub.closed.Load() {
			return false
		}
		next(v)
		return !sub.closed.Load()
	}

	var detach func()
	if s.attach != nil {
		detach = s.attach(deliver)
	}
	run := func() {
		defer sub.finish()
		if detach != nil {
			defer detach()
		}
		s.produce(ctx, deliver)
	}
	if s.async {
		go run()
	} else {
		run()
	}
	return sub
}

// Subscription is a running delivery from a Stream.
type Subscription struct {
	closed atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe stops delivery. No value is handed to the subscriber after
// Unsubscribe returns, except one whose delivery was already in progress.
func (s *Subscription) Unsubscribe() {
	s.closed.Store(true)
	s.cancel()
}

// Done is closed once the producer has returned and released its resources.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the subscription was unsubscribed or completed.
func (s *Subscription) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return s.closed.Load()
	}
}

func (s *Subscription) finish() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}

package lifecycle

import "sync"

// Subject is a hot multicast source: Next hands a value to every attached
// subscriber on the caller's goroutine. Subscribers see only values sent
// after they attach; Observers reports how many are attached.
type Subject[T any] struct {
	mu        sync.Mutex
	next      uint64
	observers map[uint64]func(T) bool
	complete  bool
	done      chan struct{}
}

// NewSubject creates a subject with no observers.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{
		observers: make(map[uint64]func(T) bool),
		done:      make(chan struct{}),
	}
}

// Next delivers v to every attached subscriber. It is a no-op after Complete.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	if s.complete {
		s.mu.Unlock()
		return
	}
	emits := make([]func(T) bool, 0, len(s.observers))
	for _, emit := range s.observers {
		emits = append(emits, emit)
	}
	s.mu.Unlock()

	for _, emit := range emits {
		emit(v)
	}
}

// Complete ends every subscription. Later subscriptions complete at once.
func (s *Subject[T]) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.complete {
		return
	}
	s.complete = true
	close(s.done)
}

// Observers returns the number of attached subscribers.
func (s *Subject[T]) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// Stream returns the subject as a Stream. A subscription is attached when
// Subscribe returns and detaches when it ends.
func (s *Subject[T]) Stream() Stream[T] {
	return NewHot(func(emit func(T) bool) func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.complete {
			return func() {}
		}
		id := s.next
		s.next++
		s.observers[id] = emit
		return func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		}
	}, s.done)
}

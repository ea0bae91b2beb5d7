// Package history provides a bounded undo/redo store over any state type.
package history

// DefaultCapacity is the undo depth used when none is given.
const DefaultCapacity = 20

// Store keeps past, present and future states. States beyond capacity are
// dropped oldest first and cannot be recovered.
//
// Store is not safe for concurrent use; its owner serializes access.
type Store[T any] struct {
	past     []T
	present  T
	future   []T
	capacity int
	clone    func(T) T
}

type Option[T any] func(*Store[T])

// WithCapacity sets the undo depth. Values below 1 are ignored.
func WithCapacity[T any](n int) Option[T] {
	return func(s *Store[T]) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClone makes the store copy states on the way in and out, so callers
// can keep mutating the values they pass to Set.
func WithClone[T any](clone func(T) T) Option[T] {
	return func(s *Store[T]) {
		s.clone = clone
	}
}

func New[T any](initial T, opts ...Option[T]) *Store[T] {
	s := &Store[T]{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	s.present = s.copy(initial)
	return s
}

func (s *Store[T]) copy(v T) T {
	if s.clone == nil {
		return v
	}
	return s.clone(v)
}

// Present returns the current state.
func (s *Store[T]) Present() T {
	return s.copy(s.present)
}

// Set records a new state. The previous present moves onto the undo stack
// and any redo branch is discarded.
func (s *Store[T]) Set(next T) {
	s.past = append(s.past, s.present)
	if over := len(s.past) - s.capacity; over > 0 {
		clear(s.past[:over])
		s.past = append(s.past[:0], s.past[over:]...)
	}
	s.future = nil
	s.present = s.copy(next)
}

// Undo restores the previous state. It reports false when there is none.
func (s *Store[T]) Undo() bool {
	n := len(s.past)
	if n == 0 {
		return false
	}
	prev := s.past[n-1]
	var zero T
	s.past[n-1] = zero
	s.past = s.past[:n-1]

	s.future = append([]T{s.present}, s.future...)
	s.present = prev
	return true
}

// Redo re-applies the next state. It reports false when there is none.
func (s *Store[T]) Redo() bool {
	if len(s.future) == 0 {
		return false
	}
	next := s.future[0]
	s.future = s.future[1:]

	s.past = append(s.past, s.present)
	s.present = next
	return true
}

// Reset replaces the present and forgets all history.
func (s *Store[T]) Reset(state T) {
	s.past = nil
	s.future = nil
	s.present = s.copy(state)
}

func (s *Store[T]) CanUndo() bool { return len(s.past) > 0 }
func (s *Store[T]) CanRedo() bool { return len(s.future) > 0 }

func (s *Store[T]) PastLen() int   { return len(s.past) }
func (s *Store[T]) FutureLen() int { return len(s.future) }
func (s *Store[T]) Capacity() int  { return s.capacity }

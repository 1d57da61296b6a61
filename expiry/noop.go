// File: expiry/noop.go
package expiry

// Noop never expires anything. It is used when idle eviction is disabled.
type Noop[T comparable] struct{}

// NewNoop returns a tracker that keeps no state.
func NewNoop[T comparable]() *Noop[T] { return &Noop[T]{} }

func (*Noop[T]) Add(T) Hint          { return 0 }
func (*Noop[T]) Touch(T, Hint) Hint  { return 0 }
func (*Noop[T]) Remove(T, Hint) bool { return false }
func (*Noop[T]) Expired() []T        { return nil }
func (*Noop[T]) Len() int            { return 0 }
func (*Noop[T]) Start()              {}
func (*Noop[T]) Stop()               {}

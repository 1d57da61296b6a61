// File: expiry/tracker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package expiry

import "time"

// MinTimeout is the smallest idle timeout that enables expiration.
const MinTimeout = 40 * time.Millisecond

// Hint is the generation an item was added or touched in. It lets Touch and
// Remove find the item's bucket without scanning.
type Hint uint64

// Tracker tracks items for idle expiration.
//
// Add, Touch, Remove and Expired are meant for a single owner goroutine;
// implementations serialize them against their own background ticker.
type Tracker[T comparable] interface {
	Add(item T) Hint
	Touch(item T, hint Hint) Hint
	Remove(item T, hint Hint) bool
	Expired() []T
	Len() int
	Start()
	Stop()
}

// New returns a Generational tracker ticking every timeout, or a Noop
// tracker when timeout is below MinTimeout.
func New[T comparable](timeout time.Duration) Tracker[T] {
	if timeout < MinTimeout {
		return NewNoop[T]()
	}
	return NewGenerational[T](timeout)
}

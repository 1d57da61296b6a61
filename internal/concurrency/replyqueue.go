// File: internal/concurrency/replyqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// ReplyQueue is a multi-producer, single-consumer FIFO. Workers push and the
// reactor drains after every wakeup.
type ReplyQueue[T any] struct {
	mu sync.Mutex
	q  *queue.Queue
}

// NewReplyQueue returns an empty queue.
func NewReplyQueue[T any]() *ReplyQueue[T] {
	return &ReplyQueue[T]{q: queue.New()}
}

// Push appends item.
func (r *ReplyQueue[T]) Push(item T) {
	r.mu.Lock()
	r.q.Add(item)
	r.mu.Unlock()
}

// Drain removes every queued item in FIFO order and passes it to fn. Items
// pushed while fn runs are left for the next Drain. fn runs without the lock.
func (r *ReplyQueue[T]) Drain(fn func(T)) int {
	r.mu.Lock()
	n := r.q.Length()
	if n == 0 {
		r.mu.Unlock()
		return 0
	}
	items := make([]T, n)
	for i := range items {
		items[i] = r.q.Remove().(T)
	}
	r.mu.Unlock()
	for _, it := range items {
		fn(it)
	}
	return n
}

// Len returns the number of queued items.
func (r *ReplyQueue[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Length()
}

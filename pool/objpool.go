// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// typedPool is a sync.Pool bound to one element type.
type typedPool[T any] struct {
	p sync.Pool
}

func newTypedPool[T any](newFn func() T) *typedPool[T] {
	return &typedPool[T]{p: sync.Pool{New: func() any { return newFn() }}}
}

func (tp *typedPool[T]) get() T  { return tp.p.Get().(T) }
func (tp *typedPool[T]) put(v T) { tp.p.Put(v) }

// BufferPool hands out read buffers of a fixed length. Get always returns a
// slice of exactly Size bytes; Put drops buffers too small to serve again.
type BufferPool struct {
	size int
	bufs *typedPool[*[]byte]
}

// NewBufferPool pools byte slices of length size.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		bufs: newTypedPool(func() *[]byte {
			b := make([]byte, size)
			return &b
		}),
	}
}

// Size is the length of every buffer returned by Get.
func (bp *BufferPool) Size() int { return bp.size }

func (bp *BufferPool) Get() *[]byte {
	b := bp.bufs.get()
	*b = (*b)[:bp.size]
	return b
}

func (bp *BufferPool) Put(b *[]byte) {
	if b == nil || cap(*b) < bp.size {
		return
	}
	bp.bufs.put(b)
}

// File: expiry/generational.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package expiry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Generational is a three-bucket tracker advanced by a ticker.
type Generational[T comparable] struct {
	interval time.Duration

	mu         sync.Mutex
	generation atomic.Uint64 // written under mu
	current    map[T]struct{}
	previous   map[T]struct{}
	obsolete   map[T]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	stopped   chan struct{}
}

// NewGenerational returns a tracker that ticks every interval once started.
func NewGenerational[T comparable](interval time.Duration) *Generational[T] {
	return &Generational[T]{
		interval: interval,
		current:  make(map[T]struct{}),
		previous: make(map[T]struct{}),
		obsolete: make(map[T]struct{}),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Generation returns the current tick count.
func (g *Generational[T]) Generation() uint64 { return g.generation.Load() }

// Add starts tracking item in the current generation.
func (g *Generational[T]) Add(item T) Hint {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current[item] = struct{}{}
	return Hint(g.generation.Load())
}

// Touch moves item into the current generation. An item that is no longer
// tracked is added again.
func (g *Generational[T]) Touch(item T, hint Hint) Hint {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b := g.bucket(hint); b != nil {
		delete(b, item)
	}
	g.current[item] = struct{}{}
	return Hint(g.generation.Load())
}

// Remove stops tracking item and reports whether it was tracked.
func (g *Generational[T]) Remove(item T, hint Hint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.bucket(hint)
	if _, ok := b[item]; !ok {
		return false
	}
	delete(b, item)
	return true
}

// Expired drains the obsolete bucket.
func (g *Generational[T]) Expired() []T {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.obsolete) == 0 {
		return nil
	}
	out := make([]T, 0, len(g.obsolete))
	for item := range g.obsolete {
		out = append(out, item)
	}
	g.obsolete = make(map[T]struct{})
	return out
}

// Len returns the number of tracked items, obsolete ones included.
func (g *Generational[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.current) + len(g.previous) + len(g.obsolete)
}

// Tick advances the generation by one. Start calls it every interval.
func (g *Generational[T]) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.obsolete) == 0 {
		g.obsolete = g.previous
	} else {
		for item := range g.previous {
			g.obsolete[item] = struct{}{}
		}
	}
	g.previous = g.current
	g.current = make(map[T]struct{})
	g.generation.Add(1)
}

// bucket resolves hint against the current generation. Must hold mu.
func (g *Generational[T]) bucket(hint Hint) map[T]struct{} {
	gen := g.generation.Load()
	switch uint64(hint) {
	case gen:
		return g.current
	case gen - 1:
		return g.previous
	default:
		return g.obsolete
	}
}

// Start launches the background ticker. Later calls are no-ops.
func (g *Generational[T]) Start() {
	g.startOnce.Do(func() {
		go g.run()
	})
}

// Stop terminates the ticker and waits for it. It is idempotent and safe
// to call without Start.
func (g *Generational[T]) Stop() {
	g.stopOnce.Do(func() {
		close(g.stop)
		started := true
		g.startOnce.Do(func() { started = false })
		if started {
			<-g.stopped
		}
	})
}

func (g *Generational[T]) run() {
	defer close(g.stopped)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.Tick()
		case <-g.stop:
			return
		}
	}
}

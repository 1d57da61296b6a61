// File: internal/concurrency/executor.go
// Package concurrency
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks to a fixed set of worker goroutines through an
// unbounded FIFO queue guarded by a mutex and condition variable.

package concurrency

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/lvreactor/affinity"
	"github.com/momentics/lvreactor/api"
)

// ErrExecutorClosed is returned by Submit after Close.
var ErrExecutorClosed = fmt.Errorf("executor closed: %w", api.ErrClosed)

// TaskFunc is a unit of work to execute.
type TaskFunc = func()

// PanicHandler receives values recovered from panicking tasks.
type PanicHandler func(recovered any)

// Executor manages a pool of worker goroutines.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	closed  bool
	wg      sync.WaitGroup
	onPanic PanicHandler

	numWorkers int
	pin        bool
	onPinError func(worker int, err error)

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
}

var _ api.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithCPUAffinity pins worker i to the i-th CPU the process may run on.
// Pinning failures are passed to onError, which may be nil.
func WithCPUAffinity(onError func(worker int, err error)) Option {
	return func(e *Executor) {
		e.pin = true
		e.onPinError = onError
	}
}

// NewExecutor starts numWorkers goroutines. If numWorkers <= 0, defaults to
// runtime.NumCPU().
func NewExecutor(numWorkers int, onPanic PanicHandler, opts ...Option) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		tasks:      queue.New(),
		onPanic:    onPanic,
		numWorkers: numWorkers,
	}
	for _, o := range opts {
		o(e)
	}
	e.cond = sync.NewCond(&e.mu)
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.worker(i)
	}
	return e
}

// Submit enqueues a task. It never blocks on a busy pool.
func (e *Executor) Submit(task TaskFunc) error {
	if task == nil {
		return errors.New("nil task")
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.tasks.Add(task)
	e.totalTasks.Add(1)
	e.mu.Unlock()
	e.cond.Signal()
	return nil
}

// NumWorkers returns the number of worker goroutines.
func (e *Executor) NumWorkers() int { return e.numWorkers }

// Close stops intake, lets queued tasks finish and waits for the workers.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.cond.Broadcast()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	done := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"num_workers":     int64(e.numWorkers),
	}
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()
	if e.pin {
		if err := affinity.Pin(id); err != nil && e.onPinError != nil {
			e.onPinError(id, err)
		}
	}
	for {
		e.mu.Lock()
		for e.tasks.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.tasks.Length() == 0 {
			e.mu.Unlock()
			return
		}
		task := e.tasks.Remove().(TaskFunc)
		e.mu.Unlock()
		e.executeTask(task)
	}
}

// executeTask runs the task and updates statistics, recovering from panics.
func (e *Executor) executeTask(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil && e.onPanic != nil {
			e.onPanic(r)
		}
		e.completedTasks.Add(1)
	}()
	task()
}

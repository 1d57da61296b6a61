// Package api
// Author: momentics
//
// Executor contract for the worker pool running business logic.

package api

// Executor runs submitted tasks on worker goroutines.
type Executor interface {
	// Submit schedules task for execution. It must not block the caller.
	Submit(task func()) error

	// NumWorkers returns the number of worker goroutines.
	NumWorkers() int

	// Close stops accepting tasks, runs the queued ones and waits for workers.
	Close()
}

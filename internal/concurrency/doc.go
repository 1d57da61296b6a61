// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for the reactor: a worker-pool executor running
// business logic and the multi-producer reply queue carrying outcomes back to
// the reactor goroutine. Both sit on an unbounded FIFO so the reactor never
// blocks on submission.
package concurrency

// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral declarations of the poller.

package reactor

// Interest selects the readiness a descriptor is registered for.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Event contains readiness information returned by Wait.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	// Closed is set on hangup or socket error.
	Closed bool
}

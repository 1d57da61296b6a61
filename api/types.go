// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations.

package api

import "time"

// SessionStatus enumerates the reactor-side state of a connection.
type SessionStatus int

const (
	SessionReading SessionStatus = iota
	SessionDispatched
	SessionWriting
	SessionClosed
)

func (s SessionStatus) String() string {
	switch s {
	case SessionReading:
		return "reading"
	case SessionDispatched:
		return "dispatched"
	case SessionWriting:
		return "writing"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of the reactor.
type Stats struct {
	Sessions  int
	InFlight  int
	Tracked   int
	Workers   int
	StartedAt time.Time
}

// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error values shared by the reactor, codecs and client helpers.

package api

import "errors"

// Common errors used across the library.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrClosed            = errors.New("resource is closed")
	ErrNotSupported      = errors.New("operation not supported")
	ErrShutdown          = errors.New("server is shutting down")
	ErrProtocolViolation = errors.New("protocol violation")
)

// ErrorCode classifies why a connection was closed by the reactor.
type ErrorCode int

const (
	CloseByPeer ErrorCode = iota
	CloseNotified
	CloseExpired
	CloseSessionEnded
	CloseProtocolViolation
	CloseIOError
	CloseShutdown
)

// String returns the label used in logs and metrics.
func (c ErrorCode) String() string {
	switch c {
	case CloseByPeer:
		return "peer"
	case CloseNotified:
		return "notified"
	case CloseExpired:
		return "expired"
	case CloseSessionEnded:
		return "session_ended"
	case CloseProtocolViolation:
		return "protocol_violation"
	case CloseIOError:
		return "io_error"
	case CloseShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// ErrorObserver receives errors the reactor could not attribute to a single
// connection. It is invoked on the reactor goroutine and must not block.
type ErrorObserver interface {
	OnUnhandledError(err error)
}

// ErrorObserverFunc adapts a function to ErrorObserver.
type ErrorObserverFunc func(err error)

// OnUnhandledError calls f(err).
func (f ErrorObserverFunc) OnUnhandledError(err error) { f(err) }

// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent part of the socket layer.

package transport

import (
	"errors"
	"net"
)

// ErrWouldBlock reports that a non-blocking call could not make progress.
var ErrWouldBlock = errors.New("operation would block")

// Listener is a non-blocking listening socket.
type Listener struct {
	fd   int
	addr *net.TCPAddr
}

// FD returns the descriptor to register with the poller.
func (l *Listener) FD() int { return l.fd }

// Addr returns the bound address, including a kernel-chosen port.
func (l *Listener) Addr() net.Addr { return l.addr }

// Conn is an accepted non-blocking connection.
type Conn struct {
	FD     int
	Remote net.Addr
}

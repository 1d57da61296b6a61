//go:build !linux
// +build !linux

// File: internal/transport/transport_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub for platforms without the epoll reactor.

package transport

import "github.com/momentics/lvreactor/api"

func Listen(address string, backlog int) (*Listener, error) { return nil, api.ErrNotSupported }

func (l *Listener) Accept() (Conn, error) { return Conn{}, api.ErrNotSupported }

func (l *Listener) Close() error { return api.ErrNotSupported }

func Read(fd int, p []byte) (int, error) { return 0, api.ErrNotSupported }

func Write(fd int, p []byte) (int, error) { return 0, api.ErrNotSupported }

func Close(fd int) error { return api.ErrNotSupported }

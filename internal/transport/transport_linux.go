//go:build linux
// +build linux

// File: internal/transport/transport_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux sockets via golang.org/x/sys/unix.

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// Listen binds a non-blocking TCP listener. An address without a host binds
// all interfaces, dual-stack when IPv6 is available.
func Listen(address string, backlog int) (*Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}

	family, sa := sockaddr(tcpAddr)
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil && family == unix.AF_INET6 && tcpAddr.IP == nil {
		family, sa = unix.AF_INET, &unix.SockaddrInet4{Port: tcpAddr.Port}
		fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	}
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}

	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if family == unix.AF_INET6 && tcpAddr.IP == nil {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", address, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("getsockname: %w", err)
	}
	return &Listener{fd: fd, addr: tcpAddrOf(bound)}, nil
}

// Accept returns the next pending connection, or ErrWouldBlock when the
// backlog is empty. Connections are non-blocking with TCP_NODELAY set.
func (l *Listener) Accept() (Conn, error) {
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			return Conn{FD: nfd, Remote: tcpAddrOf(sa)}, nil
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
			continue
		case errors.Is(err, unix.EAGAIN):
			return Conn{}, ErrWouldBlock
		default:
			return Conn{}, fmt.Errorf("accept: %w", err)
		}
	}
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// Read reads available bytes. It returns io.EOF when the peer closed its side.
func Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		switch {
		case err == nil && n == 0 && len(p) > 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		default:
			return 0, fmt.Errorf("read: %w", err)
		}
	}
}

// Write writes as much of p as the socket accepts without raising SIGPIPE.
func Write(fd int, p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		default:
			return 0, fmt.Errorf("write: %w", err)
		}
	}
}

// Close closes a connection descriptor.
func Close(fd int) error {
	return unix.Close(fd)
}

func sockaddr(a *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := a.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: a.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: a.Port}
	if a.IP != nil {
		copy(sa.Addr[:], a.IP.To16())
	}
	return unix.AF_INET6, sa
}

func tcpAddrOf(sa unix.Sockaddr) *net.TCPAddr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), v.Addr[:]...)), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), v.Addr[:]...)), Port: v.Port}
	default:
		return &net.TCPAddr{}
	}
}

//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based poller with eventfd(2) wakeup.

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/lvreactor/api"
)

// Poller is an epoll instance. Add, Modify, Remove and Wait belong to the
// reactor goroutine; Wakeup may be called from any goroutine.
type Poller struct {
	epfd   int
	wakefd int
	raw    []unix.EpollEvent

	mu     sync.RWMutex
	closed bool
}

// New creates a poller reporting at most maxEvents events per Wait.
func New(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 128
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	p := &Poller{epfd: epfd, wakefd: wakefd, raw: make([]unix.EpollEvent, maxEvents)}
	if err := p.ctl(unix.EPOLL_CTL_ADD, wakefd, InterestRead); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, err
	}
	return p, nil
}

// Add registers fd.
func (p *Poller) Add(fd int, in Interest) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, in)
}

// Modify replaces the interest of a registered fd.
func (p *Poller) Modify(fd int, in Interest) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, in)
}

// Remove deregisters fd.
func (p *Poller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del %d: %w", fd, err)
	}
	return nil
}

func (p *Poller) ctl(op, fd int, in Interest) error {
	ev := unix.EpollEvent{Fd: int32(fd)}
	if in&InterestRead != 0 {
		ev.Events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if in&InterestWrite != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl %d fd %d: %w", op, fd, err)
	}
	return nil
}

// Wait blocks until readiness, a Wakeup or the timeout. A negative timeout
// waits indefinitely. Wakeups are consumed here and not reported as events.
func (p *Poller) Wait(events []Event, timeout time.Duration) (int, error) {
	limit := min(len(events), len(p.raw))
	if limit == 0 {
		return 0, fmt.Errorf("%w: empty event buffer", api.ErrInvalidArgument)
	}
	msec := -1
	if timeout >= 0 {
		msec = int(timeout.Milliseconds())
		if msec == 0 && timeout > 0 {
			msec = 1
		}
	}
	n, err := unix.EpollWait(p.epfd, p.raw[:limit], msec)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	out := 0
	for i := 0; i < n; i++ {
		ev := p.raw[i]
		if int(ev.Fd) == p.wakefd {
			p.drainWakeups()
			continue
		}
		events[out] = Event{
			FD:       int(ev.Fd),
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Closed:   ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
		}
		out++
	}
	return out, nil
}

func (p *Poller) drainWakeups() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Wakeup interrupts a blocked Wait. It is safe for concurrent use and is a
// no-op after Close.
func (p *Poller) Wakeup() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return api.ErrClosed
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

// Close releases the epoll instance and the eventfd.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return errors.Join(unix.Close(p.wakefd), unix.Close(p.epfd))
}

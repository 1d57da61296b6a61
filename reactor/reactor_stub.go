//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"time"

	"github.com/momentics/lvreactor/api"
)

// Poller is unavailable on this platform.
type Poller struct{}

// New returns api.ErrNotSupported.
func New(maxEvents int) (*Poller, error) { return nil, api.ErrNotSupported }

func (p *Poller) Add(fd int, in Interest) error    { return api.ErrNotSupported }
func (p *Poller) Modify(fd int, in Interest) error { return api.ErrNotSupported }
func (p *Poller) Remove(fd int) error              { return api.ErrNotSupported }
func (p *Poller) Wakeup() error                    { return api.ErrNotSupported }
func (p *Poller) Close() error                     { return api.ErrNotSupported }

func (p *Poller) Wait(events []Event, timeout time.Duration) (int, error) {
	return 0, api.ErrNotSupported
}

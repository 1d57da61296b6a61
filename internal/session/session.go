// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/expiry"
	"github.com/momentics/lvreactor/reactor"
)

// Session holds per-connection state.
type Session struct {
	ID         string
	FD         int
	Remote     net.Addr
	Codec      api.ServerCodec
	Ctx        *api.ClientContext
	AcceptedAt time.Time

	// Processor is the instance serving the current request, or the one
	// retained across requests when Ctx.RetainsProcessor() is set.
	Processor api.Processor

	Status api.SessionStatus

	// Hint locates the session in the expiration tracker while Tracked.
	Hint    expiry.Hint
	Tracked bool

	// Interest is the poller registration; zero means not registered.
	Interest reactor.Interest

	out []byte
	off int
}

// New creates a session for an accepted descriptor.
func New(fd int, remote net.Addr, codec api.ServerCodec, ctx *api.ClientContext) *Session {
	return &Session{
		ID:         uuid.NewString(),
		FD:         fd,
		Remote:     remote,
		Codec:      codec,
		Ctx:        ctx,
		AcceptedAt: time.Now(),
		Status:     api.SessionReading,
	}
}

// SetOutbound installs an encoded reply to be written.
func (s *Session) SetOutbound(wire []byte) {
	s.out = wire
	s.off = 0
}

// Pending returns the unwritten part of the reply.
func (s *Session) Pending() []byte {
	return s.out[s.off:]
}

// Advance records n written bytes and reports whether the reply is drained.
// A drained reply is released.
func (s *Session) Advance(n int) bool {
	s.off += n
	if s.off < len(s.out) {
		return false
	}
	s.out = nil
	s.off = 0
	return true
}

// String identifies the session in logs.
func (s *Session) String() string {
	if s.Remote == nil {
		return s.ID
	}
	return s.ID + "@" + s.Remote.String()
}

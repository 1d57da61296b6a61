// File: fake/processors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package fake provides processors and observers for tests.
package fake

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/protocol"
)

// MalformedRequestError is returned by Validating for empty requests.
type MalformedRequestError struct {
	Msg string
}

func (e *MalformedRequestError) Error() string { return e.Msg }

func init() {
	protocol.RegisterFault(&MalformedRequestError{}, func(msg string) error {
		return &MalformedRequestError{Msg: msg}
	})
}

// Echo replies with the request.
type Echo struct{}

func (Echo) Process(cc *api.ClientContext) error {
	cc.SetReply(cc.Request())
	return nil
}

// Validating echoes non-empty requests and rejects empty ones.
type Validating struct{}

func (Validating) Process(cc *api.ClientContext) error {
	if len(cc.Request()) == 0 {
		return &MalformedRequestError{Msg: "empty request"}
	}
	cc.SetReply(cc.Request())
	return nil
}

// Panicking panics on every request.
type Panicking struct{}

func (Panicking) Process(*api.ClientContext) error { panic("processor exploded") }

// Farewell echoes and ends the session when the request is "bye".
type Farewell struct{}

func (Farewell) Process(cc *api.ClientContext) error {
	if string(cc.Request()) == "bye" {
		cc.EndSession()
	}
	cc.SetReply(cc.Request())
	return nil
}

// Counter replies with the number of requests it has seen. It asks to be
// retained, so a connection keeps counting on the same instance.
type Counter struct {
	n int
}

func (c *Counter) Process(cc *api.ClientContext) error {
	c.n++
	cc.RetainProcessor(true)
	cc.SetReply([]byte(strconv.Itoa(c.n)))
	return nil
}

func (c *Counter) Reset() { c.n = 0 }

// Gate blocks each request until Release is closed.
type Gate struct {
	Started chan struct{}
	Release chan struct{}
}

// NewGate returns a gate accepting up to capacity concurrent requests.
func NewGate(capacity int) *Gate {
	return &Gate{Started: make(chan struct{}, capacity), Release: make(chan struct{})}
}

func (g *Gate) Process(cc *api.ClientContext) error {
	g.Started <- struct{}{}
	<-g.Release
	cc.SetReply(cc.Request())
	return nil
}

// SessionState counts requests per connection through ClientContext.State.
type SessionState struct {
	Requests int
}

// StateEcho prefixes the reply with the per-connection request number.
type StateEcho struct{}

func (StateEcho) Process(cc *api.ClientContext) error {
	st, ok := cc.State.(*SessionState)
	if !ok {
		return fmt.Errorf("unexpected state %T", cc.State)
	}
	st.Requests++
	cc.SetReply([]byte(fmt.Sprintf("%d:%s", st.Requests, cc.Request())))
	return nil
}

// TrackingFactory is a pooling factory that counts what it hands out and
// gets back.
type TrackingFactory struct {
	New func() api.Processor

	Created   atomic.Int64
	Reclaimed atomic.Int64
}

func (f *TrackingFactory) NewProcessor() api.Processor {
	f.Created.Add(1)
	return f.New()
}

func (f *TrackingFactory) SupportsPooling() bool { return true }

func (f *TrackingFactory) Reclaim(api.Processor) { f.Reclaimed.Add(1) }

// ErrorRecorder is an api.ErrorObserver keeping every error.
type ErrorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *ErrorRecorder) OnUnhandledError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// Errors returns a copy of the recorded errors.
func (r *ErrorRecorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

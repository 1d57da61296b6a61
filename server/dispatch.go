// File: server/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker side of a request: run the processor, encode the outcome, hand it
// back to the reactor.

package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/internal/session"
)

// dispatch hands a session with a complete request to the worker pool. The
// session leaves the poller and the expiration tracker until the reply is
// written.
func (s *Server) dispatch(sess *session.Session) {
	if err := s.setInterest(sess, 0); err != nil {
		s.closeSession(sess, api.CloseIOError)
		return
	}
	s.untrack(sess)
	if sess.Processor == nil {
		sess.Processor = s.processors.NewProcessor()
	}
	// Status and inflight are reactor-only state. A rejected task leaves the
	// session owning its processor.
	if err := s.executor.Submit(func() { s.process(sess) }); err != nil {
		s.observer.OnUnhandledError(fmt.Errorf("dispatch session %s: %w", sess.ID, err))
		s.closeSession(sess, api.CloseShutdown)
		return
	}
	sess.Status = api.SessionDispatched
	s.inflight[sess] = struct{}{}
	s.inflightN.Add(1)
	s.metrics.RequestDispatched()
}

// process runs on a worker. It produces exactly one handoff.
func (s *Server) process(sess *session.Session) {
	start := time.Now()
	cc := sess.Ctx
	cc.Begin(sess.Codec.Request())

	var wire []byte
	err := invoke(sess.Processor, cc)
	if err != nil {
		wire = sess.Codec.EncodeFault(err)
	} else {
		wire = sess.Codec.Encode(cc.Reply())
	}
	sess.Codec.Consume()
	cc.Reset()

	s.replies.Push(handoff{sess: sess, wire: wire, err: err, elapsed: time.Since(start)})
	if werr := s.poller.Wakeup(); werr != nil && !errors.Is(werr, api.ErrClosed) {
		s.log.Error("reactor wakeup failed", "session", sess.ID, "error", werr)
	}
}

// invoke calls p, converting a panic into an error.
func invoke(p api.Processor, cc *api.ClientContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return p.Process(cc)
}

// File: server/run.go
// Package server implements the reactor loop: accept, read, dispatch, write,
// eviction and graceful shutdown.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Everything here runs on the goroutine that called Serve. Workers interact
// with the loop only through the reply queue and Poller.Wakeup.

package server

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/expiry"
	"github.com/momentics/lvreactor/internal/session"
	"github.com/momentics/lvreactor/internal/transport"
	"github.com/momentics/lvreactor/reactor"
)

// Serve runs the reactor on the calling goroutine until Shutdown completes.
func (s *Server) Serve() error {
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		if s.state.Load() == stateStopped {
			return ErrServerClosed
		}
		return ErrAlreadyRunning
	}
	defer close(s.done)
	defer s.state.Store(stateStopped)

	if err := s.poller.Add(s.listener.FD(), reactor.InterestRead); err != nil {
		s.release()
		return fmt.Errorf("register listener: %w", err)
	}
	s.tracker.Start()
	s.log.Info("reactor started", "addr", s.Addr().String(), "workers", s.executor.NumWorkers(),
		"idle_timeout", s.cfg.IdleTimeout)

	for {
		s.iterate()
		if !s.stopping {
			continue
		}
		if len(s.inflight) == 0 && s.writing == 0 {
			s.teardown()
			return nil
		}
		if time.Now().After(s.deadline) {
			s.log.Warn("shutdown timeout, closing busy sessions",
				"in_flight", len(s.inflight), "writing", s.writing)
			s.teardown()
			return nil
		}
	}
}

// iterate performs one wait and processes its outcome. A panic is reported
// to the observer and the loop continues.
func (s *Server) iterate() {
	defer func() {
		if r := recover(); r != nil {
			s.observer.OnUnhandledError(fmt.Errorf("reactor panic: %v", r))
		}
	}()
	clear(s.stale)

	n, err := s.poller.Wait(s.events, s.waitTimeout())
	if err != nil {
		s.observer.OnUnhandledError(err)
		return
	}

	s.drainReplies()
	s.evictExpired()
	for _, ev := range s.events[:n] {
		s.handleEvent(ev)
	}
}

// waitTimeout bounds the poller wait so that idle sessions are evicted even
// when no events arrive.
func (s *Server) waitTimeout() time.Duration {
	timeout := time.Duration(-1)
	if s.cfg.IdleTimeout >= expiry.MinTimeout {
		timeout = s.cfg.IdleTimeout / 2
	}
	if s.stopping {
		remaining := max(time.Until(s.deadline), 0)
		if timeout < 0 || remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}

func (s *Server) handleEvent(ev reactor.Event) {
	if ev.FD == s.listener.FD() {
		if !s.stopping {
			s.acceptAll()
		}
		return
	}
	if _, closed := s.stale[ev.FD]; closed {
		return
	}
	sess, ok := s.sessions.Get(ev.FD)
	if !ok {
		return
	}
	switch sess.Status {
	case api.SessionReading:
		if ev.Readable || ev.Closed {
			s.onReadable(sess)
		}
	case api.SessionWriting:
		switch {
		case ev.Writable:
			s.onWritable(sess)
		case ev.Closed:
			s.closeSession(sess, api.CloseIOError)
		}
	}
}

func (s *Server) acceptAll() {
	for {
		conn, err := s.listener.Accept()
		if errors.Is(err, transport.ErrWouldBlock) {
			break
		}
		if err != nil {
			s.observer.OnUnhandledError(err)
			break
		}
		ctx := api.NewClientContext(s.states.NewState())
		sess := session.New(conn.FD, conn.Remote, s.codecs.NewCodec(), ctx)
		s.sessions.Add(sess)
		s.metrics.ConnectionAccepted()
		s.metrics.SetActiveSessions(s.sessions.Len())
		if err := s.setInterest(sess, reactor.InterestRead); err != nil {
			s.log.Warn("register session", "session", sess.String(), "error", err)
			s.closeSession(sess, api.CloseIOError)
			continue
		}
		s.track(sess)
		s.log.Debug("session accepted", "session", sess.ID, "remote", sess.Remote.String())
	}
	s.evictExpired()
}

func (s *Server) onReadable(sess *session.Session) {
	n, err := transport.Read(sess.FD, s.readBuf)
	switch {
	case errors.Is(err, transport.ErrWouldBlock):
		return
	case errors.Is(err, io.EOF):
		s.closeSession(sess, api.CloseByPeer)
		return
	case err != nil:
		s.log.Debug("read failed", "session", sess.ID, "error", err)
		s.closeSession(sess, api.CloseIOError)
		return
	}
	complete, err := sess.Codec.AddPart(s.readBuf[:n])
	if err != nil {
		s.protocolViolation(sess, err)
		return
	}
	if complete {
		s.handleFrames(sess)
	}
}

// handleFrames acts on every complete frame buffered by a reading session:
// service signals are handled here, a request is dispatched and stops the scan.
func (s *Server) handleFrames(sess *session.Session) {
	for {
		complete, err := sess.Codec.HasCompleteMessage()
		if err != nil {
			s.protocolViolation(sess, err)
			return
		}
		if !complete {
			return
		}
		switch sess.Codec.ServiceCode() {
		case api.ServiceClose:
			s.closeSession(sess, api.CloseNotified)
			return
		case api.ServiceKeepAlive:
			s.metrics.KeepAliveReceived()
			if sess.Tracked {
				sess.Hint = s.tracker.Touch(sess, sess.Hint)
			}
			sess.Codec.Consume()
		default:
			s.dispatch(sess)
			return
		}
	}
}

func (s *Server) onWritable(sess *session.Session) {
	n, err := transport.Write(sess.FD, sess.Pending())
	if errors.Is(err, transport.ErrWouldBlock) {
		return
	}
	if err != nil {
		s.log.Debug("write failed", "session", sess.ID, "error", err)
		s.closeSession(sess, api.CloseIOError)
		return
	}
	if !sess.Advance(n) {
		return
	}

	s.writing--
	sess.Status = api.SessionReading
	if sess.Ctx.SessionEnded() {
		s.closeSession(sess, api.CloseSessionEnded)
		return
	}
	if s.stopping {
		_ = s.setInterest(sess, 0)
		return
	}

	complete, err := sess.Codec.HasCompleteMessage()
	if err != nil {
		s.protocolViolation(sess, err)
		return
	}
	if complete && sess.Codec.ServiceCode() == api.ServiceNone {
		// Pipelined request: straight back to the pool.
		s.dispatch(sess)
		return
	}
	if err := s.setInterest(sess, reactor.InterestRead); err != nil {
		s.closeSession(sess, api.CloseIOError)
		return
	}
	s.track(sess)
	if complete {
		s.handleFrames(sess)
	}
}

// drainReplies moves finished requests to the writing state.
func (s *Server) drainReplies() {
	s.replies.Drain(func(h handoff) {
		if h.poison {
			s.beginShutdown()
			return
		}
		sess := h.sess
		if _, ok := s.inflight[sess]; !ok {
			return
		}
		delete(s.inflight, sess)
		s.inflightN.Add(-1)
		s.metrics.RequestCompleted(h.elapsed, h.err != nil)
		if h.err != nil {
			s.log.Debug("request failed", "session", sess.ID, "error", h.err)
		}

		if !sess.Ctx.RetainsProcessor() || sess.Ctx.SessionEnded() {
			s.reclaim(sess)
		}
		sess.SetOutbound(h.wire)
		sess.Status = api.SessionWriting
		s.writing++
		if err := s.setInterest(sess, reactor.InterestWrite); err != nil {
			s.closeSession(sess, api.CloseIOError)
		}
	})
}

func (s *Server) evictExpired() {
	for _, sess := range s.tracker.Expired() {
		sess.Tracked = false
		if cur, ok := s.sessions.Get(sess.FD); !ok || cur != sess {
			continue
		}
		if sess.Status != api.SessionReading {
			continue
		}
		s.closeSession(sess, api.CloseExpired)
	}
}

func (s *Server) protocolViolation(sess *session.Session, err error) {
	s.log.Warn("protocol violation", "session", sess.ID, "remote", sess.Remote.String(), "error", err)
	s.closeSession(sess, api.CloseProtocolViolation)
}

// setInterest reconciles the poller registration with in; zero deregisters.
func (s *Server) setInterest(sess *session.Session, in reactor.Interest) error {
	if sess.Interest == in {
		return nil
	}
	var err error
	switch {
	case in == 0:
		err = s.poller.Remove(sess.FD)
	case sess.Interest == 0:
		err = s.poller.Add(sess.FD, in)
	default:
		err = s.poller.Modify(sess.FD, in)
	}
	if err != nil {
		return err
	}
	sess.Interest = in
	return nil
}

func (s *Server) track(sess *session.Session) {
	if sess.Tracked {
		sess.Hint = s.tracker.Touch(sess, sess.Hint)
		return
	}
	sess.Hint = s.tracker.Add(sess)
	sess.Tracked = true
}

func (s *Server) untrack(sess *session.Session) {
	if !sess.Tracked {
		return
	}
	s.tracker.Remove(sess, sess.Hint)
	sess.Tracked = false
}

func (s *Server) reclaim(sess *session.Session) {
	if sess.Processor == nil {
		return
	}
	if s.processors.SupportsPooling() {
		s.processors.Reclaim(sess.Processor)
	}
	sess.Processor = nil
}

func (s *Server) closeSession(sess *session.Session, reason api.ErrorCode) {
	if sess.Status == api.SessionClosed {
		return
	}
	// A dispatched session is only closed on forced shutdown. Its worker may
	// not have started yet and still reads sess.Processor, so the processor
	// is left alone and never returned to the pool.
	dispatched := sess.Status == api.SessionDispatched
	switch sess.Status {
	case api.SessionWriting:
		s.writing--
	case api.SessionDispatched:
		delete(s.inflight, sess)
		s.inflightN.Add(-1)
	}
	s.untrack(sess)
	if sess.Interest != 0 {
		_ = s.poller.Remove(sess.FD)
		sess.Interest = 0
	}
	if !dispatched {
		s.reclaim(sess)
	}
	s.sessions.Delete(sess.FD)
	if err := transport.Close(sess.FD); err != nil {
		s.log.Debug("close failed", "session", sess.ID, "error", err)
	}
	s.stale[sess.FD] = struct{}{}
	sess.Status = api.SessionClosed

	s.metrics.ConnectionClosed(reason.String())
	s.metrics.SetActiveSessions(s.sessions.Len())
	s.log.Debug("session closed", "session", sess.ID, "reason", reason.String())
}

// beginShutdown stops intake. Dispatched requests finish and their replies
// are still written.
func (s *Server) beginShutdown() {
	if s.stopping {
		return
	}
	s.stopping = true
	s.deadline = time.Now().Add(s.cfg.ShutdownTimeout)
	s.log.Info("reactor shutting down", "sessions", s.sessions.Len(), "in_flight", len(s.inflight))

	if err := s.poller.Remove(s.listener.FD()); err != nil {
		s.observer.OnUnhandledError(err)
	}
	for _, sess := range s.sessions.Snapshot() {
		if sess.Status == api.SessionReading {
			_ = s.setInterest(sess, 0)
			s.untrack(sess)
		}
	}
}

func (s *Server) teardown() {
	s.tracker.Stop()
	for _, sess := range s.sessions.Snapshot() {
		s.closeSession(sess, api.CloseShutdown)
	}
	s.release()
	s.log.Info("reactor stopped")
}

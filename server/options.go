// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"

	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/control"
	"github.com/momentics/lvreactor/expiry"
	"github.com/momentics/lvreactor/internal/session"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithErrorObserver receives errors raised inside the reactor loop.
func WithErrorObserver(o api.ErrorObserver) ServerOption {
	return func(s *Server) { s.observer = o }
}

// WithStateFactory sets the producer of per-connection state.
func WithStateFactory(f api.StateFactory) ServerOption {
	return func(s *Server) { s.states = f }
}

// WithCodecFactory overrides the codec named in Config.
func WithCodecFactory(f api.CodecFactory) ServerOption {
	return func(s *Server) { s.codecs = f }
}

// WithExecutor runs processors on e instead of a private pool. The server
// closes e on shutdown.
func WithExecutor(e api.Executor) ServerOption {
	return func(s *Server) { s.executor = e }
}

// WithMetrics records reactor events into m.
func WithMetrics(m control.Metrics) ServerOption {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracker replaces the idle tracker derived from Config.IdleTimeout.
func WithTracker(t expiry.Tracker[*session.Session]) ServerOption {
	return func(s *Server) { s.tracker = t }
}

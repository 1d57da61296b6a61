// File: server/server.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server binds the listener and owns every reactor-side resource: poller,
// session table, expiration tracker, worker pool and the reply queue.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/control"
	"github.com/momentics/lvreactor/expiry"
	"github.com/momentics/lvreactor/internal/concurrency"
	"github.com/momentics/lvreactor/internal/session"
	"github.com/momentics/lvreactor/internal/transport"
	"github.com/momentics/lvreactor/protocol"
	"github.com/momentics/lvreactor/reactor"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrServerClosed   = fmt.Errorf("server closed: %w", api.ErrShutdown)
)

// Server is the reactor.
type Server struct {
	cfg        *Config
	processors api.ProcessorFactory
	states     api.StateFactory
	codecs     api.CodecFactory
	observer   api.ErrorObserver
	executor   api.Executor
	tracker    expiry.Tracker[*session.Session]
	metrics    control.Metrics
	log        *slog.Logger

	listener *transport.Listener
	poller   *reactor.Poller
	sessions *session.Table
	replies  *concurrency.ReplyQueue[handoff]

	// Reactor-goroutine state.
	inflight map[*session.Session]struct{}
	writing  int
	stale    map[int]struct{}
	stopping bool
	deadline time.Time
	readBuf  []byte
	events   []reactor.Event

	inflightN    atomic.Int64
	state        atomic.Int32
	shutdownOnce sync.Once
	done         chan struct{}
	createdAt    time.Time
}

var _ api.GracefulShutdown = (*Server)(nil)

// NewServer binds cfg.ListenAddr and prepares the reactor. processors
// supplies the business logic.
func NewServer(cfg *Config, processors api.ProcessorFactory, opts ...ServerOption) (*Server, error) {
	if processors == nil {
		return nil, fmt.Errorf("%w: nil processor factory", api.ErrInvalidArgument)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.normalize()

	s := &Server{
		cfg:        &c,
		processors: processors,
		states:     api.StateFactoryFunc(func() any { return nil }),
		metrics:    control.NoopMetrics{},
		log:        slog.Default(),
		sessions:   session.NewTable(64),
		replies:    concurrency.NewReplyQueue[handoff](),
		inflight:   make(map[*session.Session]struct{}),
		stale:      make(map[int]struct{}),
		readBuf:    make([]byte, c.ReadBufferSize),
		events:     make([]reactor.Event, c.MaxEvents),
		done:       make(chan struct{}),
		createdAt:  time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.observer == nil {
		s.observer = loggingObserver{s: s}
	}
	if s.codecs == nil {
		f, err := protocol.NewFactory(c.Codec, protocol.WithMaxPayload(c.MaxPayload))
		if err != nil {
			return nil, err
		}
		s.codecs = f
	}
	if s.tracker == nil {
		s.tracker = expiry.New[*session.Session](c.IdleTimeout)
	}

	poller, err := reactor.New(c.MaxEvents)
	if err != nil {
		return nil, err
	}
	listener, err := transport.Listen(c.ListenAddr, c.Backlog)
	if err != nil {
		_ = poller.Close()
		return nil, err
	}
	s.poller, s.listener = poller, listener

	if s.executor == nil {
		var eopts []concurrency.Option
		if c.PinWorkers {
			eopts = append(eopts, concurrency.WithCPUAffinity(func(worker int, err error) {
				s.log.Warn("worker pinning failed", "worker", worker, "error", err)
			}))
		}
		s.executor = concurrency.NewExecutor(c.Workers, func(r any) {
			s.log.Error("worker panic", "panic", r)
		}, eopts...)
	}
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Done is closed once the reactor has released all resources.
func (s *Server) Done() <-chan struct{} { return s.done }

// Stats returns a snapshot of reactor counters. Safe for concurrent use.
func (s *Server) Stats() api.Stats {
	return api.Stats{
		Sessions:  s.sessions.Len(),
		InFlight:  int(s.inflightN.Load()),
		Tracked:   s.tracker.Len(),
		Workers:   s.executor.NumWorkers(),
		StartedAt: s.createdAt,
	}
}

// Shutdown asks the reactor to stop intake, finish in-flight requests and
// release resources. It returns immediately; wait on Done.
func (s *Server) Shutdown() error {
	if s.state.CompareAndSwap(stateIdle, stateStopped) {
		s.release()
		close(s.done)
		return nil
	}
	s.shutdownOnce.Do(func() {
		s.replies.Push(handoff{poison: true})
		if err := s.poller.Wakeup(); err != nil && !errors.Is(err, api.ErrClosed) {
			s.observer.OnUnhandledError(err)
		}
	})
	return nil
}

// Run serves until ctx is cancelled, then shuts down and waits for the
// reactor to finish.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		_ = s.Shutdown()
		return <-errCh
	}
}

// release closes what NewServer acquired.
func (s *Server) release() {
	s.tracker.Stop()
	s.executor.Close()
	if err := s.poller.Close(); err != nil {
		s.log.Warn("poller close", "error", err)
	}
	if err := s.listener.Close(); err != nil {
		s.log.Warn("listener close", "error", err)
	}
}

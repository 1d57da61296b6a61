// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"runtime"
	"time"

	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/control"
	"github.com/momentics/lvreactor/internal/session"
	"github.com/momentics/lvreactor/protocol"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr      string        // TCP bind address, e.g. ":7070"
	Backlog         int           // listen backlog, 0 = SOMAXCONN
	ReadBufferSize  int           // size of the reactor read buffer
	Workers         int           // processor goroutines, 0 = NumCPU
	IdleTimeout     time.Duration // idle eviction, below expiry.MinTimeout disables it
	ShutdownTimeout time.Duration // bound on draining in-flight work
	MaxEvents       int           // poller batch size
	MaxPayload      int           // frame size limit, 0 = protocol maximum
	Codec           string        // registered codec name
	PinWorkers      bool          // bind each worker to its own CPU
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":7070",
		ReadBufferSize:  4096,
		Workers:         runtime.NumCPU(),
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MaxEvents:       128,
		Codec:           protocol.DefaultCodec,
	}
}

// ConfigFrom converts the file/env configuration.
func ConfigFrom(c control.ServerConfig) *Config {
	return &Config{
		ListenAddr:      c.Listen,
		Backlog:         c.Backlog,
		ReadBufferSize:  c.ReadBufferSize,
		Workers:         c.Workers,
		IdleTimeout:     c.IdleTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
		MaxEvents:       c.MaxEvents,
		MaxPayload:      c.MaxPayload,
		Codec:           c.Codec,
		PinWorkers:      c.PinWorkers,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.Codec == "" {
		c.Codec = d.Codec
	}
}

// handoff carries the outcome of one request from a worker to the reactor.
// A poison handoff requests shutdown.
type handoff struct {
	sess    *session.Session
	wire    []byte
	err     error
	elapsed time.Duration
	poison  bool
}

// Run states.
const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// loggingObserver is the default ErrorObserver.
type loggingObserver struct{ s *Server }

func (o loggingObserver) OnUnhandledError(err error) {
	o.s.log.Warn("reactor error", "error", err)
}

var _ api.ErrorObserver = loggingObserver{}

//go:build linux

package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/client"
	"github.com/momentics/lvreactor/control"
	"github.com/momentics/lvreactor/expiry"
	"github.com/momentics/lvreactor/fake"
	"github.com/momentics/lvreactor/internal/logger"
	"github.com/momentics/lvreactor/internal/session"
	"github.com/momentics/lvreactor/pool"
	"github.com/momentics/lvreactor/protocol"
)

// ============================================================================
// Helpers
// ============================================================================

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Workers = 4
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func startServer(t *testing.T, cfg *Config, processors api.ProcessorFactory, opts ...ServerOption) *Server {
	t.Helper()
	opts = append([]ServerOption{WithLogger(logger.Discard())}, opts...)
	srv, err := NewServer(cfg, processors, opts...)
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		select {
		case err := <-serveErr:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv
}

func dial(t *testing.T, srv *Server) *client.Client {
	t.Helper()
	c, err := client.Dial(srv.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func dialRaw(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readReply(t *testing.T, conn net.Conn, codec *protocol.ClientCodec) ([]byte, error) {
	t.Helper()
	buf := make([]byte, 512)
	for {
		done, err := codec.HasCompleteMessage()
		require.NoError(t, err)
		if done {
			defer codec.Consume()
			return codec.Reply()
		}
		n, err := conn.Read(buf)
		if err != nil {
			return nil, err
		}
		_, err = codec.AddPart(buf[:n])
		require.NoError(t, err)
	}
}

// expectClosed waits until the server closes conn.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Read(make([]byte, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET),
		"expected closed connection, got %v", err)
}

// ============================================================================
// Request / reply
// ============================================================================

func TestEchoRoundTrip(t *testing.T) {
	srv := startServer(t, testConfig(), pool.Shared(fake.Echo{}))
	c := dial(t, srv)

	reply, err := c.SendRequest([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, reply)

	reply, err = c.SendRequest(nil)
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestPinnedWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.PinWorkers = true
	rec := &fake.ErrorRecorder{}
	srv := startServer(t, cfg, pool.Shared(fake.Echo{}), WithErrorObserver(rec))
	c := dial(t, srv)

	for i := 0; i < 10; i++ {
		reply, err := c.SendRequest([]byte{byte(i)})
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, reply)
	}
	assert.Empty(t, rec.Errors())
}

func TestLargePayloadAcrossReads(t *testing.T) {
	cfg := testConfig()
	cfg.ReadBufferSize = 64
	srv := startServer(t, cfg, pool.Shared(fake.Echo{}))
	c := dial(t, srv)

	payload := make([]byte, 256<<10)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	reply, err := c.SendRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, reply)
}

func TestProcessorFaultReachesClient(t *testing.T) {
	srv := startServer(t, testConfig(), pool.Shared(fake.Validating{}))
	c := dial(t, srv)

	_, err := c.SendRequest(nil)
	var remote *protocol.RemoteError
	require.ErrorAs(t, err, &remote)
	var malformed *fake.MalformedRequestError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "empty request", malformed.Msg)

	// The connection survives a fault.
	reply, err := c.SendRequest([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), reply)
}

func TestProcessorPanicBecomesFault(t *testing.T) {
	srv := startServer(t, testConfig(), pool.Shared(fake.Panicking{}))
	c := dial(t, srv)

	for i := 0; i < 3; i++ {
		_, err := c.SendRequest([]byte("x"))
		var remote *protocol.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Contains(t, remote.Error(), "processor exploded")
	}
}

func TestPipelinedRequests(t *testing.T) {
	srv := startServer(t, testConfig(), pool.Shared(fake.Echo{}))
	conn := dialRaw(t, srv)
	codec := protocol.NewClientCodec()

	ka, err := protocol.EncodeSignal(protocol.KeepAliveSignal)
	require.NoError(t, err)
	var burst []byte
	burst = append(burst, codec.Encode([]byte("one"))...)
	burst = append(burst, ka...)
	burst = append(burst, codec.Encode([]byte("two"))...)
	burst = append(burst, codec.Encode([]byte("three"))...)
	_, err = conn.Write(burst)
	require.NoError(t, err)

	for _, want := range []string{"one", "two", "three"} {
		reply, err := readReply(t, conn, codec)
		require.NoError(t, err)
		assert.Equal(t, want, string(reply))
	}
}

func TestClientStateFactory(t *testing.T) {
	srv := startServer(t, testConfig(), pool.Shared(fake.StateEcho{}),
		WithStateFactory(api.StateFactoryFunc(func() any { return &fake.SessionState{} })))

	a := dial(t, srv)
	for i, req := range []string{"a", "b"} {
		reply, err := a.SendRequest([]byte(req))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%d:%s", i+1, req), string(reply))
	}

	b := dial(t, srv)
	reply, err := b.SendRequest([]byte("c"))
	require.NoError(t, err)
	assert.Equal(t, "1:c", string(reply))
}

// ============================================================================
// Processor ownership
// ============================================================================

func TestProcessorsReclaimedPerRequest(t *testing.T) {
	factory := &fake.TrackingFactory{New: func() api.Processor { return fake.Echo{} }}
	srv := startServer(t, testConfig(), factory)
	c := dial(t, srv)

	for i := 0; i < 5; i++ {
		_, err := c.SendRequest([]byte{byte(i)})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(5), factory.Created.Load())
	assert.Equal(t, int64(5), factory.Reclaimed.Load())
}

func TestRetainedProcessorBoundToSession(t *testing.T) {
	factory := &fake.TrackingFactory{New: func() api.Processor { return &fake.Counter{} }}
	srv := startServer(t, testConfig(), factory)

	a := dial(t, srv)
	for i := 1; i <= 3; i++ {
		reply, err := a.SendRequest([]byte("tick"))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), string(reply))
	}
	b := dial(t, srv)
	reply, err := b.SendRequest([]byte("tick"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(reply))

	assert.Equal(t, int64(2), factory.Created.Load())
	assert.Zero(t, factory.Reclaimed.Load())

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		return factory.Reclaimed.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcessorPoolIntegration(t *testing.T) {
	pp := pool.NewProcessorPool(func() api.Processor { return &fake.Counter{} })
	srv := startServer(t, testConfig(), pp)
	c := dial(t, srv)

	reply, err := c.SendRequest([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(reply))
	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return pp.Reclaimed() == 1 }, 2*time.Second, 10*time.Millisecond)
}

// ============================================================================
// Connection lifecycle
// ============================================================================

func TestCloseNotification(t *testing.T) {
	tracker := expiry.NewGenerational[*session.Session](time.Hour)
	factory := &fake.TrackingFactory{New: func() api.Processor { return fake.Echo{} }}
	srv := startServer(t, testConfig(), factory, WithTracker(tracker))

	conn := dialRaw(t, srv)
	require.Eventually(t, func() bool { return tracker.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	wire, err := protocol.EncodeSignal(protocol.CloseSignal)
	require.NoError(t, err)
	_, err = conn.Write(wire)
	require.NoError(t, err)

	expectClosed(t, conn)
	require.Eventually(t, func() bool { return srv.Stats().Sessions == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, tracker.Len())
	assert.Zero(t, factory.Created.Load(), "close notification must not dispatch")
}

func TestIdleConnectionEvicted(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	srv := startServer(t, cfg, pool.Shared(fake.Echo{}))

	conn := dialRaw(t, srv)
	start := time.Now()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.GreaterOrEqual(t, time.Since(start), cfg.IdleTimeout*9/10)
}

func TestClientObservesEvictionAsPeerClosed(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	srv := startServer(t, cfg, pool.Shared(fake.Echo{}))
	c := dial(t, srv)

	require.Eventually(t, func() bool { return srv.Stats().Sessions == 0 }, 2*time.Second, 10*time.Millisecond)
	_, err := c.SendRequest([]byte("late"))
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrPeerClosed)
}

func TestKeepAlivePreventsEviction(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	srv := startServer(t, cfg, pool.Shared(fake.Echo{}))
	c := dial(t, srv)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.NoError(t, c.KeepAlive())
		time.Sleep(25 * time.Millisecond)
	}
	reply, err := c.SendRequest([]byte("alive"))
	require.NoError(t, err)
	assert.Equal(t, "alive", string(reply))
}

func TestEvictionDisabledBelowMinimum(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = expiry.MinTimeout / 2
	srv := startServer(t, cfg, pool.Shared(fake.Echo{}))
	c := dial(t, srv)

	time.Sleep(10 * cfg.IdleTimeout)
	reply, err := c.SendRequest([]byte("still here"))
	require.NoError(t, err)
	assert.Equal(t, "still here", string(reply))
}

func TestSessionEndClosesAfterReply(t *testing.T) {
	srv := startServer(t, testConfig(), pool.Shared(fake.Farewell{}))
	conn := dialRaw(t, srv)
	codec := protocol.NewClientCodec()

	_, err := conn.Write(codec.Encode([]byte("hello")))
	require.NoError(t, err)
	reply, err := readReply(t, conn, codec)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(reply))

	_, err = conn.Write(codec.Encode([]byte("bye")))
	require.NoError(t, err)
	reply, err = readReply(t, conn, codec)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(reply))

	expectClosed(t, conn)
}

func TestProtocolViolationClosesOnlyOffender(t *testing.T) {
	srv := startServer(t, testConfig(), pool.Shared(fake.Echo{}))
	good := dial(t, srv)
	bad := dialRaw(t, srv)

	hdr := make([]byte, protocol.HeaderLen)
	negLen := int32(-3)
	binary.BigEndian.PutUint32(hdr, uint32(negLen))
	_, err := bad.Write(hdr)
	require.NoError(t, err)
	expectClosed(t, bad)

	reply, err := good.SendRequest([]byte("fine"))
	require.NoError(t, err)
	assert.Equal(t, "fine", string(reply))
}

func TestMaxPayloadEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPayload = 1024
	srv := startServer(t, cfg, pool.Shared(fake.Echo{}))
	c := dial(t, srv)

	_, err := c.SendRequest(make([]byte, 2048))
	assert.ErrorIs(t, err, client.ErrPeerClosed)
}

// ============================================================================
// Concurrency
// ============================================================================

func TestConcurrentClientsNoMisdelivery(t *testing.T) {
	const clients, rounds = 16, 50
	srv := startServer(t, testConfig(), pool.Shared(fake.Echo{}))

	var g errgroup.Group
	for ci := 0; ci < clients; ci++ {
		ci := ci
		g.Go(func() error {
			c, err := client.Dial(srv.Addr().String(), 5*time.Second)
			if err != nil {
				return err
			}
			defer c.Close()
			for r := 0; r < rounds; r++ {
				want := fmt.Sprintf("client-%d-round-%d", ci, r)
				reply, err := c.SendRequest([]byte(want))
				if err != nil {
					return err
				}
				if string(reply) != want {
					return fmt.Errorf("client %d: got %q, want %q", ci, reply, want)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestSlowProcessorDoesNotBlockOthers(t *testing.T) {
	gate := fake.NewGate(1)
	var calls atomic.Int64
	factory := pool.NewFactory(func() api.Processor {
		if calls.Add(1) == 1 {
			return gate
		}
		return fake.Echo{}
	})
	srv := startServer(t, testConfig(), factory)

	slow := dial(t, srv)
	slowDone := make(chan error, 1)
	go func() {
		_, err := slow.SendRequest([]byte("slow"))
		slowDone <- err
	}()
	<-gate.Started

	fast := dial(t, srv)
	reply, err := fast.SendRequest([]byte("fast"))
	require.NoError(t, err)
	assert.Equal(t, "fast", string(reply))

	close(gate.Release)
	require.NoError(t, <-slowDone)
}

// ============================================================================
// Shutdown and lifecycle
// ============================================================================

func TestShutdownDrainsInFlight(t *testing.T) {
	gate := fake.NewGate(1)
	srv, err := NewServer(testConfig(), pool.Shared(gate), WithLogger(logger.Discard()))
	require.NoError(t, err)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	c, err := client.Dial(srv.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	defer c.Close()

	replyCh := make(chan []byte, 1)
	go func() {
		reply, _ := c.SendRequest([]byte("pending"))
		replyCh <- reply
	}()
	<-gate.Started
	assert.Equal(t, 1, srv.Stats().InFlight)

	require.NoError(t, srv.Shutdown())
	select {
	case <-srv.Done():
		t.Fatal("server stopped with a request in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(gate.Release)
	select {
	case reply := <-replyCh:
		assert.Equal(t, "pending", string(reply))
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight reply was not delivered")
	}
	require.NoError(t, <-serveErr)
	<-srv.Done()
}

func TestForcedShutdownLeavesQueuedProcessorToWorker(t *testing.T) {
	gate := fake.NewGate(2)
	factory := &fake.TrackingFactory{New: func() api.Processor { return gate }}
	cfg := testConfig()
	cfg.Workers = 1
	cfg.ShutdownTimeout = 100 * time.Millisecond
	srv, err := NewServer(cfg, factory, WithLogger(logger.Discard()))
	require.NoError(t, err)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	send := func(payload string) <-chan error {
		c, err := client.Dial(srv.Addr().String(), 5*time.Second)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		errCh := make(chan error, 1)
		go func() {
			_, err := c.SendRequest([]byte(payload))
			errCh <- err
		}()
		return errCh
	}

	running := send("running")
	<-gate.Started
	// The single worker is busy, so this request waits in the executor queue.
	queued := send("queued")
	require.Eventually(t, func() bool { return srv.Stats().InFlight == 2 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, srv.Shutdown())
	for _, errCh := range []<-chan error{running, queued} {
		select {
		case err := <-errCh:
			assert.Error(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("session survived the shutdown deadline")
		}
	}

	close(gate.Release)
	require.NoError(t, <-serveErr)
	<-srv.Done()

	// The queued task still found its processor after its session was closed.
	assert.Len(t, gate.Started, 1)
	assert.EqualValues(t, 2, factory.Created.Load())
	assert.Zero(t, factory.Reclaimed.Load())
}

func TestServeLifecycleErrors(t *testing.T) {
	srv, err := NewServer(testConfig(), pool.Shared(fake.Echo{}), WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, srv.Shutdown())
	<-srv.Done()
	assert.ErrorIs(t, srv.Serve(), ErrServerClosed)

	running := startServer(t, testConfig(), pool.Shared(fake.Echo{}))
	require.Eventually(t, func() bool { return running.state.Load() == stateRunning },
		time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, running.Serve(), ErrAlreadyRunning)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv, err := NewServer(testConfig(), pool.Shared(fake.Echo{}), WithLogger(logger.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	c, err := client.Dial(srv.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	_, err = c.SendRequest([]byte("x"))
	require.NoError(t, err)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	_, err = c.SendRequest([]byte("y"))
	assert.ErrorIs(t, err, client.ErrPeerClosed)
	_ = c.Close()
}

func TestNewServerRejectsNilFactory(t *testing.T) {
	_, err := NewServer(testConfig(), nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestNewServerUnknownCodec(t *testing.T) {
	cfg := testConfig()
	cfg.Codec = "missing"
	_, err := NewServer(cfg, pool.Shared(fake.Echo{}))
	assert.ErrorIs(t, err, api.ErrNotSupported)
}

// ============================================================================
// Loop resilience
// ============================================================================

// explodingCodec panics while decoding.
type explodingCodec struct {
	*protocol.ServerCodec
}

func (explodingCodec) AddPart([]byte) (bool, error) { panic("decoder bug") }

func TestLoopPanicReportedToObserver(t *testing.T) {
	var made atomic.Int64
	codecs := api.CodecFactoryFunc(func() api.ServerCodec {
		if made.Add(1) == 1 {
			return explodingCodec{protocol.NewServerCodec()}
		}
		return protocol.NewServerCodec()
	})
	rec := &fake.ErrorRecorder{}
	srv := startServer(t, testConfig(), pool.Shared(fake.Echo{}),
		WithCodecFactory(codecs), WithErrorObserver(rec))

	first := dialRaw(t, srv)
	_, err := first.Write(protocol.NewClientCodec().Encode([]byte("boom")))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.Errors()) > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, rec.Errors()[0].Error(), "decoder bug")

	second := dial(t, srv)
	reply, err := second.SendRequest([]byte("after"))
	require.NoError(t, err)
	assert.Equal(t, "after", string(reply))
}

// countingMetrics records reactor events for assertions.
type countingMetrics struct {
	control.NoopMetrics
	accepted, dispatched, completed, keepAlives atomic.Int64

	mu      sync.Mutex
	reasons []string
}

func (m *countingMetrics) ConnectionAccepted() { m.accepted.Add(1) }
func (m *countingMetrics) KeepAliveReceived()  { m.keepAlives.Add(1) }
func (m *countingMetrics) RequestDispatched()  { m.dispatched.Add(1) }

func (m *countingMetrics) RequestCompleted(time.Duration, bool) { m.completed.Add(1) }

func (m *countingMetrics) ConnectionClosed(reason string) {
	m.mu.Lock()
	m.reasons = append(m.reasons, reason)
	m.mu.Unlock()
}

func (m *countingMetrics) closeReasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reasons...)
}

func TestMetricsRecorded(t *testing.T) {
	m := &countingMetrics{}
	srv := startServer(t, testConfig(), pool.Shared(fake.Echo{}), WithMetrics(m))
	c := dial(t, srv)

	_, err := c.SendRequest([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, c.KeepAlive())
	_, err = c.SendRequest([]byte("b"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	require.Eventually(t, func() bool { return len(m.closeReasons()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{api.CloseNotified.String()}, m.closeReasons())
	assert.Equal(t, int64(1), m.accepted.Load())
	assert.Equal(t, int64(2), m.dispatched.Load())
	assert.Equal(t, int64(2), m.completed.Load())
	assert.Equal(t, int64(1), m.keepAlives.Load())
}

func TestStats(t *testing.T) {
	srv := startServer(t, testConfig(), pool.Shared(fake.Echo{}))
	dial(t, srv)
	dial(t, srv)
	require.Eventually(t, func() bool { return srv.Stats().Sessions == 2 }, 2*time.Second, 5*time.Millisecond)
	st := srv.Stats()
	assert.Equal(t, 4, st.Workers)
	assert.Zero(t, st.InFlight)
	assert.False(t, st.StartedAt.IsZero())
}

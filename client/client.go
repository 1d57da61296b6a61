// File: client/client.go
// Package client provides a blocking request/reply helper for LV servers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Client owns one connection and serializes calls on it. A fault reply
// surfaces as *protocol.RemoteError and leaves the connection usable. Any
// transport or framing error, a vanished peer (ErrPeerClosed) included,
// leaves the stream at an unknown offset: the connection is closed and
// later calls return api.ErrClosed.

package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/pool"
	"github.com/momentics/lvreactor/protocol"
)

// ErrPeerClosed reports that the server closed the connection.
var ErrPeerClosed = errors.New("peer closed connection")

const defaultReadBufferSize = 4096

var readBuffers = pool.NewBufferPool(defaultReadBufferSize)

// Option customizes a Client.
type Option func(*Client)

// WithTimeout bounds each call; zero disables deadlines.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxPayload rejects replies larger than n bytes.
func WithMaxPayload(n int) Option {
	return func(c *Client) { c.codecOpts = append(c.codecOpts, protocol.WithMaxPayload(n)) }
}

// Client is a synchronous LV client.
type Client struct {
	conn      net.Conn
	codec     *protocol.ClientCodec
	codecOpts []protocol.Option
	timeout   time.Duration

	mu     sync.Mutex
	closed bool
}

// Dial connects to addr. timeout bounds the connect and every later call.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, WithTimeout(timeout)), nil
}

// New wraps an established connection.
func New(conn net.Conn, opts ...Option) *Client {
	c := &Client{conn: conn}
	for _, o := range opts {
		o(c)
	}
	c.codec = protocol.NewClientCodec(c.codecOpts...)
	return c
}

// LocalAddr returns the local end of the connection.
func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// SendRequest sends payload and waits for the reply.
func (c *Client) SendRequest(payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, api.ErrClosed
	}
	c.arm()
	if err := c.write(c.codec.Encode(payload)); err != nil {
		return nil, c.fail(err)
	}
	if err := c.readFrame(); err != nil {
		return nil, c.fail(err)
	}
	defer c.codec.Consume()
	return c.codec.Reply()
}

// KeepAlive refreshes the server-side idle timer. No reply is sent.
func (c *Client) KeepAlive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return api.ErrClosed
	}
	c.arm()
	if err := c.signal(protocol.KeepAliveSignal); err != nil {
		return c.fail(err)
	}
	return nil
}

// Close notifies the server and closes the connection. The notification is
// best effort.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.arm()
	_ = c.signal(protocol.CloseSignal)
	return c.conn.Close()
}

// fail retires the connection after an error that may have left a partial
// frame on the wire.
func (c *Client) fail(err error) error {
	c.closed = true
	_ = c.conn.Close()
	return err
}

func (c *Client) arm() {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

func (c *Client) signal(code int32) error {
	wire, err := protocol.EncodeSignal(code)
	if err != nil {
		return err
	}
	return c.write(wire)
}

func (c *Client) write(wire []byte) error {
	if _, err := c.conn.Write(wire); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) readFrame() error {
	complete, err := c.codec.HasCompleteMessage()
	if err != nil {
		return err
	}
	if complete {
		return nil
	}
	bp := readBuffers.Get()
	defer readBuffers.Put(bp)
	buf := *bp
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			done, cerr := c.codec.AddPart(buf[:n])
			if cerr != nil {
				return cerr
			}
			if done {
				return nil
			}
		}
		if err != nil {
			return classify(err)
		}
	}
}

func classify(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("%w: %v", ErrPeerClosed, err)
	}
	return err
}

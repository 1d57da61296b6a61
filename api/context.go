// File: api/context.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection conversational state handed to a Processor on every request.

package api

// ClientContext carries the request, the reply and the conversational state of
// one connection. It is owned by the reactor between requests and by exactly
// one worker while a request is in flight, so it needs no locking.
type ClientContext struct {
	// State is the value produced by the StateFactory for this connection.
	State any

	request []byte
	reply   []byte
	retain  bool
	ended   bool
}

// NewClientContext wraps state into a fresh context.
func NewClientContext(state any) *ClientContext {
	return &ClientContext{State: state}
}

// Request returns the payload of the request being processed.
func (c *ClientContext) Request() []byte { return c.request }

// SetReply sets the reply payload. Leaving it unset produces an empty reply.
func (c *ClientContext) SetReply(reply []byte) { c.reply = reply }

// Reply returns the reply set by the processor.
func (c *ClientContext) Reply() []byte { return c.reply }

// RetainProcessor asks the reactor to keep the current Processor bound to this
// connection for the following requests instead of recycling it.
func (c *ClientContext) RetainProcessor(retain bool) { c.retain = retain }

// RetainsProcessor reports whether the processor is bound to the connection.
func (c *ClientContext) RetainsProcessor() bool { return c.retain }

// EndSession marks the session as finished; the connection is closed once the
// current reply has been written.
func (c *ClientContext) EndSession() { c.ended = true }

// SessionEnded reports whether EndSession was called.
func (c *ClientContext) SessionEnded() bool { return c.ended }

// Begin installs a new request and clears any stale reply.
func (c *ClientContext) Begin(request []byte) {
	c.request = request
	c.reply = nil
}

// Reset drops the per-request buffers.
func (c *ClientContext) Reset() {
	c.request = nil
	c.reply = nil
}

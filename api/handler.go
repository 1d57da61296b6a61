// File: api/handler.go
// Package api defines the business-logic contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Processor executes business logic for one complete request. It reads the
// request from cc and stores the reply with cc.SetReply. A returned error is
// delivered to the client as a fault frame; the connection stays open.
type Processor interface {
	Process(cc *ClientContext) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(cc *ClientContext) error

// Process calls f(cc).
func (f ProcessorFunc) Process(cc *ClientContext) error { return f(cc) }

// ProcessorFactory governs Processor instances. When SupportsPooling reports
// true the reactor hands back every instance it no longer needs via Reclaim.
// Implementations must be safe for use from the reactor goroutine only.
type ProcessorFactory interface {
	NewProcessor() Processor
	SupportsPooling() bool
	Reclaim(p Processor)
}

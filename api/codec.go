// File: api/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Codec contracts for incremental frame decoding. A codec instance belongs to
// exactly one connection and is never shared.

package api

// Service codes reported by ServerCodec.ServiceCode.
const (
	ServiceNone      int32 = 0
	ServiceClose     int32 = -1
	ServiceKeepAlive int32 = -2
)

// Codec is the direction-neutral part of a framing protocol.
type Codec interface {
	// AddPart feeds newly read bytes and reports whether a frame is complete.
	// The codec copies what it keeps; p may be reused by the caller.
	AddPart(p []byte) (bool, error)

	// HasCompleteMessage reports whether a complete frame is available,
	// assembling one from retained bytes if the previous frame was consumed.
	HasCompleteMessage() (bool, error)

	// Consume releases the completed frame. Bytes of later frames are kept.
	Consume()

	// Encode frames payload for the wire. A nil payload is a zero-length frame.
	Encode(payload []byte) []byte
}

// ServerCodec is the server-receiving side of a protocol.
type ServerCodec interface {
	Codec

	// ServiceCode returns the out-of-band signal of the completed frame, or 0.
	ServiceCode() int32

	// Request returns the payload of the completed frame.
	Request() []byte

	// EncodeFault frames err so that the client recognises it as a failure.
	EncodeFault(err error) []byte
}

// CodecFactory creates one ServerCodec per accepted connection.
type CodecFactory interface {
	NewCodec() ServerCodec
}

// CodecFactoryFunc adapts a function to CodecFactory.
type CodecFactoryFunc func() ServerCodec

// NewCodec calls f().
func (f CodecFactoryFunc) NewCodec() ServerCodec { return f() }

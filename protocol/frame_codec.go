// File: protocol/frame_codec.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Direction-specific LV codecs.

package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/lvreactor/api"
)

// ServerCodec decodes client requests and encodes replies.
type ServerCodec struct {
	decoder
}

var _ api.ServerCodec = (*ServerCodec)(nil)

// NewServerCodec returns a codec for one accepted connection.
func NewServerCodec(opts ...Option) *ServerCodec {
	c := &ServerCodec{}
	c.init(serverPolicy, opts)
	return c
}

// serverPolicy accepts the two service signals; any other negative length
// means the stream can no longer be parsed.
func serverPolicy(n int32) (int32, int, error) {
	switch n {
	case CloseSignal, KeepAliveSignal:
		return n, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: negative frame length %d", api.ErrProtocolViolation, n)
	}
}

// ServiceCode returns CloseSignal or KeepAliveSignal for a completed service
// frame and 0 otherwise.
func (c *ServerCodec) ServiceCode() int32 {
	if c.state != frameComplete {
		return 0
	}
	return c.code
}

// Request returns the payload of the completed frame.
func (c *ServerCodec) Request() []byte {
	if c.state != frameComplete {
		return nil
	}
	return c.payload
}

// EncodeFault frames err with a negated length so that the client can tell
// it apart from an ordinary reply by the sign alone.
func (c *ServerCodec) EncodeFault(err error) []byte {
	body := marshalFault(err)
	out := make([]byte, HeaderLen+len(body))
	binary.BigEndian.PutUint32(out, uint32(-int32(len(body))))
	copy(out[HeaderLen:], body)
	return out
}

// ClientCodec decodes server replies and encodes requests.
type ClientCodec struct {
	decoder
}

var _ api.Codec = (*ClientCodec)(nil)

// NewClientCodec returns a codec for one client connection.
func NewClientCodec(opts ...Option) *ClientCodec {
	c := &ClientCodec{}
	c.init(clientPolicy, opts)
	return c
}

// clientPolicy treats every negative length as a fault of -n bytes.
func clientPolicy(n int32) (int32, int, error) {
	return 0, int(-int64(n)), nil
}

// IsFault reports whether the completed frame carries a fault.
func (c *ClientCodec) IsFault() bool {
	return c.state == frameComplete && c.fault
}

// Reply returns the payload of the completed frame. A fault frame is decoded
// and returned as a *RemoteError.
func (c *ClientCodec) Reply() ([]byte, error) {
	if c.state != frameComplete {
		return nil, fmt.Errorf("%w: no complete reply", api.ErrInvalidArgument)
	}
	if !c.fault {
		return c.payload, nil
	}
	cause, err := unmarshalFault(c.payload)
	if err != nil {
		return nil, err
	}
	return nil, &RemoteError{Cause: cause}
}

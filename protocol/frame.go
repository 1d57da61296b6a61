// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Length-value (LV) framing: a 4-byte big-endian signed length followed by
// the payload. Negative lengths carry out-of-band signals or fault replies.
//
// The decoder is incremental. Bytes may arrive split at any position and a
// single read may carry several frames; whatever is not part of the current
// frame is retained until the frame is consumed.

package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/momentics/lvreactor/api"
)

const (
	// HeaderLen is the size of the length prefix.
	HeaderLen = 4

	// CloseSignal asks the server to close the connection.
	CloseSignal = api.ServiceClose

	// KeepAliveSignal refreshes the idle timer of the connection.
	KeepAliveSignal = api.ServiceKeepAlive

	// MaxPayload is the largest payload the length prefix can describe.
	MaxPayload = math.MaxInt32
)

// initialPayloadCap bounds the up-front allocation for a declared length,
// so a peer cannot reserve memory it never sends.
const initialPayloadCap = 64 << 10

type decodeState int

const (
	awaitingLength decodeState = iota
	awaitingPayload
	frameComplete
)

// lengthPolicy interprets a negative length prefix for one direction.
// It returns the service code, or the payload length of a fault frame.
type lengthPolicy func(n int32) (code int32, faultLen int, err error)

// decoder is the direction-neutral part of the LV codec.
type decoder struct {
	state   decodeState
	header  [HeaderLen]byte
	hdrN    int
	want    int
	payload []byte
	code    int32
	fault   bool

	pending    []byte
	maxPayload int
	policy     lengthPolicy
}

// Option tunes a codec instance.
type Option func(*decoder)

// WithMaxPayload rejects frames whose declared length exceeds n bytes.
// Zero or negative keeps the protocol maximum.
func WithMaxPayload(n int) Option {
	return func(d *decoder) {
		if n > 0 {
			d.maxPayload = n
		}
	}
}

func (d *decoder) init(policy lengthPolicy, opts []Option) {
	d.maxPayload = MaxPayload
	d.policy = policy
	for _, opt := range opts {
		opt(d)
	}
}

// AddPart appends p to the retained input and advances the state machine.
// p is copied, the caller may reuse it after the call.
func (d *decoder) AddPart(p []byte) (bool, error) {
	if len(p) > 0 {
		d.pending = append(d.pending, p...)
	}
	return d.advance()
}

// HasCompleteMessage reports whether a frame is complete. After Consume it
// assembles the next frame from retained bytes without further input.
func (d *decoder) HasCompleteMessage() (bool, error) {
	return d.advance()
}

// Consume drops the completed frame; retained bytes of later frames stay.
func (d *decoder) Consume() {
	d.state = awaitingLength
	d.hdrN = 0
	d.want = 0
	d.payload = nil
	d.code = 0
	d.fault = false
}

// Buffered returns the number of retained bytes not yet assigned to a frame.
func (d *decoder) Buffered() int { return len(d.pending) }

// Encode frames payload. A nil or empty payload yields a zero-length frame.
// Payloads longer than MaxPayload cannot be framed and must be split by the caller.
func (d *decoder) Encode(payload []byte) []byte {
	out := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[HeaderLen:], payload)
	return out
}

// EncodeSignal frames a header-only service signal.
func (d *decoder) EncodeSignal(code int32) ([]byte, error) {
	return EncodeSignal(code)
}

// EncodeSignal frames a header-only service signal. Only CloseSignal and
// KeepAliveSignal are accepted.
func EncodeSignal(code int32) ([]byte, error) {
	if code != CloseSignal && code != KeepAliveSignal {
		return nil, fmt.Errorf("%w: service code %d", api.ErrInvalidArgument, code)
	}
	out := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(out, uint32(code))
	return out, nil
}

func (d *decoder) advance() (bool, error) {
	if d.state == awaitingLength {
		n := copy(d.header[d.hdrN:], d.pending)
		d.hdrN += n
		d.take(n)
		if d.hdrN < HeaderLen {
			return false, nil
		}
		length := int32(binary.BigEndian.Uint32(d.header[:]))
		if length < 0 {
			code, faultLen, err := d.policy(length)
			if err != nil {
				return false, err
			}
			if code != 0 {
				d.code = code
				d.state = frameComplete
				return true, nil
			}
			d.fault = true
			d.want = faultLen
		} else {
			d.want = int(length)
		}
		if d.want > d.maxPayload {
			return false, fmt.Errorf("%w: frame length %d exceeds limit %d",
				api.ErrProtocolViolation, d.want, d.maxPayload)
		}
		d.payload = make([]byte, 0, min(d.want, initialPayloadCap))
		d.state = awaitingPayload
	}

	if d.state == awaitingPayload {
		n := min(d.want-len(d.payload), len(d.pending))
		d.payload = append(d.payload, d.pending[:n]...)
		d.take(n)
		if len(d.payload) < d.want {
			return false, nil
		}
		d.state = frameComplete
	}
	return true, nil
}

func (d *decoder) take(n int) {
	d.pending = d.pending[n:]
	if len(d.pending) == 0 {
		d.pending = nil
	}
}

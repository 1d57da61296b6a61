// File: protocol/fault.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fault payloads: an error raised by a processor travels to the client as an
// XDR record of its dynamic type name and message. The client rebuilds the
// error through a registry of known kinds.

package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/momentics/lvreactor/api"
)

// ErrUnknownFault matches faults whose kind is not registered locally.
var ErrUnknownFault = errors.New("unknown fault kind")

// RemoteError is returned by the client when the remote processor failed.
type RemoteError struct {
	Cause error
}

func (e *RemoteError) Error() string {
	return "remote execution failed: " + e.Cause.Error()
}

func (e *RemoteError) Unwrap() error { return e.Cause }

// UnknownFaultError carries a fault whose kind has no registered builder.
type UnknownFaultError struct {
	Kind    string
	Message string
}

func (e *UnknownFaultError) Error() string {
	return fmt.Sprintf("unknown fault kind %s: %s", e.Kind, e.Message)
}

func (e *UnknownFaultError) Is(target error) bool { return target == ErrUnknownFault }

// faultRecord is the wire form of a fault.
type faultRecord struct {
	Kind    string
	Message string
}

var faults = struct {
	sync.RWMutex
	builders map[string]func(msg string) error
}{builders: map[string]func(string) error{}}

// Errors built by errors.New and fmt.Errorf are always known. The wrapped
// chain does not cross the wire; the rebuilt value wraps a plain error
// carrying the whole message.
func init() {
	RegisterFault(errors.New(""), func(msg string) error { return errors.New(msg) })
	RegisterFault(fmt.Errorf("%w", errors.New("")), func(msg string) error {
		return fmt.Errorf("%w", errors.New(msg))
	})
	RegisterFault(fmt.Errorf("%w%w", errors.New(""), errors.New("")), func(msg string) error {
		return fmt.Errorf("%w%w", errors.New(msg), errors.New(""))
	})
}

// RegisterFault makes the dynamic type of sample reconstructible on the
// receiving side. build must return a value of the same type.
func RegisterFault(sample error, build func(msg string) error) {
	faults.Lock()
	faults.builders[faultKind(sample)] = build
	faults.Unlock()
}

func faultKind(err error) string {
	return fmt.Sprintf("%T", err)
}

func marshalFault(err error) []byte {
	rec := faultRecord{Kind: faultKind(err)}
	if err != nil {
		rec.Message = err.Error()
	}
	var buf bytes.Buffer
	if _, mErr := xdr.Marshal(&buf, &rec); mErr != nil {
		// Strings always encode; keep the frame well-formed regardless.
		buf.Reset()
		fallback := faultRecord{Kind: faultKind(errors.New("")), Message: rec.Message}
		_, _ = xdr.Marshal(&buf, &fallback)
	}
	return buf.Bytes()
}

func unmarshalFault(body []byte) (error, error) {
	var rec faultRecord
	if _, err := xdr.Unmarshal(bytes.NewReader(body), &rec); err != nil {
		return nil, fmt.Errorf("%w: decode fault: %v", api.ErrProtocolViolation, err)
	}
	faults.RLock()
	build, ok := faults.builders[rec.Kind]
	faults.RUnlock()
	if !ok {
		return &UnknownFaultError{Kind: rec.Kind, Message: rec.Message}, nil
	}
	return build(rec.Message), nil
}

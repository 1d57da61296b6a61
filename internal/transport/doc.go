// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP socket primitives on raw descriptors for the reactor.
// Only the reactor goroutine calls into this package for a given descriptor.

package transport

// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection state owned by the reactor: socket, codec, business-logic
// context, bound processor, expiration hint and the outbound reply.
//
// A Session is touched only by the reactor goroutine, except while its
// request is in flight, when exactly one worker owns the codec and context.

package session

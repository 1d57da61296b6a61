// File: api/context_factory.go
package api

// StateFactory produces the conversational state of a new connection.
type StateFactory interface {
	NewState() any
}

// StateFactoryFunc adapts a function to StateFactory.
type StateFactoryFunc func() any

// NewState calls f().
func (f StateFactoryFunc) NewState() any { return f() }

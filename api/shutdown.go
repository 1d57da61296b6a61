// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by components that stop intake first and
// release resources once in-flight work has drained.
type GracefulShutdown interface {
	Shutdown() error
}

// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files guarded by build tags.

package affinity

import (
	"errors"
	"runtime"
)

// ErrUnsupported is returned where thread pinning is not available.
var ErrUnsupported = errors.New("affinity: not supported on this platform")

// Pin locks the calling goroutine to its OS thread and binds that thread to
// the slot-th CPU of the set the thread may currently run on, wrapping
// around. The goroutine stays locked even when binding fails; when it exits
// the runtime discards the thread together with its binding.
func Pin(slot int) error {
	runtime.LockOSThread()
	cpus, err := Current()
	if err != nil {
		return err
	}
	if slot < 0 {
		slot = -slot
	}
	return setAffinityPlatform(cpus[slot%len(cpus)])
}

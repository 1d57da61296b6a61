//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package affinity

func setAffinityPlatform(int) error { return ErrUnsupported }

// Current is not available on this platform.
func Current() ([]int, error) { return nil, ErrUnsupported }

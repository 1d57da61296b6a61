//go:build linux

package concurrency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/lvreactor/affinity"
)

func TestExecutorCPUAffinity(t *testing.T) {
	allowed, err := affinity.Current()
	require.NoError(t, err)

	var pinErrs []error
	var mu sync.Mutex
	e := NewExecutor(2, nil, WithCPUAffinity(func(_ int, err error) {
		mu.Lock()
		pinErrs = append(pinErrs, err)
		mu.Unlock()
	}))

	sets := make(chan []int, 8)
	for i := 0; i < 8; i++ {
		require.NoError(t, e.Submit(func() {
			cpus, err := affinity.Current()
			assert.NoError(t, err)
			sets <- cpus
		}))
	}
	e.Close()
	close(sets)

	assert.Empty(t, pinErrs)
	for cpus := range sets {
		require.Len(t, cpus, 1)
		assert.Contains(t, allowed, cpus[0])
	}
}

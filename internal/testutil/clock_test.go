package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_StartsAtEpoch(t *testing.T) {
	clock := NewClock()
	assert.Equal(t, Epoch, clock.NowMs())
	assert.Equal(t, Epoch+1000, clock.NowMs())
	assert.Equal(t, int64(2), clock.Calls())
}

func TestClock_Reset(t *testing.T) {
	clock := NewClock()
	clock.NowMs()
	clock.NowMs()
	clock.Reset()
	assert.Equal(t, int64(0), clock.Calls())
	assert.Equal(t, Epoch, clock.NowMs())
}

func TestClock_Concurrent(t *testing.T) {
	clock := NewClock()
	const numGoroutines = 10
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]int64, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]int64, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.NowMs()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for i := range results {
		for _, ts := range results[i] {
			require.False(t, seen[ts], "duplicate timestamp %d", ts)
			seen[ts] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestClock_Deterministic(t *testing.T) {
	clock1 := NewClock()
	clock2 := NewClock()
	for i := 0; i < 100; i++ {
		assert.Equal(t, clock1.NowMs(), clock2.NowMs())
	}
}

package syncer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/protocol"
)

func update(gen int64) *protocol.StreamAndCookie {
	return &protocol.StreamAndCookie{NextSyncCookie: &protocol.SyncCookie{MinipoolGen: gen}}
}

func TestUpdateQueue_FIFO(t *testing.T) {
	q := newUpdateQueue()
	for i := int64(1); i <= 3; i++ {
		require.True(t, q.Enqueue(update(i)))
	}
	assert.Equal(t, 3, q.Len())

	for i := int64(1); i <= 3; i++ {
		u, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, i, u.NextSyncCookie.MinipoolGen)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestUpdateQueue_SignalCoalesces(t *testing.T) {
	q := newUpdateQueue()
	q.Enqueue(update(1))
	q.Enqueue(update(2))

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("second signal should have been coalesced")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestUpdateQueue_CloseDrains(t *testing.T) {
	q := newUpdateQueue()
	q.Enqueue(update(1))
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(update(2)), "enqueue after close should fail")
	<-q.Wait() // pending signal from the first enqueue
	_, open := <-q.Wait()
	assert.False(t, open)

	u, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(1), u.NextSyncCookie.MinipoolGen)
}

func TestUpdateQueue_ConcurrentEnqueue(t *testing.T) {
	q := newUpdateQueue()
	const numGoroutines = 10
	const perGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				q.Enqueue(update(int64(j)))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, numGoroutines*perGoroutine, q.Len())
}

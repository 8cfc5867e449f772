package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueRejectsWhenFull(t *testing.T) {
	q := New[int](3)
	for i := 0; i < 3; i++ {
		require.True(t, q.Enqueue(i))
	}

	start := time.Now()
	assert.False(t, q.Enqueue(99))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 3, q.Len())
}

func TestEnqueueWaitBlocksUntilRoom(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.EnqueueWait(context.Background(), 1))

	done := make(chan error, 1)
	go func() { done <- q.EnqueueWait(context.Background(), 2) }()
	select {
	case <-done:
		t.Fatal("EnqueueWait returned while the queue was full")
	case <-time.After(30 * time.Millisecond):
	}

	v, ok := q.Dequeue(time.Second)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	require.NoError(t, <-done)
	v, ok = q.Dequeue(time.Second)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestEnqueueWaitHonoursContext(t *testing.T) {
	q := New[int](1)
	q.Enqueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.EnqueueWait(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestDequeueOrderAndTimeout(t *testing.T) {
	q := New[string](4)
	q.Enqueue("a")
	q.Enqueue("b")

	v, ok := q.Dequeue(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok = q.Dequeue(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "b", v)

	start := time.Now()
	_, ok = q.Dequeue(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
	q := New[int](1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(7)
	}()
	v, ok := q.Dequeue(time.Second)
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

// A burst larger than the queue is partly dropped without blocking the producer,
// and every accepted item is delivered exactly once.
func TestBurstBackpressure(t *testing.T) {
	const capacity, burst = 5000, 10000
	q := New[int](capacity)

	accepted := 0
	start := time.Now()
	for i := 0; i < burst; i++ {
		if q.Enqueue(i) {
			accepted++
		}
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, capacity, accepted)

	var wg sync.WaitGroup
	seen := make(map[int]bool)
	var mu sync.Mutex
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := q.TryDequeue()
				if !ok {
					return
				}
				mu.Lock()
				assert.False(t, seen[v], "item %d delivered twice", v)
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, capacity)
	assert.Zero(t, q.Len())
}

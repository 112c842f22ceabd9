package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewWorkQueue_Success tests the queue factory function.
func TestNewWorkQueue_Success(t *testing.T) {
	t.Parallel()

	q := NewWorkQueue[string]()

	require.NotNil(t, q)
	assert.Empty(t, q.items)
	assert.NotNil(t, q.inProgress)
	assert.False(t, q.HasRemainingItems())

	p := q.Progress()
	assert.False(t, p.HasStarted)
	assert.False(t, p.HasFinished)
	assert.Zero(t, p.ProgressPct)
}

// TestEnqueueDequeue_Success tests enqueueing and dequeueing in order.
func TestEnqueueDequeue_Success(t *testing.T) {
	t.Parallel()

	q := NewWorkQueue[string]()
	q.Enqueue("job1", "job2")

	item, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "job1", item)

	item, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "job2", item)

	_, ok = q.Dequeue()
	assert.False(t, ok)

	p := q.Progress()
	assert.True(t, p.HasStarted)
	assert.False(t, p.HasFinished)
	assert.Equal(t, 2, p.InProgressItems)
}

// TestProgress_Settled tests the bookkeeping of settled items.
func TestProgress_Settled(t *testing.T) {
	t.Parallel()

	q := NewWorkQueue[int]()
	q.Enqueue(1, 2, 3, 4)

	for range 4 {
		_, ok := q.Dequeue()
		require.True(t, ok)
	}

	q.SetSuccess(1, 2)
	q.SetFailed(3)

	p := q.Progress()
	assert.Equal(t, 4, p.TotalItems)
	assert.Equal(t, 3, p.ProcessedItems)
	assert.Equal(t, 1, p.InProgressItems)
	assert.InDelta(t, 75.0, p.ProgressPct, 0.001)
	assert.False(t, p.HasFinished)

	q.SetSuccess(4)

	p = q.Progress()
	assert.True(t, p.HasFinished)
	assert.InDelta(t, 100.0, p.ProgressPct, 0.001)
	assert.False(t, p.FinishTime.IsZero())
	assert.Equal(t, []int{1, 2, 4}, q.Successful())
	assert.Equal(t, []int{3}, q.Failed())

	// New work reopens a finished queue.
	q.Enqueue(5)
	assert.False(t, q.Progress().HasFinished)
}

// TestDequeueAndProcess_Requeue tests that requeued items are processed
// again and counted once.
func TestDequeueAndProcess_Requeue(t *testing.T) {
	t.Parallel()

	q := NewWorkQueue[string]()
	q.Enqueue("a", "b", "c")

	tries := map[string]int{}

	err := q.DequeueAndProcess(t.Context(), func(item string) Decision {
		tries[item]++

		switch {
		case item == "b" && tries[item] < 3:
			return DecisionRequeue
		case item == "c":
			return DecisionFailed
		default:
			return DecisionSuccess
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 3, tries["b"])
	assert.Equal(t, []string{"a", "b"}, q.Successful())
	assert.Equal(t, []string{"c"}, q.Failed())

	p := q.Progress()
	assert.Equal(t, 3, p.TotalItems)
	assert.Equal(t, 2, p.RequeuedItems)
	assert.True(t, p.HasFinished)
}

// TestDequeueAndProcess_ContextCancel tests processing stops on cancellation.
func TestDequeueAndProcess_ContextCancel(t *testing.T) {
	t.Parallel()

	q := NewWorkQueue[int]()
	q.Enqueue(1, 2, 3)

	ctx, cancel := context.WithCancel(t.Context())

	err := q.DequeueAndProcess(ctx, func(int) Decision {
		cancel()

		return DecisionSuccess
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, q.Successful(), 1)
	assert.True(t, q.HasRemainingItems())
}

// TestDequeueAndProcessConc_Limit tests that no more than maxWorkers items
// are processed at once and that late requeues are picked up.
func TestDequeueAndProcessConc_Limit(t *testing.T) {
	t.Parallel()

	q := NewWorkQueue[int]()
	for i := range 20 {
		q.Enqueue(i)
	}

	var running, peak atomic.Int32
	var mu sync.Mutex
	requeued := map[int]bool{}

	err := q.DequeueAndProcessConc(t.Context(), 3, func(item int) Decision {
		n := running.Add(1)
		defer running.Add(-1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(time.Millisecond)

		mu.Lock()
		defer mu.Unlock()

		if item%5 == 0 && !requeued[item] {
			requeued[item] = true

			return DecisionRequeue
		}

		return DecisionSuccess
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Len(t, q.Successful(), 20)
	assert.Equal(t, 4, q.Progress().RequeuedItems)
	assert.False(t, q.HasRemainingItems())
}

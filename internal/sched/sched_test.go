package sched

import (
	"math/rand"
	"testing"

	"github.com/desertwitch/kcore/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newThreads(n int) []*Thread {
	threads := make([]*Thread, n)
	for i := range threads {
		threads[i] = NewThread(schema.Pid(1), schema.Tid(i+1))
	}

	return threads
}

// requireConsistent checks that every thread is a member of exactly the
// queue/set its state implies.
func requireConsistent(t *testing.T, s *Scheduler, threads []*Thread) {
	t.Helper()

	snap := s.Snapshot()

	for _, th := range threads {
		inReady := 0
		for _, tid := range snap.Ready {
			if tid == th.Tid {
				inReady++
			}
		}

		inBlocked := 0
		for _, tid := range snap.Blocked {
			if tid == th.Tid {
				inBlocked++
			}
		}

		switch s.State(th) {
		case StateReady:
			require.Equal(t, 1, inReady, "thread %s", th)
			require.Equal(t, 0, inBlocked, "thread %s", th)
		case StateBlocked:
			require.Equal(t, 0, inReady, "thread %s", th)
			require.Equal(t, 1, inBlocked, "thread %s", th)
		case StateRunning, StateNew:
			require.Equal(t, 0, inReady, "thread %s", th)
			require.Equal(t, 0, inBlocked, "thread %s", th)
		}
	}

	require.Equal(t, snap.Capacity-len(snap.Ready), snap.Free)
}

// TestSetReady_FIFO tests that threads are dequeued in arrival order.
func TestSetReady_FIFO(t *testing.T) {
	t.Parallel()

	s := NewScheduler(4)
	threads := newThreads(3)

	for _, th := range threads {
		require.NoError(t, s.SetReady(th))
	}

	assert.Equal(t, threads[0], s.DequeueReady())
	assert.Equal(t, threads[1], s.DequeueReady())
	assert.Equal(t, threads[2], s.DequeueReady())
	assert.Nil(t, s.DequeueReady())
}

// TestSetReady_Idempotent tests that readying a ready thread is a no-op.
func TestSetReady_Idempotent(t *testing.T) {
	t.Parallel()

	s := NewScheduler(4)
	th := NewThread(1, 1)

	require.NoError(t, s.SetReady(th))
	require.NoError(t, s.SetReady(th))

	snap := s.Snapshot()
	assert.Equal(t, []schema.Tid{1}, snap.Ready)
	assert.Equal(t, 3, snap.Free)
}

// TestSetBlocked_FromReady tests that blocking a ready thread dequeues it.
func TestSetBlocked_FromReady(t *testing.T) {
	t.Parallel()

	s := NewScheduler(4)
	threads := newThreads(3)

	for _, th := range threads {
		require.NoError(t, s.SetReady(th))
	}

	s.SetBlocked(threads[1])
	s.SetBlocked(threads[1])

	snap := s.Snapshot()
	assert.Equal(t, []schema.Tid{1, 3}, snap.Ready)
	assert.Equal(t, []schema.Tid{2}, snap.Blocked)
	assert.Equal(t, StateBlocked, s.State(threads[1]))

	requireConsistent(t, s, threads)
}

// TestSetRunning_FromEachState tests promotion from every queue.
func TestSetRunning_FromEachState(t *testing.T) {
	t.Parallel()

	s := NewScheduler(4)
	threads := newThreads(3)

	require.NoError(t, s.SetReady(threads[0]))
	s.SetBlocked(threads[1])

	s.SetRunning(threads[0])
	assert.Equal(t, StateRunning, s.State(threads[0]))
	assert.Equal(t, threads[0], s.Running())
	requireConsistent(t, s, threads)

	s.SetRunning(threads[1])
	assert.Equal(t, StateRunning, s.State(threads[1]))
	requireConsistent(t, s, threads)

	s.SetRunning(threads[2])
	s.SetRunning(threads[2])
	assert.Equal(t, threads[2], s.Running())
	requireConsistent(t, s, threads)

	snap := s.Snapshot()
	assert.Empty(t, snap.Ready)
	assert.Empty(t, snap.Blocked)
}

// TestSetRunning_NilPanics tests the nil thread contract violation.
func TestSetRunning_NilPanics(t *testing.T) {
	t.Parallel()

	s := NewScheduler(1)

	assert.Panics(t, func() { s.SetRunning(nil) })
	assert.Panics(t, func() { _ = s.SetReady(nil) })
	assert.Panics(t, func() { s.SetBlocked(nil) })
	assert.Panics(t, func() { s.RemoveProc(nil) })
}

// TestSetRunning_InvalidStatePanics tests that a state outside the model is
// treated as a contract violation.
func TestSetRunning_InvalidStatePanics(t *testing.T) {
	t.Parallel()

	s := NewScheduler(1)
	th := NewThread(1, 1)
	th.state = State(42)

	assert.Panics(t, func() { s.SetRunning(th) })
}

// TestUnblockAll_Success tests that all blocked threads become ready in
// blocking order while other threads stay untouched.
func TestUnblockAll_Success(t *testing.T) {
	t.Parallel()

	s := NewScheduler(8)
	threads := newThreads(5)

	require.NoError(t, s.SetReady(threads[0]))
	s.SetBlocked(threads[3])
	s.SetBlocked(threads[1])
	s.SetBlocked(threads[2])
	s.SetRunning(threads[4])

	require.NoError(t, s.UnblockAll())

	snap := s.Snapshot()
	assert.Equal(t, []schema.Tid{1, 4, 2, 3}, snap.Ready)
	assert.Empty(t, snap.Blocked)
	assert.Equal(t, StateRunning, s.State(threads[4]))

	requireConsistent(t, s, threads)
}

// TestUnblockAll_Exhausted tests that threads which do not fit stay blocked.
func TestUnblockAll_Exhausted(t *testing.T) {
	t.Parallel()

	s := NewScheduler(1)
	threads := newThreads(2)

	s.SetBlocked(threads[0])
	s.SetBlocked(threads[1])

	err := s.UnblockAll()
	require.ErrorIs(t, err, ErrReadyQueueFull)

	snap := s.Snapshot()
	assert.Equal(t, []schema.Tid{1}, snap.Ready)
	assert.Equal(t, []schema.Tid{2}, snap.Blocked)

	requireConsistent(t, s, threads)
}

// TestRemoveProc_Success tests that removal purges any queue membership but
// leaves the state alone.
func TestRemoveProc_Success(t *testing.T) {
	t.Parallel()

	s := NewScheduler(4)
	threads := newThreads(3)

	require.NoError(t, s.SetReady(threads[0]))
	s.SetBlocked(threads[1])
	s.SetRunning(threads[2])

	s.RemoveProc(threads[0])
	s.RemoveProc(threads[1])
	s.RemoveProc(threads[2])

	snap := s.Snapshot()
	assert.Empty(t, snap.Ready)
	assert.Empty(t, snap.Blocked)
	assert.Equal(t, schema.InvalidTid, snap.Running)
	assert.Equal(t, 4, snap.Free)

	assert.Equal(t, StateReady, s.State(threads[0]))
	assert.Equal(t, StateBlocked, s.State(threads[1]))
	assert.Equal(t, StateRunning, s.State(threads[2]))
}

// TestPerform_RoundRobin tests that perform rotates through ready threads.
func TestPerform_RoundRobin(t *testing.T) {
	t.Parallel()

	s := NewScheduler(4)
	threads := newThreads(3)

	for _, th := range threads {
		require.NoError(t, s.SetReady(th))
	}

	var order []schema.Tid
	for range 6 {
		next, err := s.Perform()
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, StateRunning, s.State(next))
		order = append(order, next.Tid)
		requireConsistent(t, s, threads)
	}

	assert.Equal(t, []schema.Tid{1, 2, 3, 1, 2, 3}, order)
}

// TestPerform_BlockedNotRequeued tests that a running thread which blocked
// itself is not put back into the ready queue.
func TestPerform_BlockedNotRequeued(t *testing.T) {
	t.Parallel()

	s := NewScheduler(4)
	threads := newThreads(2)

	require.NoError(t, s.SetReady(threads[0]))
	require.NoError(t, s.SetReady(threads[1]))

	first, err := s.Perform()
	require.NoError(t, err)
	require.Equal(t, threads[0], first)

	s.SetBlocked(first)

	second, err := s.Perform()
	require.NoError(t, err)
	require.Equal(t, threads[1], second)

	third, err := s.Perform()
	require.NoError(t, err)
	assert.Equal(t, threads[1], third)

	s.SetBlocked(third)

	idle, err := s.Perform()
	require.NoError(t, err)
	assert.Nil(t, idle)
	assert.Nil(t, s.Running())

	requireConsistent(t, s, threads)
}

// TestSetReady_Exhaustion tests the N+1 scenario: a full ready queue rejects
// another thread until a slot has been dequeued.
func TestSetReady_Exhaustion(t *testing.T) {
	t.Parallel()

	const capacity = 4

	s := NewScheduler(capacity)
	threads := newThreads(capacity + 1)

	for _, th := range threads[:capacity] {
		require.NoError(t, s.SetReady(th))
	}

	extra := threads[capacity]
	s.SetBlocked(extra)

	err := s.SetReady(extra)
	require.ErrorIs(t, err, ErrReadyQueueFull)
	assert.Equal(t, StateBlocked, s.State(extra))
	requireConsistent(t, s, threads)

	require.Equal(t, threads[0], s.DequeueReady())

	require.NoError(t, s.SetReady(extra))
	assert.Equal(t, StateReady, s.State(extra))

	snap := s.Snapshot()
	assert.Equal(t, []schema.Tid{2, 3, 4, 5}, snap.Ready)
	assert.Empty(t, snap.Blocked)
}

// TestTransitions_Random drives random transitions and checks membership
// consistency after every step.
func TestTransitions_Random(t *testing.T) {
	t.Parallel()

	s := NewScheduler(16)
	threads := newThreads(16)
	rnd := rand.New(rand.NewSource(7)) //nolint:gosec

	for range 2000 {
		th := threads[rnd.Intn(len(threads))]

		switch rnd.Intn(6) {
		case 0:
			require.NoError(t, s.SetReady(th))
		case 1:
			s.SetBlocked(th)
		case 2:
			s.SetRunning(th)
		case 3:
			require.NoError(t, s.UnblockAll())
		case 4:
			_, err := s.Perform()
			require.NoError(t, err)
		case 5:
			s.DequeueReady()
		}

		requireConsistentAfterDequeue(t, s, threads)
	}
}

// requireConsistentAfterDequeue tolerates threads that were popped with
// DequeueReady: they keep their ready state while belonging to no queue.
func requireConsistentAfterDequeue(t *testing.T, s *Scheduler, threads []*Thread) {
	t.Helper()

	snap := s.Snapshot()

	seen := make(map[schema.Tid]int)
	for _, tid := range snap.Ready {
		seen[tid]++
	}
	for _, tid := range snap.Blocked {
		seen[tid]++
	}

	for _, th := range threads {
		require.LessOrEqual(t, seen[th.Tid], 1, "thread %s is queued twice", th)

		switch s.State(th) {
		case StateBlocked:
			require.Contains(t, snap.Blocked, th.Tid)
		case StateRunning, StateNew:
			require.NotContains(t, snap.Ready, th.Tid)
			require.NotContains(t, snap.Blocked, th.Tid)
		}
	}
}

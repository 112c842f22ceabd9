package proc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/desertwitch/kcore/internal/sched"
	"github.com/desertwitch/kcore/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startManager(t *testing.T, maxThreads int) (*Manager, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	t.Cleanup(cancel)

	m := NewManager(sched.NewScheduler(maxThreads))

	go func() {
		_ = m.Run(ctx)
	}()

	return m, ctx
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for threads")
	}
}

// TestSpawn_RoundRobin tests that yielding threads are interleaved in
// arrival order.
func TestSpawn_RoundRobin(t *testing.T) {
	t.Parallel()

	m := NewManager(sched.NewScheduler(8))
	p := m.NewProcess("test", schema.Credentials{EUID: 1000, EGID: 1000})

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	var order []schema.Tid
	var wg sync.WaitGroup

	// Spawn before the dispatcher runs, so the arrival order is fixed.
	for range 3 {
		wg.Add(1)
		_, err := m.Spawn(ctx, p.Pid, func(ctx context.Context, th *Thread) error {
			defer wg.Done()

			for range 2 {
				mu.Lock()
				order = append(order, th.Tid)
				mu.Unlock()

				if err := m.Yield(ctx, th); err != nil {
					return err
				}
			}

			return nil
		})
		require.NoError(t, err)
	}

	go func() {
		_ = m.Run(ctx)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	waitDone(t, done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []schema.Tid{1, 2, 3, 1, 2, 3}, order)
}

// TestSpawn_NoProcess tests spawning into an unknown process.
func TestSpawn_NoProcess(t *testing.T) {
	t.Parallel()

	m := NewManager(sched.NewScheduler(1))

	_, err := m.Spawn(t.Context(), 99, func(context.Context, *Thread) error { return nil })
	require.ErrorIs(t, err, ErrNoProcess)
}

// TestSpawn_ReadyQueueFull tests that spawning beyond the capacity fails.
func TestSpawn_ReadyQueueFull(t *testing.T) {
	t.Parallel()

	m := NewManager(sched.NewScheduler(1))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	_, err := m.Spawn(ctx, schema.KernelPid, func(context.Context, *Thread) error { return nil })
	require.NoError(t, err)

	_, err = m.Spawn(ctx, schema.KernelPid, func(context.Context, *Thread) error { return nil })
	require.ErrorIs(t, err, sched.ErrReadyQueueFull)
}

// TestWait_WakeThread tests blocking and waking a thread on an event.
func TestWait_WakeThread(t *testing.T) {
	t.Parallel()

	m, ctx := startManager(t, 4)

	blocked := make(chan schema.Tid, 1)
	done := make(chan struct{})

	_, err := m.Spawn(ctx, schema.KernelPid, func(ctx context.Context, th *Thread) error {
		defer close(done)

		blocked <- th.Tid

		return m.Wait(ctx, th.Tid, schema.EvReqReply, 7, false, nil)
	})
	require.NoError(t, err)

	tid := <-blocked

	require.Eventually(t, func() bool {
		return m.Scheduler().Snapshot().Blocked != nil
	}, 5*time.Second, time.Millisecond)

	assert.False(t, m.WakeThread(tid, schema.EvDataReadable))
	assert.True(t, m.WakeThread(tid, schema.EvReqReply))

	waitDone(t, done)
	assert.Eventually(t, func() bool { return !m.Exists(tid) }, 5*time.Second, time.Millisecond)
}

// TestWait_DoneSkipsBlocking tests that a satisfied condition never blocks.
func TestWait_DoneSkipsBlocking(t *testing.T) {
	t.Parallel()

	m, ctx := startManager(t, 4)

	done := make(chan error, 1)

	_, err := m.Spawn(ctx, schema.KernelPid, func(ctx context.Context, th *Thread) error {
		done <- m.Wait(ctx, th.Tid, schema.EvReqReply, 0, false, func() bool { return true })

		return nil
	})
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("thread blocked although its condition was met")
	}
}

// TestWake_ByObject tests that only waiters on the same object are woken.
func TestWake_ByObject(t *testing.T) {
	t.Parallel()

	m, ctx := startManager(t, 8)

	var wg sync.WaitGroup
	woken := make(chan int64, 3)

	for _, obj := range []int64{1, 1, 2} {
		wg.Add(1)
		_, err := m.Spawn(ctx, schema.KernelPid, func(ctx context.Context, th *Thread) error {
			wg.Done()

			if err := m.Wait(ctx, th.Tid, schema.EvDataReadable, obj, false, nil); err != nil {
				return err
			}
			woken <- obj

			return nil
		})
		require.NoError(t, err)
	}

	wg.Wait()
	require.Eventually(t, func() bool {
		return len(m.Scheduler().Snapshot().Blocked) == 3
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, 2, m.Wake(schema.EvDataReadable, 1))

	assert.Equal(t, int64(1), <-woken)
	assert.Equal(t, int64(1), <-woken)

	assert.Equal(t, 1, m.Wake(schema.EvDataReadable, 2))
	assert.Equal(t, int64(2), <-woken)
}

// TestSendSignal_InterruptsWait tests that a signal wakes an interruptible
// waiter and is reported as pending.
func TestSendSignal_InterruptsWait(t *testing.T) {
	t.Parallel()

	m, ctx := startManager(t, 4)

	started := make(chan schema.Tid, 1)
	result := make(chan bool, 1)

	_, err := m.Spawn(ctx, schema.KernelPid, func(ctx context.Context, th *Thread) error {
		started <- th.Tid

		if err := m.Wait(ctx, th.Tid, schema.EvReqReply, 0, true, nil); err != nil {
			return err
		}
		result <- m.HasSignalFor(th.Tid)
		m.AckSignal(th.Tid)

		return nil
	})
	require.NoError(t, err)

	tid := <-started
	require.Eventually(t, func() bool {
		return len(m.Scheduler().Snapshot().Blocked) == 1
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, m.SendSignal(tid))

	select {
	case pending := <-result:
		assert.True(t, pending)
	case <-time.After(5 * time.Second):
		t.Fatal("signal did not interrupt the wait")
	}
}

// TestWakeAll_Success tests the broadcast wake-up.
func TestWakeAll_Success(t *testing.T) {
	t.Parallel()

	m, ctx := startManager(t, 8)

	var wg sync.WaitGroup
	wg.Add(3)

	for i := range 3 {
		_, err := m.Spawn(ctx, schema.KernelPid, func(ctx context.Context, th *Thread) error {
			defer wg.Done()

			return m.Wait(ctx, th.Tid, schema.Event(i+1), 0, false, nil)
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(m.Scheduler().Snapshot().Blocked) == 3
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, m.WakeAll())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	waitDone(t, done)
}

// TestOnThreadExit_Success tests the thread exit hooks.
func TestOnThreadExit_Success(t *testing.T) {
	t.Parallel()

	m, ctx := startManager(t, 4)

	exited := make(chan schema.Tid, 1)
	m.OnThreadExit(func(tid schema.Tid) {
		exited <- tid
	})

	th, err := m.Spawn(ctx, schema.KernelPid, func(context.Context, *Thread) error { return nil })
	require.NoError(t, err)

	select {
	case tid := <-exited:
		assert.Equal(t, th.Tid, tid)
		assert.False(t, m.Exists(tid))
	case <-time.After(5 * time.Second):
		t.Fatal("exit hook was not called")
	}
}

// TestCredentials_Success tests the credential lookup.
func TestCredentials_Success(t *testing.T) {
	t.Parallel()

	m := NewManager(sched.NewScheduler(1))
	p := m.NewProcess("user", schema.Credentials{EUID: 1000, EGID: 100, Groups: []schema.GID{5}})

	creds, ok := m.Credentials(p.Pid)
	require.True(t, ok)
	assert.Equal(t, schema.UID(1000), creds.EUID)
	assert.True(t, creds.IsMember(5))
	assert.True(t, creds.IsMember(100))
	assert.False(t, creds.IsMember(6))

	_, ok = m.Credentials(schema.KernelPid)
	assert.False(t, ok)

	_, ok = m.Credentials(12345)
	assert.False(t, ok)
}

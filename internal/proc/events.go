package proc

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/desertwitch/kcore/internal/schema"
)

// Wait blocks the calling thread until it is woken for the event and object.
// The done function is evaluated under the manager's lock before blocking: if
// it reports true the thread does not block at all. Wake-ups issued after done
// was evaluated are never lost.
//
// With allowSigs set, a pending signal prevents blocking and a signal sent
// while blocked wakes the thread. The caller distinguishes the cause of the
// wake-up by its own state and [Manager.HasSignalFor].
func (m *Manager) Wait(ctx context.Context, tid schema.Tid, ev schema.Event, obj int64, allowSigs bool, done func() bool) error {
	m.Lock()

	t, ok := m.threads[tid]
	if !ok {
		m.Unlock()

		return fmt.Errorf("(proc-wait) %w: tid %d", ErrNoThread, tid)
	}

	if (done != nil && done()) || (allowSigs && t.signal) {
		m.Unlock()

		return nil
	}

	t.wait = &waitEntry{ev: ev, obj: obj, allowSigs: allowSigs}
	m.sched.SetBlocked(t.Thread)
	m.Unlock()

	if err := m.park(ctx, t); err != nil {
		return fmt.Errorf("(proc-wait) %w", err)
	}

	return nil
}

// Yield is a preemption point: the thread gives the CPU back and is resumed
// once the scheduler selects it again.
func (m *Manager) Yield(ctx context.Context, t *Thread) error {
	if err := m.park(ctx, t); err != nil {
		return fmt.Errorf("(proc-yield) %w", err)
	}

	return nil
}

// park gives the CPU back to the dispatcher and waits until it is handed
// back.
func (m *Manager) park(ctx context.Context, t *Thread) error {
	select {
	case m.released <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-t.resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wake readies every thread waiting for the event on the object. It returns
// the number of threads that were woken.
func (m *Manager) Wake(ev schema.Event, obj int64) int {
	m.Lock()
	defer m.Unlock()

	woken := 0

	for _, tid := range slices.Sorted(maps.Keys(m.threads)) {
		t := m.threads[tid]
		if t.wait == nil || t.wait.ev != ev || t.wait.obj != obj {
			continue
		}

		if m.wakeLocked(t) {
			woken++
		}
	}

	return woken
}

// WakeThread readies the thread if it is waiting for the event, regardless of
// the object it waits on.
func (m *Manager) WakeThread(tid schema.Tid, ev schema.Event) bool {
	m.Lock()
	defer m.Unlock()

	t, ok := m.threads[tid]
	if !ok || t.wait == nil || t.wait.ev != ev {
		return false
	}

	return m.wakeLocked(t)
}

// WakeAll readies every blocked thread, whatever it waits for.
func (m *Manager) WakeAll() error {
	m.Lock()
	defer m.Unlock()

	for _, t := range m.threads {
		t.wait = nil
	}

	if err := m.sched.UnblockAll(); err != nil {
		return fmt.Errorf("(proc-wakeall) %w", err)
	}

	m.poke()

	return nil
}

func (m *Manager) wakeLocked(t *Thread) bool {
	if err := m.sched.SetReady(t.Thread); err != nil {
		slog.Error("Failed to wake thread.",
			"tid", t.Tid,
			"err", err,
		)

		return false
	}

	t.wait = nil
	m.poke()

	return true
}

// SendSignal marks a signal as pending for the thread. A thread blocked in an
// interruptible wait is woken.
func (m *Manager) SendSignal(tid schema.Tid) error {
	m.Lock()
	defer m.Unlock()

	t, ok := m.threads[tid]
	if !ok {
		return fmt.Errorf("(proc-signal) %w: tid %d", ErrNoThread, tid)
	}

	t.signal = true

	if t.wait != nil && t.wait.allowSigs {
		m.wakeLocked(t)
	}

	return nil
}

// HasSignalFor returns whether a signal is pending for the thread.
func (m *Manager) HasSignalFor(tid schema.Tid) bool {
	m.Lock()
	defer m.Unlock()

	t, ok := m.threads[tid]

	return ok && t.signal
}

// AckSignal clears the pending signal of the thread.
func (m *Manager) AckSignal(tid schema.Tid) {
	m.Lock()
	defer m.Unlock()

	if t, ok := m.threads[tid]; ok {
		t.signal = false
	}
}

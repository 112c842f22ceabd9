// Package sched implements the scheduler of the kernel core. It is the sole
// authority for run-state transitions: every [Thread] is either running, in
// the FIFO ready queue, in the blocked set, or (when new) in neither.
package sched

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/desertwitch/kcore/internal/queue"
	"github.com/desertwitch/kcore/internal/schema"
)

// Scheduler holds the ready queue and the blocked set. All operations are
// serialized by a single coarse lock, standing in for the interrupt-disabled
// region of a uniprocessor kernel.
type Scheduler struct {
	sync.Mutex
	ready   *queue.FixedQueue[*Thread]
	blocked []*Thread
	running *Thread
}

// Snapshot is a point-in-time copy of the scheduler's bookkeeping.
type Snapshot struct {
	Running  schema.Tid
	Ready    []schema.Tid
	Blocked  []schema.Tid
	Capacity int
	Free     int
}

// NewScheduler returns a pointer to a new [Scheduler] whose ready queue can
// hold up to maxThreads threads.
func NewScheduler(maxThreads int) *Scheduler {
	return &Scheduler{
		ready: queue.NewFixedQueue[*Thread](maxThreads),
	}
}

// State returns the current run-state of the thread.
func (s *Scheduler) State(t *Thread) State {
	s.Lock()
	defer s.Unlock()

	return t.state
}

// Running returns the thread that was last promoted to running, or nil.
func (s *Scheduler) Running() *Thread {
	s.Lock()
	defer s.Unlock()

	return s.running
}

// SetRunning promotes the thread to running, taking it out of whichever
// queue its current state implies.
func (s *Scheduler) SetRunning(t *Thread) {
	assertThread(t)

	s.Lock()
	defer s.Unlock()

	s.setRunningLocked(t)
}

// SetReady moves the thread to the tail of the ready queue. An exhausted
// ready queue is reported as [ErrReadyQueueFull], leaving the thread as it
// was.
func (s *Scheduler) SetReady(t *Thread) error {
	assertThread(t)

	s.Lock()
	defer s.Unlock()

	if err := s.setReadyLocked(t); err != nil {
		return fmt.Errorf("(sched-ready) %w", err)
	}

	return nil
}

// SetBlocked moves the thread into the blocked set.
func (s *Scheduler) SetBlocked(t *Thread) {
	assertThread(t)

	s.Lock()
	defer s.Unlock()

	switch t.state {
	case StateBlocked:
		return
	case StateReady:
		s.ready.Remove(t)
	case StateRunning, StateNew:
	default:
		invalidState(t)
	}

	t.state = StateBlocked
	s.blocked = append(s.blocked, t)
}

// UnblockAll moves every blocked thread to the ready queue, in the order they
// were blocked. Threads that do not fit into the ready queue stay blocked and
// an error is returned.
func (s *Scheduler) UnblockAll() error {
	s.Lock()
	defer s.Unlock()

	for len(s.blocked) > 0 {
		t := s.blocked[0]

		if err := s.ready.Enqueue(t); err != nil {
			logExhausted(t, err)

			return fmt.Errorf("(sched-unblockall) %w: %w", ErrReadyQueueFull, err)
		}

		t.state = StateReady
		s.blocked = s.blocked[1:]
	}

	s.blocked = nil

	return nil
}

// DequeueReady pops the oldest thread of the ready queue, or returns nil if
// the ready queue is empty.
func (s *Scheduler) DequeueReady() *Thread {
	s.Lock()
	defer s.Unlock()

	t, _ := s.ready.Dequeue()

	return t
}

// RemoveProc takes the thread out of the scheduler's bookkeeping because it
// is being destroyed. Its state is left as it is.
func (s *Scheduler) RemoveProc(t *Thread) {
	assertThread(t)

	s.Lock()
	defer s.Unlock()

	switch t.state {
	case StateReady:
		s.ready.Remove(t)
	case StateBlocked:
		s.removeBlocked(t)
	}

	if s.running == t {
		s.running = nil
	}
}

// Perform is the scheduling decision point. The running thread (if it is
// still running) is put back at the tail of the ready queue and the oldest
// ready thread is promoted to running. If no thread is ready, nil is returned
// and the caller has to substitute an idle task.
func (s *Scheduler) Perform() (*Thread, error) {
	s.Lock()
	defer s.Unlock()

	if cur := s.running; cur != nil && cur.state == StateRunning {
		if err := s.setReadyLocked(cur); err != nil {
			return nil, fmt.Errorf("(sched-perform) %w", err)
		}
	}
	s.running = nil

	next, ok := s.ready.Dequeue()
	if !ok {
		return nil, nil
	}

	next.state = StateRunning
	s.running = next

	return next, nil
}

// Snapshot returns a copy of the scheduler's current bookkeeping.
func (s *Scheduler) Snapshot() Snapshot {
	s.Lock()
	defer s.Unlock()

	snap := Snapshot{
		Running:  schema.InvalidTid,
		Capacity: s.ready.Cap(),
		Free:     s.ready.Cap() - s.ready.Len(),
	}

	if s.running != nil {
		snap.Running = s.running.Tid
	}

	for _, t := range s.ready.Items() {
		snap.Ready = append(snap.Ready, t.Tid)
	}

	for _, t := range s.blocked {
		snap.Blocked = append(snap.Blocked, t.Tid)
	}

	return snap
}

func (s *Scheduler) setRunningLocked(t *Thread) {
	switch t.state {
	case StateRunning:
		return
	case StateReady:
		s.ready.Remove(t)
	case StateBlocked:
		s.removeBlocked(t)
	case StateNew:
	default:
		invalidState(t)
	}

	t.state = StateRunning
	s.running = t
}

func (s *Scheduler) setReadyLocked(t *Thread) error {
	switch t.state {
	case StateReady:
		return nil
	case StateRunning, StateBlocked, StateNew:
	default:
		invalidState(t)
	}

	if s.ready.Full() {
		err := fmt.Errorf("%w (capacity %d)", ErrReadyQueueFull, s.ready.Cap())
		logExhausted(t, err)

		return err
	}

	if t.state == StateBlocked {
		s.removeBlocked(t)
	}

	if err := s.ready.Enqueue(t); err != nil {
		return errors.Join(ErrReadyQueueFull, err)
	}
	t.state = StateReady

	return nil
}

func (s *Scheduler) removeBlocked(t *Thread) {
	if idx := slices.Index(s.blocked, t); idx >= 0 {
		s.blocked = slices.Delete(s.blocked, idx, idx+1)
	}
}

func logExhausted(t *Thread, err error) {
	slog.Error("Ready queue exhausted: maximum thread count is misconfigured.",
		"thread", t.String(),
		"err", err,
	)
}

func assertThread(t *Thread) {
	if t == nil {
		panic("sched: thread is nil")
	}
}

func invalidState(t *Thread) {
	panic(fmt.Sprintf("sched: thread %s has invalid state %s", t, t.state))
}

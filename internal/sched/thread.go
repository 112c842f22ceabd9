package sched

import (
	"fmt"

	"github.com/desertwitch/kcore/internal/schema"
)

// State is the run-state of a [Thread].
type State int

const (
	// StateNew is the state of a thread that was never handed to the
	// scheduler.
	StateNew State = iota

	// StateRunning is the state of the thread currently owning the CPU.
	StateRunning

	// StateReady is the state of threads waiting in the ready queue.
	StateReady

	// StateBlocked is the state of threads waiting for an event.
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	case StateBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("invalid(%d)", int(s))
	}
}

// Thread is a schedulable unit. Its run-state is only ever changed by the
// [Scheduler] and read under the scheduler's lock.
type Thread struct {
	Tid schema.Tid
	Pid schema.Pid

	state State
}

// NewThread returns a pointer to a new [Thread] in [StateNew].
func NewThread(pid schema.Pid, tid schema.Tid) *Thread {
	return &Thread{
		Tid:   tid,
		Pid:   pid,
		state: StateNew,
	}
}

func (t *Thread) String() string {
	return fmt.Sprintf("%d:%d", t.Pid, t.Tid)
}

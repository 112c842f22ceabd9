// Package proc implements the process-management collaborator of the kernel
// core: a registry of processes and threads, the event wait/wake primitive,
// pending-signal flags and a uniprocessor dispatcher that hands the CPU to
// whichever thread [sched.Scheduler.Perform] selects.
//
// Threads are goroutines. A thread only executes kernel code while it owns
// the CPU, i.e. between receiving from its resume channel and giving the CPU
// back with [Manager.Yield], [Manager.Wait] or by returning.
package proc

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/desertwitch/kcore/internal/sched"
	"github.com/desertwitch/kcore/internal/schema"
)

// ThreadFunc is the body of a thread. It runs while the thread owns the CPU.
type ThreadFunc func(ctx context.Context, t *Thread) error

// Process is a container of threads sharing credentials.
type Process struct {
	Pid   schema.Pid
	Name  string
	Creds schema.Credentials
}

// Thread is a schedulable [sched.Thread] backed by a goroutine.
type Thread struct {
	*sched.Thread

	resume chan struct{}
	wait   *waitEntry
	signal bool
}

type waitEntry struct {
	ev        schema.Event
	obj       int64
	allowSigs bool
}

// ThreadInfo is a point-in-time description of a thread.
type ThreadInfo struct {
	Tid       schema.Tid
	Pid       schema.Pid
	State     sched.State
	WaitingOn schema.Event
	Signal    bool
}

// Manager is the principal implementation of the process-management
// collaborator.
type Manager struct {
	sync.Mutex
	sched    *sched.Scheduler
	procs    map[schema.Pid]*Process
	threads  map[schema.Tid]*Thread
	nextPid  schema.Pid
	nextTid  schema.Tid
	released chan struct{}
	kick     chan struct{}
	exitFns  []func(tid schema.Tid)
}

// NewManager returns a pointer to a new [Manager] scheduling its threads
// through the given [sched.Scheduler]. The kernel process is registered with
// pid [schema.KernelPid], it carries no credentials of its own.
func NewManager(scheduler *sched.Scheduler) *Manager {
	m := &Manager{
		sched:    scheduler,
		procs:    make(map[schema.Pid]*Process),
		threads:  make(map[schema.Tid]*Thread),
		nextPid:  schema.KernelPid + 1,
		nextTid:  1,
		released: make(chan struct{}),
		kick:     make(chan struct{}, 1),
	}

	m.procs[schema.KernelPid] = &Process{
		Pid:  schema.KernelPid,
		Name: "kernel",
	}

	return m
}

// Scheduler returns the [sched.Scheduler] the manager dispatches with.
func (m *Manager) Scheduler() *sched.Scheduler {
	return m.sched
}

// NewProcess registers a new process with the given credentials.
func (m *Manager) NewProcess(name string, creds schema.Credentials) *Process {
	m.Lock()
	defer m.Unlock()

	p := &Process{
		Pid:   m.nextPid,
		Name:  name,
		Creds: creds,
	}
	m.nextPid++
	m.procs[p.Pid] = p

	return p
}

// Credentials returns the credentials of the process. The kernel process and
// unknown pids report false.
func (m *Manager) Credentials(pid schema.Pid) (schema.Credentials, bool) {
	m.Lock()
	defer m.Unlock()

	if pid == schema.KernelPid {
		return schema.Credentials{}, false
	}

	p, ok := m.procs[pid]
	if !ok {
		return schema.Credentials{}, false
	}

	return p.Creds, true
}

// OnThreadExit registers a function that is called whenever a thread
// terminated, after it was removed from the registry and the scheduler.
func (m *Manager) OnThreadExit(fn func(tid schema.Tid)) {
	m.Lock()
	defer m.Unlock()

	m.exitFns = append(m.exitFns, fn)
}

// Spawn creates a new thread in the process and makes it ready. The thread
// body starts executing once the dispatcher hands it the CPU.
func (m *Manager) Spawn(ctx context.Context, pid schema.Pid, fn ThreadFunc) (*Thread, error) {
	m.Lock()

	if _, ok := m.procs[pid]; !ok {
		m.Unlock()

		return nil, fmt.Errorf("(proc-spawn) %w: pid %d", ErrNoProcess, pid)
	}

	t := &Thread{
		Thread: sched.NewThread(pid, m.nextTid),
		resume: make(chan struct{}),
	}

	if err := m.sched.SetReady(t.Thread); err != nil {
		m.Unlock()

		return nil, fmt.Errorf("(proc-spawn) %w", err)
	}

	m.nextTid++
	m.threads[t.Tid] = t
	m.Unlock()

	m.poke()

	go m.run(ctx, t, fn)

	return t, nil
}

// Exists returns whether the thread is alive.
func (m *Manager) Exists(tid schema.Tid) bool {
	m.Lock()
	defer m.Unlock()

	_, ok := m.threads[tid]

	return ok
}

// Threads returns a description of every living thread, ordered by tid.
func (m *Manager) Threads() []ThreadInfo {
	m.Lock()
	defer m.Unlock()

	infos := make([]ThreadInfo, 0, len(m.threads))

	for _, tid := range slices.Sorted(maps.Keys(m.threads)) {
		t := m.threads[tid]

		info := ThreadInfo{
			Tid:    t.Tid,
			Pid:    t.Pid,
			State:  m.sched.State(t.Thread),
			Signal: t.signal,
		}
		if t.wait != nil {
			info.WaitingOn = t.wait.ev
		}

		infos = append(infos, info)
	}

	return infos
}

func (m *Manager) run(ctx context.Context, t *Thread, fn ThreadFunc) {
	select {
	case <-t.resume:
	case <-ctx.Done():
		m.exit(ctx, t, false)

		return
	}

	if err := fn(ctx, t); err != nil {
		slog.Warn("Thread terminated with error.",
			"tid", t.Tid,
			"pid", t.Pid,
			"err", err,
		)
	}

	m.exit(ctx, t, true)
}

func (m *Manager) exit(ctx context.Context, t *Thread, onCPU bool) {
	m.Lock()
	delete(m.threads, t.Tid)
	t.wait = nil
	m.sched.RemoveProc(t.Thread)
	exitFns := slices.Clone(m.exitFns)
	m.Unlock()

	for _, fn := range exitFns {
		fn(t.Tid)
	}

	if onCPU {
		m.release(ctx)
	}
}

// release gives the CPU back to the dispatcher.
func (m *Manager) release(ctx context.Context) {
	select {
	case m.released <- struct{}{}:
	case <-ctx.Done():
	}
}

// poke wakes an idling dispatcher.
func (m *Manager) poke() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

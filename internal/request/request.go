// Package request implements the table of pending driver requests. A thread
// issuing I/O on a driver-backed node takes a slot, posts a message to the
// driver and blocks in [Table.WaitForReply]. The driver's asynchronous reply
// is routed by message kind to a registered [HandlerFunc], which finishes the
// request and wakes the waiting thread.
package request

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/desertwitch/kcore/internal/schema"
)

const (
	// DefaultRequestCount is the default number of request slots.
	DefaultRequestCount = 1024

	// DefaultHandlerCount is the default number of message kinds.
	DefaultHandlerCount = 32
)

// State is the state of a [Request].
type State int

const (
	// StateWaiting is the state of a request without reply.
	StateWaiting State = iota

	// StateFinished is the state of a request whose reply arrived.
	StateFinished
)

// MsgID identifies the kind of a driver reply message.
type MsgID int

// HandlerFunc interprets a driver reply for the given thread and object.
type HandlerFunc func(tid schema.Tid, obj int64, data []byte)

type threadProvider interface {
	Exists(tid schema.Tid) bool
}

type signalProvider interface {
	HasSignalFor(tid schema.Tid) bool
}

type eventProvider interface {
	Wait(ctx context.Context, tid schema.Tid, ev schema.Event, obj int64, allowSigs bool, done func() bool) error
	WakeThread(tid schema.Tid, ev schema.Event) bool
}

// Request is a slot of the [Table]. A slot with [schema.InvalidTid] as owner
// is free. Fields are written under the table's lock only.
type Request struct {
	Tid    schema.Tid
	State  State
	Object int64

	Val1  int64
	Val2  int64
	Count int
	Err   error

	// Data is the target buffer of the reply, Size its usable length.
	Data []byte
	Size int

	// Frames and FrameOffset replace Data for read requests that scatter
	// the reply over a list of frames.
	Frames      [][]byte
	FrameOffset int

	aborted bool
}

// Pending describes a live request slot.
type Pending struct {
	Tid    schema.Tid
	Object int64
	State  State
}

// Stats describes the utilization of the [Table].
type Stats struct {
	Capacity int
	InUse    int
	Waiting  int
	Handlers int
}

// Table is the principal implementation of the request table.
type Table struct {
	sync.Mutex
	requests []Request
	handlers []HandlerFunc

	threads threadProvider
	signals signalProvider
	events  eventProvider
}

// NewTable returns a pointer to a new [Table] with the given number of
// request slots and message kinds.
func NewTable(requestCount, handlerCount int, threads threadProvider, signals signalProvider, events eventProvider) *Table {
	t := &Table{
		requests: make([]Request, max(requestCount, 0)),
		handlers: make([]HandlerFunc, max(handlerCount, 0)),
		threads:  threads,
		signals:  signals,
		events:   events,
	}

	for i := range t.requests {
		t.requests[i].Tid = schema.InvalidTid
	}

	return t
}

// GetRequest takes a free slot for the thread, waiting for a reply that is
// copied into buf.
func (t *Table) GetRequest(tid schema.Tid, obj int64, buf []byte) (*Request, error) {
	req, err := t.getRequest(tid, obj, buf, len(buf), nil, 0)
	if err != nil {
		return nil, fmt.Errorf("(request-get) %w", err)
	}

	return req, nil
}

// GetReadRequest takes a free slot for the thread, waiting for up to bufSize
// bytes that are scattered over the frames, starting at offset within the
// first frame.
func (t *Table) GetReadRequest(tid schema.Tid, obj int64, bufSize int, frames [][]byte, offset int) (*Request, error) {
	req, err := t.getRequest(tid, obj, nil, bufSize, frames, offset)
	if err != nil {
		return nil, fmt.Errorf("(request-getread) %w", err)
	}

	return req, nil
}

func (t *Table) getRequest(tid schema.Tid, obj int64, buf []byte, size int, frames [][]byte, offset int) (*Request, error) {
	if tid == schema.InvalidTid {
		return nil, ErrInvalidOwner
	}

	t.Lock()
	defer t.Unlock()

	free := -1

	for i := range t.requests {
		switch t.requests[i].Tid {
		case tid:
			return nil, fmt.Errorf("%w: tid %d", ErrRequestExists, tid)
		case schema.InvalidTid:
			if free < 0 {
				free = i
			}
		}
	}

	if free < 0 {
		return nil, fmt.Errorf("%w (capacity %d)", ErrTableFull, len(t.requests))
	}

	req := &t.requests[free]
	*req = Request{
		Tid:         tid,
		State:       StateWaiting,
		Object:      obj,
		Data:        buf,
		Size:        size,
		Frames:      frames,
		FrameOffset: offset,
	}

	return req, nil
}

// WaitForReply blocks the owning thread until the reply arrived. A request
// that is woken without being finished was either interrupted by a signal
// (only if allowSigs is set) or its driver died. The error is also stored in
// the request.
func (t *Table) WaitForReply(ctx context.Context, req *Request, allowSigs bool) error {
	t.Lock()
	tid, obj := req.Tid, req.Object
	t.Unlock()

	finished := func() bool {
		t.Lock()
		defer t.Unlock()

		return req.State == StateFinished
	}

	settled := func() bool {
		t.Lock()
		defer t.Unlock()

		return req.State == StateFinished || req.aborted
	}

	if err := t.events.Wait(ctx, tid, schema.EvReqReply, obj, allowSigs, settled); err != nil {
		return fmt.Errorf("(request-wait) %w", err)
	}

	if finished() {
		return nil
	}

	cause := ErrDriverDied
	if allowSigs && t.signals.HasSignalFor(tid) {
		cause = ErrInterrupted
	}

	t.Lock()
	req.Err = cause
	t.Unlock()

	return fmt.Errorf("(request-wait) %w", cause)
}

// Finish fills the request through fn, marks it finished and wakes its owner.
// It reports false and leaves the request alone unless the slot still belongs
// to the given owner and object, as it may have been freed or handed to
// another thread in the meantime.
func (t *Table) Finish(req *Request, tid schema.Tid, obj int64, fn func(req *Request)) bool {
	t.Lock()

	if tid == schema.InvalidTid || req.Tid != tid || req.Object != obj {
		t.Unlock()

		return false
	}

	if fn != nil {
		fn(req)
	}
	req.State = StateFinished
	t.Unlock()

	t.events.WakeThread(tid, schema.EvReqReply)

	return true
}

// Abort marks every waiting request on the object as abandoned by its driver
// and wakes the owners, which then observe [ErrDriverDied]. It returns the
// number of aborted requests.
func (t *Table) Abort(obj int64) int {
	t.Lock()

	var owners []schema.Tid

	for i := range t.requests {
		req := &t.requests[i]
		if req.Tid == schema.InvalidTid || req.Object != obj || req.State != StateWaiting {
			continue
		}

		req.aborted = true
		owners = append(owners, req.Tid)
	}
	t.Unlock()

	for _, tid := range owners {
		t.events.WakeThread(tid, schema.EvReqReply)
	}

	return len(owners)
}

// GetRequestByTid returns the live request of the thread. If the thread no
// longer exists, its orphaned request is freed and nil is returned.
func (t *Table) GetRequestByTid(tid schema.Tid) *Request {
	if tid == schema.InvalidTid {
		return nil
	}

	idx := t.indexOf(tid)
	if idx < 0 {
		return nil
	}

	if !t.threads.Exists(tid) {
		t.Lock()
		if t.requests[idx].Tid == tid {
			t.requests[idx].Tid = schema.InvalidTid
		}
		t.Unlock()

		slog.Warn("Reclaimed request of terminated thread.",
			"tid", tid,
		)

		return nil
	}

	return &t.requests[idx]
}

func (t *Table) indexOf(tid schema.Tid) int {
	t.Lock()
	defer t.Unlock()

	for i := range t.requests {
		if t.requests[i].Tid == tid {
			return i
		}
	}

	return -1
}

// RemRequest frees the slot of the request.
func (t *Table) RemRequest(req *Request) {
	t.Lock()
	defer t.Unlock()

	req.Tid = schema.InvalidTid
	req.Data = nil
	req.Frames = nil
}

// Result returns the outcome of a request under the table's lock.
func (t *Table) Result(req *Request) (int, int64, int64, error) {
	t.Lock()
	defer t.Unlock()

	return req.Count, req.Val1, req.Val2, req.Err
}

// SetHandler registers the handler for a message kind. A kind can only have
// one handler.
func (t *Table) SetHandler(id MsgID, fn HandlerFunc) error {
	t.Lock()
	defer t.Unlock()

	if id < 0 || int(id) >= len(t.handlers) || fn == nil {
		return fmt.Errorf("(request-sethandler) %w: id %d", ErrInvalidHandler, id)
	}

	if t.handlers[id] != nil {
		return fmt.Errorf("(request-sethandler) %w: id %d", ErrHandlerExists, id)
	}

	t.handlers[id] = fn

	return nil
}

// SendMsg delivers a driver reply to the handler of its kind. Messages
// without handler are dropped.
func (t *Table) SendMsg(id MsgID, obj int64, tid schema.Tid, data []byte) bool {
	t.Lock()
	var fn HandlerFunc
	if id >= 0 && int(id) < len(t.handlers) {
		fn = t.handlers[id]
	}
	t.Unlock()

	if fn == nil {
		slog.Warn("Dropped driver message without handler.",
			"msg", id,
			"tid", tid,
		)

		return false
	}

	fn(tid, obj, data)

	return true
}

// Pending returns the live requests in slot order.
func (t *Table) Pending() []Pending {
	t.Lock()
	defer t.Unlock()

	var pending []Pending

	for i := range t.requests {
		req := &t.requests[i]
		if req.Tid == schema.InvalidTid {
			continue
		}

		pending = append(pending, Pending{
			Tid:    req.Tid,
			Object: req.Object,
			State:  req.State,
		})
	}

	return pending
}

// Stats returns the current utilization of the table.
func (t *Table) Stats() Stats {
	t.Lock()
	defer t.Unlock()

	stats := Stats{Capacity: len(t.requests)}

	for i := range t.requests {
		if t.requests[i].Tid == schema.InvalidTid {
			continue
		}

		stats.InUse++
		if t.requests[i].State == StateWaiting {
			stats.Waiting++
		}
	}

	for _, fn := range t.handlers {
		if fn != nil {
			stats.Handlers++
		}
	}

	return stats
}

// CopyIn copies reply data into the request's target, either its buffer or
// its frames, and returns the number of bytes copied. It must be called from
// within [Table.Finish].
func (r *Request) CopyIn(data []byte) int {
	if r.Frames == nil {
		return copy(r.Data[:min(r.Size, len(r.Data))], data)
	}

	data = data[:min(len(data), r.Size)]
	copied := 0
	offset := r.FrameOffset

	for _, frame := range r.Frames {
		if len(data) == 0 {
			break
		}

		if offset >= len(frame) {
			offset -= len(frame)

			continue
		}

		n := copy(frame[offset:], data)
		data = data[n:]
		copied += n
		offset = 0
	}

	return copied
}

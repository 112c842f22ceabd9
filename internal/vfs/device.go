package vfs

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"

	"github.com/desertwitch/kcore/internal/request"
	"github.com/desertwitch/kcore/internal/schema"
)

// Reply kinds a driver answers device messages with.
const (
	MsgReadReply request.MsgID = iota + 1
	MsgWriteReply
	MsgErrorReply
)

// Op is the operation a device message asks a driver for.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Message is posted to the driver of a device node for every read or write.
// The driver answers through the request table with one of the reply kinds,
// quoting Node and Tid.
type Message struct {
	Op     Op
	Node   NodeNo
	Tid    schema.Tid
	Offset int64
	Count  int
	Data   []byte
}

// Driver receives the messages of the device nodes it serves.
type Driver interface {
	Post(ctx context.Context, msg Message) error
}

// device is a node served by a driver through the request table.
type device struct {
	requests requestProvider
	driver   Driver
}

func (d *device) Read(ctx context.Context, tid schema.Tid, no NodeNo, buf []byte, offset int64) (int, error) {
	req, err := d.requests.GetRequest(tid, int64(no), buf)
	if err != nil {
		return 0, err
	}
	defer d.requests.RemRequest(req)

	return d.transfer(ctx, req, Message{
		Op:     OpRead,
		Node:   no,
		Tid:    tid,
		Offset: offset,
		Count:  len(buf),
	})
}

func (d *device) ReadFrames(ctx context.Context, tid schema.Tid, no NodeNo, frames [][]byte, offset int, count int) (int, error) {
	req, err := d.requests.GetReadRequest(tid, int64(no), count, frames, offset)
	if err != nil {
		return 0, err
	}
	defer d.requests.RemRequest(req)

	return d.transfer(ctx, req, Message{
		Op:    OpRead,
		Node:  no,
		Tid:   tid,
		Count: count,
	})
}

func (d *device) Write(ctx context.Context, tid schema.Tid, no NodeNo, data []byte, offset int64) (int, error) {
	req, err := d.requests.GetRequest(tid, int64(no), nil)
	if err != nil {
		return 0, err
	}
	defer d.requests.RemRequest(req)

	return d.transfer(ctx, req, Message{
		Op:     OpWrite,
		Node:   no,
		Tid:    tid,
		Offset: offset,
		Count:  len(data),
		Data:   slices.Clone(data),
	})
}

func (d *device) transfer(ctx context.Context, req *request.Request, msg Message) (int, error) {
	if err := d.driver.Post(ctx, msg); err != nil {
		return 0, err
	}

	if err := d.requests.WaitForReply(ctx, req, true); err != nil {
		return 0, err
	}

	count, _, _, err := d.requests.Result(req)

	return count, err
}

// Destroy wakes every thread waiting on the device, they observe their
// driver as dead.
func (d *device) Destroy(n *Node) {
	if aborted := d.requests.Abort(int64(n.no)); aborted > 0 {
		slog.Warn("Aborted requests of destroyed device.",
			"node", n.no,
			"name", n.name,
			"requests", aborted,
		)
	}
}

// CreateDevice creates a character device below the parent that is served by
// the driver.
func (h *Handler) CreateDevice(pid schema.Pid, parent NodeNo, name string, driver Driver) (NodeNo, error) {
	if driver == nil {
		return NoNode, fmt.Errorf("(vfs-createdevice) %w: no driver", ErrInvalidArgument)
	}

	impl := &device{requests: h.requests, driver: driver}

	no, err := h.createChild(pid, parent, name, schema.ModeCharDev, schema.DefaultDevPerms, impl)
	if err != nil {
		return NoNode, fmt.Errorf("(vfs-createdevice) %w", err)
	}

	return no, nil
}

// EncodeCount encodes the byte count of a [MsgWriteReply].
func EncodeCount(n int) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(n))
}

func (h *Handler) registerReplyHandlers() error {
	for _, r := range []struct {
		id request.MsgID
		fn request.HandlerFunc
	}{
		{MsgReadReply, h.onReadReply},
		{MsgWriteReply, h.onWriteReply},
		{MsgErrorReply, h.onErrorReply},
	} {
		if err := h.requests.SetHandler(r.id, r.fn); err != nil {
			return err
		}
	}

	return nil
}

func (h *Handler) onReadReply(tid schema.Tid, obj int64, data []byte) {
	h.finish(tid, obj, func(req *request.Request) {
		req.Count = req.CopyIn(data)
	})
}

func (h *Handler) onWriteReply(tid schema.Tid, obj int64, data []byte) {
	h.finish(tid, obj, func(req *request.Request) {
		if len(data) < 8 {
			req.Err = fmt.Errorf("%w: malformed write reply", ErrDevice)

			return
		}

		req.Count = int(binary.LittleEndian.Uint64(data))
	})
}

func (h *Handler) onErrorReply(tid schema.Tid, obj int64, data []byte) {
	h.finish(tid, obj, func(req *request.Request) {
		req.Err = fmt.Errorf("%w: %s", ErrDevice, data)
	})
}

func (h *Handler) finish(tid schema.Tid, obj int64, fn func(req *request.Request)) {
	req := h.requests.GetRequestByTid(tid)
	if req == nil || !h.requests.Finish(req, tid, obj, fn) {
		slog.Warn("Dropped driver reply without matching request.",
			"tid", tid,
			"node", obj,
		)
	}
}

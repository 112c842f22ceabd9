// Package drivers implements simulated driver processes. Each [Driver] serves
// one device node from its own goroutine: it receives the node's messages,
// lets its [Device] compute the answer and delivers the reply through the
// request table, just like a user-mode driver answering the kernel.
package drivers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/desertwitch/kcore/internal/request"
	"github.com/desertwitch/kcore/internal/schema"
	"github.com/desertwitch/kcore/internal/vfs"
)

// DefaultBacklog is the default number of messages a driver buffers.
const DefaultBacklog = 16

// Device computes the replies of a driver. Handle is only ever called from
// the driver's goroutine.
type Device interface {
	Name() string
	Handle(msg vfs.Message) (request.MsgID, []byte)
}

type replyProvider interface {
	SendMsg(id request.MsgID, obj int64, tid schema.Tid, data []byte) bool
}

// Driver is a [vfs.Driver] answering the messages of its device node.
type Driver struct {
	dev     Device
	replies replyProvider
	inbox   chan vfs.Message
	stopped chan struct{}
	handled atomic.Uint64
}

// NewDriver returns a pointer to a new [Driver] for the device, replying
// through the request table.
func NewDriver(dev Device, replies replyProvider, backlog int) *Driver {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	return &Driver{
		dev:     dev,
		replies: replies,
		inbox:   make(chan vfs.Message, backlog),
		stopped: make(chan struct{}),
	}
}

// Name returns the name of the served device.
func (d *Driver) Name() string {
	return d.dev.Name()
}

// Handled returns the number of messages answered so far.
func (d *Driver) Handled() uint64 {
	return d.handled.Load()
}

// Post queues a message for the driver.
func (d *Driver) Post(ctx context.Context, msg vfs.Message) error {
	select {
	case <-d.stopped:
		return fmt.Errorf("(drivers-post) %w: %s", ErrDriverStopped, d.dev.Name())
	default:
	}

	select {
	case d.inbox <- msg:
		return nil
	case <-d.stopped:
		return fmt.Errorf("(drivers-post) %w: %s", ErrDriverStopped, d.dev.Name())
	case <-ctx.Done():
		return fmt.Errorf("(drivers-post) %w", ctx.Err())
	}
}

// Run answers messages until the context is cancelled. A driver cannot be
// run again once it stopped.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.stopped)

	slog.Debug("Driver started.", "device", d.dev.Name())

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Driver stopped.",
				"device", d.dev.Name(),
				"handled", d.handled.Load(),
			)

			return nil
		case msg := <-d.inbox:
			id, data := d.dev.Handle(msg)
			d.handled.Add(1)

			if !d.replies.SendMsg(id, int64(msg.Node), msg.Tid, data) {
				slog.Warn("Driver reply was not delivered.",
					"device", d.dev.Name(),
					"tid", msg.Tid,
				)
			}
		}
	}
}

// Package vfs implements the virtual filesystem node graph: a growable store
// of node slots addressed by stable node numbers, the tree of directories,
// files, links and driver-backed devices built on top of it, and the path
// resolution walking that tree.
//
// Every node carries its own lock. A node pointer must never be trusted
// without holding the node's lock and re-checking that it is still alive,
// which [Handler.Request] does in one step. The child list of a directory
// and the sibling links of its children are protected by the directory's
// lock. Destruction locks a node before its parent, so walkers never hold a
// child's lock while acquiring the lock of its parent.
package vfs

import (
	"context"
	"fmt"

	"github.com/desertwitch/kcore/internal/request"
	"github.com/desertwitch/kcore/internal/schema"
)

const (
	// MaxNameLen is the maximum length of a node name.
	MaxNameLen = 59

	// MaxPathLen is the maximum length of a path returned by
	// [Handler.GetPath].
	MaxPathLen = 255

	// MaxFileSize is the maximum size of an in-memory file.
	MaxFileSize = 1 << 24

	// DefaultNodeGrow is the default number of slots the node store grows by.
	DefaultNodeGrow = 64

	// DefaultMaxNodes is the default upper bound of node slots.
	DefaultMaxNodes = 4096

	// RootNo is the node number of the root directory.
	RootNo NodeNo = 0

	// NoNode marks the absence of a node.
	NoNode NodeNo = -1

	// DeviceNo is the device number reported for virtual nodes.
	DeviceNo = 0xFF

	// BlockSize is the block size reported for virtual nodes.
	BlockSize = 512

	destroyedPath = "<destroyed>"
)

// NodeNo is the stable identifier of a node, equal to its slot index.
type NodeNo int64

// Flag modifies the behavior of [Handler.ResolvePath].
type Flag uint8

const (
	// FlagCreate creates a missing file in an existing directory.
	FlagCreate Flag = 1 << iota

	// FlagNoLinkRes returns links themselves instead of their targets.
	FlagNoLinkRes
)

// Access is a set of access bits checked against a node's permissions.
type Access uint8

const (
	AccessExec  Access = 1
	AccessWrite Access = 2
	AccessRead  Access = 4
)

// Reader is implemented by node kinds supporting reads. The node is not
// locked when Read is called.
type Reader interface {
	Read(ctx context.Context, tid schema.Tid, no NodeNo, buf []byte, offset int64) (int, error)
}

// Writer is implemented by node kinds supporting writes. The node is not
// locked when Write is called.
type Writer interface {
	Write(ctx context.Context, tid schema.Tid, no NodeNo, data []byte, offset int64) (int, error)
}

// FrameReader is implemented by node kinds that can scatter a read over a
// list of frames.
type FrameReader interface {
	ReadFrames(ctx context.Context, tid schema.Tid, no NodeNo, frames [][]byte, offset int, count int) (int, error)
}

// Sizer is implemented by node kinds with a size. The node is locked when
// Size is called.
type Sizer interface {
	Size(n *Node) int64
}

// Destroyer is implemented by node kinds that clean up when the last
// reference to their node is dropped. The node and its parent are locked
// when Destroy is called.
type Destroyer interface {
	Destroy(n *Node)
}

type procProvider interface {
	Credentials(pid schema.Pid) (schema.Credentials, bool)
}

type requestProvider interface {
	GetRequest(tid schema.Tid, obj int64, buf []byte) (*request.Request, error)
	GetReadRequest(tid schema.Tid, obj int64, bufSize int, frames [][]byte, offset int) (*request.Request, error)
	WaitForReply(ctx context.Context, req *request.Request, allowSigs bool) error
	Result(req *request.Request) (int, int64, int64, error)
	RemRequest(req *request.Request)
	GetRequestByTid(tid schema.Tid) *request.Request
	Finish(req *request.Request, tid schema.Tid, obj int64, fn func(req *request.Request)) bool
	Abort(obj int64) int
	SetHandler(id request.MsgID, fn request.HandlerFunc) error
}

// Handler is the principal implementation of the VFS.
type Handler struct {
	store    *store
	procs    procProvider
	requests requestProvider
}

// NewHandler returns a pointer to a new [Handler] with an empty root
// directory. The store grows by grow slots at a time, up to maxNodes slots.
// The reply handlers for driver-backed nodes are registered with the request
// table.
func NewHandler(grow int, maxNodes int, procs procProvider, requests requestProvider) (*Handler, error) {
	h := &Handler{
		store:    newStore(grow, maxNodes),
		procs:    procs,
		requests: requests,
	}

	if err := h.registerReplyHandlers(); err != nil {
		return nil, fmt.Errorf("(vfs-new) %w", err)
	}

	if _, err := h.createRoot(); err != nil {
		return nil, fmt.Errorf("(vfs-new) %w", err)
	}

	return h, nil
}

// Stats describes the utilization of the node store.
type Stats struct {
	Slots int
	Free  int
	Max   int
}

// Stats returns the current utilization of the node store.
func (h *Handler) Stats() Stats {
	return h.store.stats()
}

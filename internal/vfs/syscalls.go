package vfs

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertwitch/kcore/internal/schema"
)

// Stat resolves the path and returns the attributes of its node.
func (h *Handler) Stat(pid schema.Pid, path string) (Info, error) {
	no, _, err := h.ResolvePath(pid, path, 0)
	if err != nil {
		return Info{}, fmt.Errorf("(vfs-stat) %w", err)
	}

	info, err := h.GetInfo(no)
	if err != nil {
		return Info{}, fmt.Errorf("(vfs-stat) %w", err)
	}

	return info, nil
}

// Mkdir creates the directory named by the path. Its parent must exist and
// the caller needs write access to it.
func (h *Handler) Mkdir(pid schema.Pid, path string) (NodeNo, error) {
	parent, name, err := h.resolveParent(pid, path)
	if err != nil {
		return NoNode, fmt.Errorf("(vfs-mkdir) %w", err)
	}

	no, err := h.CreateDir(pid, parent, name)
	if err != nil {
		return NoNode, fmt.Errorf("(vfs-mkdir) %w", err)
	}

	return no, nil
}

// Unlink removes the non-directory node named by the path from the tree. A
// link is removed itself, not its target.
func (h *Handler) Unlink(pid schema.Pid, path string) error {
	n, err := h.lookupForRemoval(pid, path)
	if err != nil {
		return fmt.Errorf("(vfs-unlink) %w", err)
	}

	if n.typ.IsDir() {
		h.Release(n)

		return fmt.Errorf("(vfs-unlink) %w: %q", ErrIsDir, path)
	}

	gen := n.gen
	h.Release(n)

	h.doDestroy(n, gen, true)

	return nil
}

// Rmdir removes the empty directory named by the path.
func (h *Handler) Rmdir(pid schema.Pid, path string) error {
	n, err := h.lookupForRemoval(pid, path)
	if err != nil {
		return fmt.Errorf("(vfs-rmdir) %w", err)
	}

	if err := h.IsEmptyDir(n); err != nil {
		h.Release(n)

		return fmt.Errorf("(vfs-rmdir) %w", err)
	}

	gen := n.gen
	h.Release(n)

	h.doDestroy(n, gen, true)

	return nil
}

// lookupForRemoval resolves the path without following a final link and
// returns its locked node, after checking write access to the parent.
func (h *Handler) lookupForRemoval(pid schema.Pid, path string) (*Node, error) {
	parent, name, err := h.resolveParent(pid, path)
	if err != nil {
		return nil, err
	}

	if name == "." || name == ".." {
		return nil, fmt.Errorf("%w: cannot remove %q", ErrInvalidArgument, path)
	}

	no, err := h.FindInDirOf(parent, name)
	if err != nil {
		return nil, err
	}

	if no == NoNode {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}

	return h.Request(no)
}

// resolveParent resolves the directory of the path's last component and
// checks the caller's write access to it.
func (h *Handler) resolveParent(pid schema.Pid, path string) (NodeNo, string, error) {
	name := Basename(path)
	if name == "" || !strings.HasPrefix(path, "/") {
		return NoNode, "", fmt.Errorf("%w: %q", ErrInvalidArgument, path)
	}

	if err := validateName(name); err != nil {
		return NoNode, "", err
	}

	parent, _, err := h.ResolvePath(pid, Dirname(path), 0)
	if err != nil {
		return NoNode, "", err
	}

	err = h.WithNode(parent, func(n *Node) error {
		return h.hasAccess(pid, n, AccessWrite)
	})
	if err != nil {
		return NoNode, "", err
	}

	return parent, name, nil
}

// Read reads from the node at the offset. The caller needs read access.
func (h *Handler) Read(ctx context.Context, pid schema.Pid, tid schema.Tid, no NodeNo, buf []byte, offset int64) (int, error) {
	impl, err := h.implFor(pid, no, AccessRead)
	if err != nil {
		return 0, fmt.Errorf("(vfs-read) %w", err)
	}

	r, ok := impl.(Reader)
	if !ok {
		return 0, fmt.Errorf("(vfs-read) %w: node %d", ErrNotSupported, no)
	}

	n, err := r.Read(ctx, tid, no, buf, offset)
	if err != nil {
		return n, fmt.Errorf("(vfs-read) %w", err)
	}

	return n, nil
}

// ReadFrames reads up to count bytes from the node into the frames, starting
// at offset within the first frame.
func (h *Handler) ReadFrames(ctx context.Context, pid schema.Pid, tid schema.Tid, no NodeNo, frames [][]byte, offset int, count int) (int, error) {
	impl, err := h.implFor(pid, no, AccessRead)
	if err != nil {
		return 0, fmt.Errorf("(vfs-readframes) %w", err)
	}

	r, ok := impl.(FrameReader)
	if !ok {
		return 0, fmt.Errorf("(vfs-readframes) %w: node %d", ErrNotSupported, no)
	}

	n, err := r.ReadFrames(ctx, tid, no, frames, offset, count)
	if err != nil {
		return n, fmt.Errorf("(vfs-readframes) %w", err)
	}

	return n, nil
}

// Write writes to the node at the offset. The caller needs write access.
func (h *Handler) Write(ctx context.Context, pid schema.Pid, tid schema.Tid, no NodeNo, data []byte, offset int64) (int, error) {
	impl, err := h.implFor(pid, no, AccessWrite)
	if err != nil {
		return 0, fmt.Errorf("(vfs-write) %w", err)
	}

	w, ok := impl.(Writer)
	if !ok {
		return 0, fmt.Errorf("(vfs-write) %w: node %d", ErrNotSupported, no)
	}

	n, err := w.Write(ctx, tid, no, data, offset)
	if err != nil {
		return n, fmt.Errorf("(vfs-write) %w", err)
	}

	return n, nil
}

// implFor checks the access to the node and returns its kind implementation.
// The node is not locked while the implementation is used.
func (h *Handler) implFor(pid schema.Pid, no NodeNo, acc Access) (any, error) {
	var impl any

	err := h.WithNode(no, func(n *Node) error {
		if n.typ.IsDir() {
			return fmt.Errorf("%w: node %d", ErrIsDir, no)
		}

		if err := h.hasAccess(pid, n, acc); err != nil {
			return err
		}

		impl = n.impl

		return nil
	})

	return impl, err
}

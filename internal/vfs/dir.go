package vfs

import (
	"fmt"

	"github.com/desertwitch/kcore/internal/schema"
)

// direntSize is the size of a directory entry without its name.
const direntSize = 8

type dir struct {
	store *store
}

// Size returns the size of the directory's entries.
func (d *dir) Size(n *Node) int64 {
	var size int64

	for no := n.first; no != NoNode; {
		c := d.store.get(no)
		if c == nil {
			break
		}

		size += direntSize + int64(len(c.name))
		no = c.next
	}

	return size
}

// DirEntry is an entry of a directory listing. Type only holds the type
// bits of the entry's mode.
type DirEntry struct {
	Name string
	No   NodeNo
	Type schema.Mode
}

// CreateDir creates a directory below the parent, populated with its "." and
// ".." links.
func (h *Handler) CreateDir(pid schema.Pid, parent NodeNo, name string) (NodeNo, error) {
	no, err := h.createChild(pid, parent, name, schema.ModeDir, schema.DefaultDirPerms, &dir{store: h.store})
	if err != nil {
		return NoNode, fmt.Errorf("(vfs-createdir) %w", err)
	}

	return no, nil
}

func (h *Handler) createRoot() (NodeNo, error) {
	root, err := h.create(schema.KernelPid, "")
	if err != nil {
		return NoNode, err
	}

	root.mu.Lock()
	defer root.mu.Unlock()

	root.typ = schema.ModeDir
	root.perm = schema.DefaultDirPerms
	root.impl = &dir{store: h.store}

	if err := h.populateDir(root, root.no); err != nil {
		return NoNode, err
	}

	return root.no, nil
}

// populateDir adds the "." and ".." links to the locked directory.
func (h *Handler) populateDir(d *Node, parent NodeNo) error {
	for _, l := range []struct {
		name   string
		target NodeNo
	}{
		{".", d.no},
		{"..", parent},
	} {
		n, err := h.create(d.owner, l.name)
		if err != nil {
			return err
		}

		n.mu.Lock()
		n.typ = schema.ModeLink
		n.perm = schema.DefaultLinkPerms
		n.impl = &link{target: l.target}
		n.mu.Unlock()

		h.Append(d, n)
	}

	return nil
}

// createChild creates a node of the given kind and links it below the parent
// directory.
func (h *Handler) createChild(pid schema.Pid, parent NodeNo, name string, typ schema.Mode, perm schema.Mode, impl any) (NodeNo, error) {
	n, err := h.Create(pid, name)
	if err != nil {
		return NoNode, err
	}

	n.mu.Lock()
	n.typ = typ
	n.perm = perm
	n.impl = impl
	n.mu.Unlock()

	p, err := h.openDir(parent, 0, false)
	if err != nil {
		h.DestroyNow(n)

		return NoNode, err
	}

	if h.FindInDir(p, name) != NoNode {
		h.CloseDir(p)
		h.DestroyNow(n)

		return NoNode, fmt.Errorf("%w: %q", ErrExists, name)
	}

	if typ.IsDir() {
		n.mu.Lock()
		err := h.populateDir(n, p.no)
		n.mu.Unlock()

		if err != nil {
			h.CloseDir(p)
			h.DestroyNow(n)

			return NoNode, err
		}
	}

	h.Append(p, n)
	h.CloseDir(p)

	return n.no, nil
}

// ReadDir lists the directory, following links. Reading requires read access
// to the directory.
func (h *Handler) ReadDir(pid schema.Pid, no NodeNo) ([]DirEntry, error) {
	d, err := h.openDir(no, 0, false)
	if err != nil {
		return nil, fmt.Errorf("(vfs-readdir) %w", err)
	}
	defer h.CloseDir(d)

	if err := h.hasAccess(pid, d, AccessRead); err != nil {
		return nil, fmt.Errorf("(vfs-readdir) %w", err)
	}

	var entries []DirEntry

	for _, c := range h.childrenLocked(d) {
		entries = append(entries, DirEntry{
			Name: c.node.name,
			No:   c.node.no,
			Type: c.node.typ,
		})
	}

	return entries, nil
}

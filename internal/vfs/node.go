package vfs

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/desertwitch/kcore/internal/schema"
)

// Node is a slot of the node store. Its attributes are protected by its
// lock, its sibling links by the lock of its parent. The name and type of a
// node in a child list may also be read under the parent's lock, as they only
// change while both locks are held.
type Node struct {
	mu  sync.Mutex
	no  NodeNo
	gen uint64

	live     bool
	name     string
	owner    schema.Pid
	uid      schema.UID
	gid      schema.GID
	typ      schema.Mode
	perm     schema.Mode
	refCount int

	parent NodeNo
	first  NodeNo
	last   NodeNo
	prev   NodeNo
	next   NodeNo

	impl any
}

// No returns the node number.
func (n *Node) No() NodeNo {
	return n.no
}

// Name returns the name of the node. The node must be locked.
func (n *Node) Name() string {
	return n.name
}

// Mode returns the type and permission bits. The node must be locked.
func (n *Node) Mode() schema.Mode {
	return n.typ | n.perm
}

// Owner returns the pid that created the node. The node must be locked.
func (n *Node) Owner() schema.Pid {
	return n.owner
}

// UID returns the owning user. The node must be locked.
func (n *Node) UID() schema.UID {
	return n.uid
}

// GID returns the owning group. The node must be locked.
func (n *Node) GID() schema.GID {
	return n.gid
}

// RefCount returns the number of holders. The node must be locked.
func (n *Node) RefCount() int {
	return n.refCount
}

// Parent returns the node number of the parent. The node must be locked.
func (n *Node) Parent() NodeNo {
	return n.parent
}

// Impl returns the kind implementation of the node.
func (n *Node) Impl() any {
	return n.impl
}

// childRef remembers a child together with the generation of its slot, so a
// slot recycled in the meantime is recognized.
type childRef struct {
	node *Node
	gen  uint64
}

// Request locks the node and checks that it is alive. A dead node is
// unlocked again and [ErrNotFound] is returned. The node must be given back
// with [Handler.Release].
func (h *Handler) Request(no NodeNo) (*Node, error) {
	n := h.store.get(no)
	if n == nil {
		return nil, fmt.Errorf("(vfs-request) %w: node %d", ErrNotFound, no)
	}

	n.mu.Lock()
	if !n.live {
		n.mu.Unlock()

		return nil, fmt.Errorf("(vfs-request) %w: node %d", ErrNotFound, no)
	}

	return n, nil
}

// Release unlocks a node obtained with [Handler.Request].
func (h *Handler) Release(n *Node) {
	n.mu.Unlock()
}

// WithNode runs fn with the node locked.
func (h *Handler) WithNode(no NodeNo, fn func(n *Node) error) error {
	n, err := h.Request(no)
	if err != nil {
		return err
	}
	defer h.Release(n)

	return fn(n)
}

// Create allocates a new unlinked node for the process. Its user and group
// are the effective ones of the process, or root for the kernel. The node
// starts with a single reference.
func (h *Handler) Create(pid schema.Pid, name string) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("(vfs-create) %w: empty name", ErrInvalidArgument)
	}

	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("(vfs-create) %w: %d > %d", ErrNameTooLong, len(name), MaxNameLen)
	}

	n, err := h.create(pid, name)
	if err != nil {
		return nil, fmt.Errorf("(vfs-create) %w", err)
	}

	return n, nil
}

func (h *Handler) create(pid schema.Pid, name string) (*Node, error) {
	uid, gid := schema.RootUID, schema.RootGID
	if creds, ok := h.procs.Credentials(pid); ok {
		uid, gid = creds.EUID, creds.EGID
	}

	n, err := h.store.acquire()
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.gen++
	n.live = true
	n.name = name
	n.owner = pid
	n.uid = uid
	n.gid = gid
	n.typ = 0
	n.perm = 0
	n.refCount = 1
	n.parent = NoNode
	n.first = NoNode
	n.last = NoNode
	n.prev = NoNode
	n.next = NoNode
	n.impl = nil

	return n, nil
}

// Append links the node as the last child of the parent. The parent must be
// locked. The node must not be reachable by anyone else yet.
func (h *Handler) Append(parent *Node, n *Node) {
	if parent != nil {
		if parent.first == NoNode {
			parent.first = n.no
		}

		if parent.last != NoNode {
			if last := h.store.get(parent.last); last != nil {
				last.next = n.no
			}
		}

		n.prev = parent.last
		parent.last = n.no
		n.parent = parent.no

		return
	}

	n.parent = NoNode
}

// IncRef registers an additional holder of the node.
func (h *Handler) IncRef(no NodeNo) error {
	return h.WithNode(no, func(n *Node) error {
		n.refCount++

		return nil
	})
}

// Destroy drops a reference to the node. Once no references are left, the
// node and its subtree are removed from the tree and their slots reclaimed.
func (h *Handler) Destroy(n *Node) {
	h.doDestroy(n, h.generation(n), false)
}

// DestroyNow drops a reference to the node and removes it together with its
// subtree from the tree immediately. The slots of nodes that are still held
// are reclaimed once their last holder drops its reference.
func (h *Handler) DestroyNow(n *Node) {
	h.doDestroy(n, h.generation(n), true)
}

func (h *Handler) generation(n *Node) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.gen
}

func (h *Handler) doDestroy(n *Node, gen uint64, remove bool) {
	n.mu.Lock()

	// The slot was recycled, or its last reference is already gone.
	if n.gen != gen || n.refCount <= 0 {
		n.mu.Unlock()

		return
	}

	n.refCount--
	norefs := n.refCount == 0

	var children []childRef
	if norefs || remove {
		children = h.childrenLocked(n)
	}
	n.mu.Unlock()

	for _, c := range children {
		h.doDestroy(c.node, c.gen, remove)
	}

	n.mu.Lock()

	var parent *Node
	if n.parent != NoNode {
		parent = h.store.get(n.parent)
	}

	if parent != nil {
		parent.mu.Lock()
	}

	// Held children outlive the node and must not point at its slot.
	var survivors []childRef
	if norefs {
		survivors = h.childrenLocked(n)

		if d, ok := n.impl.(Destroyer); ok {
			d.Destroy(n)
		}
	}

	if (norefs || remove) && n.live {
		slog.Debug("Removed node.",
			"node", n.no,
			"name", n.name,
			"norefs", norefs,
		)

		n.live = false
		h.unlinkLocked(parent, n)
	}

	if norefs {
		n.owner = schema.InvalidPid
		n.impl = nil
	}

	if parent != nil {
		parent.mu.Unlock()
	}
	n.mu.Unlock()

	if norefs {
		h.orphan(n, survivors)
		h.store.release(n)
	}
}

// orphan detaches the children still linked to the dead node n, leaving them
// parentless. The slot of n must not have been released yet.
func (h *Handler) orphan(n *Node, children []childRef) {
	for _, c := range children {
		c.node.mu.Lock()
		n.mu.Lock()

		if c.node.gen == c.gen && c.node.parent == n.no {
			h.detachLocked(n, c.node)
		}

		n.mu.Unlock()
		c.node.mu.Unlock()
	}

	n.mu.Lock()
	n.first = NoNode
	n.last = NoNode
	n.mu.Unlock()
}

// unlinkLocked removes the node from the child list of its parent and drops
// its own child list. Both must be locked.
func (h *Handler) unlinkLocked(parent *Node, n *Node) {
	h.detachLocked(parent, n)

	n.first = NoNode
	n.last = NoNode
}

// detachLocked removes the node from the child list of its parent. Both must
// be locked.
func (h *Handler) detachLocked(parent *Node, n *Node) {
	if n.prev != NoNode {
		if prev := h.store.get(n.prev); prev != nil {
			prev.next = n.next
		}
	} else if parent != nil {
		parent.first = n.next
	}

	if n.next != NoNode {
		if next := h.store.get(n.next); next != nil {
			next.prev = n.prev
		}
	} else if parent != nil {
		parent.last = n.prev
	}

	n.prev = NoNode
	n.next = NoNode
	n.parent = NoNode
}

// childrenLocked returns the children of the locked node in list order.
func (h *Handler) childrenLocked(n *Node) []childRef {
	var children []childRef

	for no := n.first; no != NoNode; {
		c := h.store.get(no)
		if c == nil {
			break
		}

		children = append(children, childRef{node: c, gen: c.gen})
		no = c.next
	}

	return children
}

// OpenDir locks the directory, following a link to its target, and checks
// that it is alive. The returned node must be given back with
// [Handler.CloseDir].
func (h *Handler) OpenDir(no NodeNo) (*Node, error) {
	d, err := h.openDir(no, 0, false)
	if err != nil {
		return nil, fmt.Errorf("(vfs-opendir) %w", err)
	}

	return d, nil
}

// CloseDir unlocks a directory obtained with [Handler.OpenDir].
func (h *Handler) CloseDir(d *Node) {
	d.mu.Unlock()
}

// openDir locks the directory behind the node number. With checkGen set, the
// slot must still carry the given generation, otherwise the directory died
// while the caller was not holding any lock.
func (h *Handler) openDir(no NodeNo, gen uint64, checkGen bool) (*Node, error) {
	n := h.store.get(no)
	if n == nil {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, no)
	}

	n.mu.Lock()

	if !n.live || (checkGen && n.gen != gen) {
		n.mu.Unlock()

		return nil, fmt.Errorf("%w: node %d", ErrDestroyed, no)
	}

	if n.typ.IsLink() {
		target := n.impl.(*link).target
		n.mu.Unlock()

		n = h.store.get(target)
		if n == nil {
			return nil, fmt.Errorf("%w: link target %d", ErrDestroyed, target)
		}

		n.mu.Lock()
		if !n.live {
			n.mu.Unlock()

			return nil, fmt.Errorf("%w: link target %d", ErrDestroyed, target)
		}
	}

	if !n.typ.IsDir() {
		n.mu.Unlock()

		return nil, fmt.Errorf("%w: node %d", ErrNotDir, n.no)
	}

	return n, nil
}

// FindInDir returns the child of the locked directory with the given name, or
// [NoNode].
func (h *Handler) FindInDir(d *Node, name string) NodeNo {
	for no := d.first; no != NoNode; {
		c := h.store.get(no)
		if c == nil {
			break
		}

		if c.name == name {
			return c.no
		}

		no = c.next
	}

	return NoNode
}

// FindInDirOf opens the directory, following links, and returns its child
// with the given name, or [NoNode].
func (h *Handler) FindInDirOf(no NodeNo, name string) (NodeNo, error) {
	d, err := h.openDir(no, 0, false)
	if err != nil {
		return NoNode, fmt.Errorf("(vfs-findindirof) %w", err)
	}
	defer h.CloseDir(d)

	return h.FindInDir(d, name), nil
}

// IsEmptyDir returns nil if the locked node is a directory that holds
// nothing but "." and "..".
func (h *Handler) IsEmptyDir(n *Node) error {
	if !n.typ.IsDir() {
		return fmt.Errorf("(vfs-isemptydir) %w: node %d", ErrNotDir, n.no)
	}

	if !n.live {
		return fmt.Errorf("(vfs-isemptydir) %w: node %d", ErrDestroyed, n.no)
	}

	for no := n.first; no != NoNode; {
		c := h.store.get(no)
		if c == nil {
			break
		}

		if c.name != "." && c.name != ".." {
			return fmt.Errorf("(vfs-isemptydir) %w: node %d", ErrNotEmpty, n.no)
		}

		no = c.next
	}

	return nil
}

// UsageID returns a fresh name of the form "<pid>.<n>" for nodes that
// represent a usage of a resource by a process.
func (h *Handler) UsageID(pid schema.Pid) string {
	return fmt.Sprintf("%d.%d", pid, h.store.usageID())
}

package vfs

import (
	"fmt"

	"github.com/desertwitch/kcore/internal/schema"
)

// hasAccess checks the access bits of the locked node for the process. The
// kernel and root pass every check.
func (h *Handler) hasAccess(pid schema.Pid, n *Node, acc Access) error {
	if pid == schema.KernelPid {
		return nil
	}

	creds, ok := h.procs.Credentials(pid)
	if !ok {
		return fmt.Errorf("%w: unknown pid %d", ErrAccess, pid)
	}

	if creds.IsRoot() {
		return nil
	}

	var bits Access

	switch {
	case creds.EUID == n.uid:
		bits = Access(n.perm>>6) & 7
	case creds.IsMember(n.gid):
		bits = Access(n.perm>>3) & 7
	default:
		bits = Access(n.perm) & 7
	}

	if bits&acc != acc {
		return fmt.Errorf("%w: node %d", ErrAccess, n.no)
	}

	return nil
}

// callerCreds returns the credentials of a process subject to ownership
// rules. The kernel and root report false. Unknown processes are refused.
func (h *Handler) callerCreds(pid schema.Pid) (schema.Credentials, bool, error) {
	if pid == schema.KernelPid {
		return schema.Credentials{}, false, nil
	}

	creds, ok := h.procs.Credentials(pid)
	if !ok {
		return schema.Credentials{}, false, fmt.Errorf("%w: unknown pid %d", ErrPermission, pid)
	}

	if creds.IsRoot() {
		return schema.Credentials{}, false, nil
	}

	return creds, true, nil
}

// Chmod replaces the permission bits of the node. Only root, the kernel and
// the owning user may do so.
func (h *Handler) Chmod(pid schema.Pid, no NodeNo, mode schema.Mode) error {
	n, err := h.Request(no)
	if err != nil {
		return fmt.Errorf("(vfs-chmod) %w", err)
	}
	defer h.Release(n)

	creds, restricted, err := h.callerCreds(pid)
	if err != nil {
		return fmt.Errorf("(vfs-chmod) %w", err)
	}

	if restricted && creds.EUID != n.uid {
		return fmt.Errorf("(vfs-chmod) %w: node %d", ErrPermission, no)
	}

	n.perm = mode.Perm()

	return nil
}

// Chown changes the user and group of the node; [schema.NoUID] and
// [schema.NoGID] leave the respective field unchanged. Root and the kernel may
// change both freely. The owning user may neither give the node away nor
// assign it to a group other than its effective group or one it is a member
// of.
func (h *Handler) Chown(pid schema.Pid, no NodeNo, uid schema.UID, gid schema.GID) error {
	n, err := h.Request(no)
	if err != nil {
		return fmt.Errorf("(vfs-chown) %w", err)
	}
	defer h.Release(n)

	creds, restricted, err := h.callerCreds(pid)
	if err != nil {
		return fmt.Errorf("(vfs-chown) %w", err)
	}

	if restricted {
		switch {
		case creds.EUID != n.uid:
			return fmt.Errorf("(vfs-chown) %w: not the owner of node %d", ErrPermission, no)
		case uid != schema.NoUID && uid != n.uid && uid != creds.EUID:
			return fmt.Errorf("(vfs-chown) %w: cannot give away node %d", ErrPermission, no)
		case gid != schema.NoGID && gid != n.gid && !creds.IsMember(gid):
			return fmt.Errorf("(vfs-chown) %w: not a member of group %d", ErrPermission, gid)
		}
	}

	if uid != schema.NoUID {
		n.uid = uid
	}

	if gid != schema.NoGID {
		n.gid = gid
	}

	return nil
}

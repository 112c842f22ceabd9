package vfs

import (
	"fmt"
	"strings"

	"github.com/desertwitch/kcore/internal/schema"
)

// ResolvePath walks the absolute path from the root and returns the node it
// names. Every traversed directory needs execute access. Links are followed
// unless [FlagNoLinkRes] is given, and the walk stops at device nodes.
//
// A name missing directly below the root yields [ErrRealPath]. Deeper down,
// [FlagCreate] creates a missing file if the caller has write access to its
// directory, in which case created is reported as true.
func (h *Handler) ResolvePath(pid schema.Pid, path string, flags Flag) (NodeNo, bool, error) {
	no, created, err := h.resolvePath(pid, path, flags)
	if err != nil {
		return NoNode, false, fmt.Errorf("(vfs-resolve) %w", err)
	}

	return no, created, nil
}

func (h *Handler) resolvePath(pid schema.Pid, path string, flags Flag) (NodeNo, bool, error) {
	if !strings.HasPrefix(path, "/") {
		return NoNode, false, fmt.Errorf("%w: relative path %q", ErrInvalidArgument, path)
	}

	rest := strings.TrimLeft(path, "/")
	if rest == "" {
		return RootNo, false, nil
	}

	d, err := h.openDir(RootNo, 0, false)
	if err != nil {
		return NoNode, false, err
	}

	for depth := 0; ; depth++ {
		if err := h.hasAccess(pid, d, AccessExec); err != nil {
			h.CloseDir(d)

			return NoNode, false, err
		}

		seg, remain, _ := strings.Cut(rest, "/")
		if err := validateName(seg); err != nil {
			h.CloseDir(d)

			return NoNode, false, err
		}

		found := h.FindInDir(d, seg)
		if found == NoNode {
			defer h.CloseDir(d)

			switch {
			case depth == 0:
				return NoNode, false, fmt.Errorf("%w: %q", ErrRealPath, path)
			case flags&FlagCreate != 0:
				no, err := h.createFileLocked(pid, d, rest)
				if err != nil {
					return NoNode, false, err
				}

				return no, true, nil
			default:
				return NoNode, false, fmt.Errorf("%w: %q", ErrNotFound, path)
			}
		}

		c := h.store.get(found)
		typ, gen := c.typ, c.gen

		rest = strings.TrimLeft(remain, "/")
		if rest == "" || typ.IsDevice() {
			if typ.IsLink() && flags&FlagNoLinkRes == 0 {
				found = c.impl.(*link).target
			}
			h.CloseDir(d)

			return found, false, nil
		}

		if !typ.IsDir() && !typ.IsLink() {
			h.CloseDir(d)

			return NoNode, false, fmt.Errorf("%w: %q", ErrNotDir, seg)
		}

		h.CloseDir(d)

		d, err = h.openDir(found, gen, true)
		if err != nil {
			return NoNode, false, err
		}
	}
}

// createFileLocked creates a file for the remaining path in the locked
// directory. The remaining path may only carry a trailing slash.
func (h *Handler) createFileLocked(pid schema.Pid, d *Node, rest string) (NodeNo, error) {
	if err := h.hasAccess(pid, d, AccessWrite); err != nil {
		return NoNode, err
	}

	name, after, found := strings.Cut(rest, "/")
	if found && strings.TrimLeft(after, "/") != "" {
		return NoNode, fmt.Errorf("%w: cannot create %q", ErrInvalidArgument, rest)
	}

	n, err := h.Create(pid, name)
	if err != nil {
		return NoNode, err
	}

	n.mu.Lock()
	n.typ = schema.ModeFile
	n.perm = schema.DefaultFilePerms
	n.impl = &file{}
	n.mu.Unlock()

	h.Append(d, n)

	return n.no, nil
}

// validateName accepts names made of printable characters and spaces.
func validateName(name string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %d > %d", ErrNameTooLong, len(name), MaxNameLen)
	}

	for i := range len(name) {
		if c := name[i]; c < ' ' || c > '~' {
			return fmt.Errorf("%w: invalid character %#x in %q", ErrInvalidArgument, c, name)
		}
	}

	return nil
}

// GetPath returns the absolute path of the node, assembled from its name and
// the names of its ancestors. Paths longer than [MaxPathLen] keep their
// trailing part. A node destroyed while its path is assembled, or one no
// longer linked below the root, yields "<destroyed>".
func (h *Handler) GetPath(no NodeNo) string {
	var names []string

	for cur := no; ; {
		n := h.store.get(cur)
		if n == nil {
			return destroyedPath
		}

		n.mu.Lock()
		live, name, parent := n.live, n.name, n.parent
		n.mu.Unlock()

		if !live {
			return destroyedPath
		}

		if parent == NoNode {
			// Nodes outside the tree have no path.
			if cur != RootNo {
				return destroyedPath
			}

			break
		}

		names = append(names, name)
		cur = parent
	}

	if len(names) == 0 {
		return "/"
	}

	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(names[i])
	}

	path := b.String()
	if len(path) > MaxPathLen {
		path = path[len(path)-MaxPathLen:]
	}

	return path
}

// Basename returns the last component of the path, ignoring trailing
// slashes.
func Basename(path string) string {
	path = strings.TrimRight(path, "/")

	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}

	return path
}

// Dirname returns the path without its last component, keeping the slash in
// front of it.
func Dirname(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return path
	}

	i := strings.LastIndexByte(trimmed, '/')
	if i < 0 {
		return ""
	}

	return trimmed[:i+1]
}

package vfs

import (
	"fmt"
	"io"
	"strings"
)

// PrintTree writes the tree below the root to w, one node per line. The "."
// and ".." links are listed but not descended into.
func (h *Handler) PrintTree(w io.Writer) error {
	if _, err := fmt.Fprint(w, "VFS:\n/\n"); err != nil {
		return fmt.Errorf("(vfs-printtree) %w", err)
	}

	if err := h.printTree(w, 1, RootNo); err != nil {
		return fmt.Errorf("(vfs-printtree) %w", err)
	}

	return nil
}

func (h *Handler) printTree(w io.Writer, level int, no NodeNo) error {
	type entry struct {
		name string
		no   NodeNo
		dir  bool
	}

	// Directories destroyed in the meantime are skipped.
	d, err := h.openDir(no, 0, false)
	if err != nil {
		return nil //nolint:nilerr
	}

	var entries []entry
	for _, c := range h.childrenLocked(d) {
		entries = append(entries, entry{
			name: c.node.name,
			no:   c.node.no,
			dir:  c.node.typ.IsDir(),
		})
	}
	h.CloseDir(d)

	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s- %s\n", strings.Repeat(" |", level), e.name); err != nil {
			return err
		}

		if e.dir && e.name != "." && e.name != ".." {
			if err := h.printTree(w, level+1, e.no); err != nil {
				return err
			}
		}
	}

	return nil
}

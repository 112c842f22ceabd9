package vfs

import (
	"fmt"

	"github.com/desertwitch/kcore/internal/schema"
)

type link struct {
	target NodeNo
}

// Target returns the node number the link points to.
func (l *link) Target() NodeNo {
	return l.target
}

// CreateLink creates a link below the parent pointing to the target node.
func (h *Handler) CreateLink(pid schema.Pid, parent NodeNo, name string, target NodeNo) (NodeNo, error) {
	if h.store.get(target) == nil {
		return NoNode, fmt.Errorf("(vfs-createlink) %w: target %d", ErrNotFound, target)
	}

	no, err := h.createChild(pid, parent, name, schema.ModeLink, schema.DefaultLinkPerms, &link{target: target})
	if err != nil {
		return NoNode, fmt.Errorf("(vfs-createlink) %w", err)
	}

	return no, nil
}

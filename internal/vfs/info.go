package vfs

import (
	"fmt"

	"github.com/desertwitch/kcore/internal/schema"
)

// Info describes a node the way stat does.
type Info struct {
	Device     int
	InodeNo    NodeNo
	Mode       schema.Mode
	UID        schema.UID
	GID        schema.GID
	Size       int64
	LinkCount  int
	BlockSize  int
	BlockCount int
}

// GetInfo returns the attributes of the node.
func (h *Handler) GetInfo(no NodeNo) (Info, error) {
	n, err := h.Request(no)
	if err != nil {
		return Info{}, fmt.Errorf("(vfs-getinfo) %w", err)
	}
	defer h.Release(n)

	info := Info{
		Device:    DeviceNo,
		InodeNo:   no,
		Mode:      n.typ | n.perm,
		UID:       n.uid,
		GID:       n.gid,
		LinkCount: 1,
		BlockSize: BlockSize,
	}

	if s, ok := n.impl.(Sizer); ok {
		info.Size = s.Size(n)
	}

	return info, nil
}

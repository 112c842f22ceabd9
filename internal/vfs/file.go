package vfs

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertwitch/kcore/internal/schema"
)

// file is an in-memory regular file.
type file struct {
	mu   sync.Mutex
	data []byte
}

func (f *file) Read(_ context.Context, _ schema.Tid, _ NodeNo, buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("%w: offset %d", ErrInvalidArgument, offset)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if offset >= int64(len(f.data)) {
		return 0, nil
	}

	return copy(buf, f.data[offset:]), nil
}

func (f *file) Write(_ context.Context, _ schema.Tid, _ NodeNo, data []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("%w: offset %d", ErrInvalidArgument, offset)
	}

	if offset > MaxFileSize-int64(len(data)) {
		return 0, fmt.Errorf("%w: %d bytes at %d exceed %d", ErrNoMemory, len(data), offset, int64(MaxFileSize))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	end := offset + int64(len(data))
	if end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}

	return copy(f.data[offset:], data), nil
}

func (f *file) Size(*Node) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return int64(len(f.data))
}

func (f *file) Destroy(*Node) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data = nil
}

// CreateFile creates an empty in-memory file below the parent.
func (h *Handler) CreateFile(pid schema.Pid, parent NodeNo, name string) (NodeNo, error) {
	no, err := h.createChild(pid, parent, name, schema.ModeFile, schema.DefaultFilePerms, &file{})
	if err != nil {
		return NoNode, fmt.Errorf("(vfs-createfile) %w", err)
	}

	return no, nil
}

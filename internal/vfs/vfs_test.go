package vfs

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/desertwitch/kcore/internal/request"
	"github.com/desertwitch/kcore/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pidUser  schema.Pid = 1
	pidOther schema.Pid = 2
	pidRoot  schema.Pid = 3

	pidUnknown schema.Pid = 999
)

type fakeProcs map[schema.Pid]schema.Credentials

func (f fakeProcs) Credentials(pid schema.Pid) (schema.Credentials, bool) {
	creds, ok := f[pid]

	return creds, ok
}

type fakeThreads struct{}

func (fakeThreads) Exists(schema.Tid) bool { return true }

type fakeSignals struct{}

func (fakeSignals) HasSignalFor(schema.Tid) bool { return false }

// fakeEvents parks waiters on channels until they are woken.
type fakeEvents struct {
	mu      sync.Mutex
	waiting map[schema.Tid]chan struct{}
}

func (f *fakeEvents) Wait(ctx context.Context, tid schema.Tid, _ schema.Event, _ int64, _ bool, done func() bool) error {
	f.mu.Lock()
	if done != nil && done() {
		f.mu.Unlock()

		return nil
	}

	ch := make(chan struct{})
	f.waiting[tid] = ch
	f.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeEvents) WakeThread(tid schema.Tid, _ schema.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch, ok := f.waiting[tid]
	if ok {
		delete(f.waiting, tid)
		close(ch)
	}

	return ok
}

func newTestHandler(t *testing.T, grow int, maxNodes int) (*Handler, *request.Table) {
	t.Helper()

	procs := fakeProcs{
		pidUser:  {EUID: 1000, EGID: 100, Groups: []schema.GID{5}},
		pidOther: {EUID: 2000, EGID: 200},
		pidRoot:  {EUID: schema.RootUID, EGID: schema.RootGID},
	}

	events := &fakeEvents{waiting: make(map[schema.Tid]chan struct{})}
	table := request.NewTable(16, request.DefaultHandlerCount, fakeThreads{}, fakeSignals{}, events)

	h, err := NewHandler(grow, maxNodes, procs, table)
	require.NoError(t, err)

	return h, table
}

// mkdir creates a world-writable directory below the root.
func mkdir(t *testing.T, h *Handler, name string) NodeNo {
	t.Helper()

	no, err := h.CreateDir(schema.KernelPid, RootNo, name)
	require.NoError(t, err)
	require.NoError(t, h.Chmod(schema.KernelPid, no, 0o777))

	return no
}

// TestNewHandler_Root tests the initial tree.
func TestNewHandler_Root(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	assert.Equal(t, "/", h.GetPath(RootNo))

	no, created, err := h.ResolvePath(pidUser, "///", 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, RootNo, no)

	entries, err := h.ReadDir(pidUser, RootNo)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".", entries[0].Name)
	assert.Equal(t, "..", entries[1].Name)
	assert.True(t, entries[0].Type.IsLink())

	info, err := h.GetInfo(RootNo)
	require.NoError(t, err)
	assert.True(t, info.Mode.IsDir())
	assert.Equal(t, int64(2*direntSize+3), info.Size)
}

// TestNewHandler_HandlerTaken tests that a second VFS cannot share a request
// table.
func TestNewHandler_HandlerTaken(t *testing.T) {
	t.Parallel()

	_, table := newTestHandler(t, 0, 0)

	_, err := NewHandler(0, 0, fakeProcs{}, table)
	require.ErrorIs(t, err, request.ErrHandlerExists)
}

// TestCreate_SlotReuse tests that destroying a fresh node reclaims its slot.
func TestCreate_SlotReuse(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	n, err := h.Create(pidUser, "a")
	require.NoError(t, err)

	n.mu.Lock()
	assert.Equal(t, 1, n.RefCount())
	assert.Equal(t, schema.UID(1000), n.UID())
	assert.Equal(t, schema.GID(100), n.GID())
	assert.Equal(t, pidUser, n.Owner())
	assert.Equal(t, NoNode, n.Parent())
	n.mu.Unlock()

	free := h.Stats().Free
	h.Destroy(n)
	assert.Equal(t, free+1, h.Stats().Free)

	_, err = h.Request(n.No())
	require.ErrorIs(t, err, ErrNotFound)

	again, err := h.Create(schema.KernelPid, "b")
	require.NoError(t, err)
	assert.Equal(t, n.No(), again.No())

	again.mu.Lock()
	assert.Equal(t, schema.RootUID, again.UID())
	again.mu.Unlock()
}

// TestCreate_Names tests the name checks on creation.
func TestCreate_Names(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	_, err := h.Create(pidUser, "")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.Create(pidUser, string(bytes.Repeat([]byte("a"), MaxNameLen+1)))
	require.ErrorIs(t, err, ErrNameTooLong)

	_, err = h.Create(pidUser, string(bytes.Repeat([]byte("a"), MaxNameLen)))
	require.NoError(t, err)
}

// TestDestroy_RefCountDefers tests that held nodes survive a destroy until
// their last reference is dropped.
func TestDestroy_RefCountDefers(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	no, err := h.CreateFile(schema.KernelPid, RootNo, "f")
	require.NoError(t, err)
	require.NoError(t, h.IncRef(no))

	n := h.store.get(no)
	free := h.Stats().Free

	h.Destroy(n)
	require.NoError(t, h.WithNode(no, func(n *Node) error {
		assert.Equal(t, 1, n.RefCount())

		return nil
	}))
	assert.Equal(t, "/f", h.GetPath(no))
	assert.Equal(t, free, h.Stats().Free)

	h.Destroy(n)
	_, err = h.Request(no)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, destroyedPath, h.GetPath(no))
	assert.Equal(t, free+1, h.Stats().Free)

	found, err := h.FindInDirOf(RootNo, "f")
	require.NoError(t, err)
	assert.Equal(t, NoNode, found)
}

// TestDestroyNow_DetachesHeld tests forced removal of a subtree with a held
// node inside.
func TestDestroyNow_DetachesHeld(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	d, err := h.CreateDir(schema.KernelPid, RootNo, "d")
	require.NoError(t, err)

	f, err := h.CreateFile(schema.KernelPid, d, "f")
	require.NoError(t, err)
	require.NoError(t, h.IncRef(f))

	free := h.Stats().Free
	h.DestroyNow(h.store.get(d))

	_, err = h.Request(d)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = h.Request(f)
	require.ErrorIs(t, err, ErrNotFound)

	// The directory, its "." and ".." links are reclaimed, the held file is
	// not.
	assert.Equal(t, free+3, h.Stats().Free)

	h.Destroy(h.store.get(f))
	assert.Equal(t, free+4, h.Stats().Free)

	entries, err := h.ReadDir(schema.KernelPid, RootNo)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

// TestDestroy_HeldChildOutlivesDir tests that a child held past the death of
// its directory leaves the recycled directory slot alone.
func TestDestroy_HeldChildOutlivesDir(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	free := h.Stats().Free

	d, err := h.CreateDir(schema.KernelPid, RootNo, "d")
	require.NoError(t, err)

	c, err := h.CreateFile(schema.KernelPid, d, "c")
	require.NoError(t, err)
	require.NoError(t, h.IncRef(c))

	h.Destroy(h.store.get(d))

	_, err = h.Request(d)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, h.WithNode(c, func(n *Node) error {
		assert.Equal(t, NoNode, n.Parent())
		assert.Equal(t, 1, n.RefCount())

		return nil
	}))
	assert.Equal(t, destroyedPath, h.GetPath(c))

	e, err := h.CreateDir(schema.KernelPid, RootNo, "e")
	require.NoError(t, err)
	require.Equal(t, d, e)

	_, err = h.CreateFile(schema.KernelPid, e, "x")
	require.NoError(t, err)

	h.Destroy(h.store.get(c))

	entries, err := h.ReadDir(schema.KernelPid, e)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	assert.Equal(t, []string{".", "..", "x"}, names)

	x, err := h.FindInDirOf(e, "x")
	require.NoError(t, err)
	assert.Equal(t, "/e/x", h.GetPath(x))

	// d, its links and c were reclaimed, e, its links and x are in use.
	assert.Equal(t, free-4, h.Stats().Free)
}

// TestDestroy_StaleGeneration tests that a destroy issued for a recycled slot
// is ignored.
func TestDestroy_StaleGeneration(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	n, err := h.Create(schema.KernelPid, "a")
	require.NoError(t, err)

	gen := h.generation(n)
	h.Destroy(n)

	again, err := h.Create(schema.KernelPid, "b")
	require.NoError(t, err)
	require.Same(t, n, again)

	h.doDestroy(n, gen, true)

	again.mu.Lock()
	assert.True(t, again.live)
	assert.Equal(t, 1, again.refCount)
	again.mu.Unlock()
}

// TestStore_NoMemory tests growth up to the configured maximum.
func TestStore_NoMemory(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 2, 6)

	// The root directory occupies three slots.
	for range 3 {
		_, err := h.Create(schema.KernelPid, "x")
		require.NoError(t, err)
	}

	stats := h.Stats()
	assert.Equal(t, 6, stats.Slots)
	assert.Equal(t, 0, stats.Free)

	_, err := h.Create(schema.KernelPid, "x")
	require.ErrorIs(t, err, ErrNoMemory)
}

// TestUsageID_Sequence tests the usage id format.
func TestUsageID_Sequence(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	assert.Equal(t, "5.0", h.UsageID(5))
	assert.Equal(t, "7.1", h.UsageID(7))
}

// TestIsEmptyDir_Table tests the emptiness check.
func TestIsEmptyDir_Table(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	empty, err := h.CreateDir(schema.KernelPid, RootNo, "empty")
	require.NoError(t, err)

	full, err := h.CreateDir(schema.KernelPid, RootNo, "full")
	require.NoError(t, err)

	file, err := h.CreateFile(schema.KernelPid, full, "f")
	require.NoError(t, err)

	testCases := []struct {
		name string
		no   NodeNo
		want error
	}{
		{"Empty", empty, nil},
		{"NotEmpty", full, ErrNotEmpty},
		{"NotDir", file, ErrNotDir},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := h.WithNode(tc.no, h.IsEmptyDir)
			if tc.want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}
}

// TestCreateChild_Exists tests that names are unique within a directory.
func TestCreateChild_Exists(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	_, err := h.CreateFile(schema.KernelPid, RootNo, "f")
	require.NoError(t, err)

	free := h.Stats().Free

	_, err = h.CreateDir(schema.KernelPid, RootNo, "f")
	require.ErrorIs(t, err, ErrExists)
	assert.Equal(t, free, h.Stats().Free)

	_, err = h.CreateFile(schema.KernelPid, NodeNo(9999), "g")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestPrintTree_Success tests the debug dump.
func TestPrintTree_Success(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)

	d, err := h.CreateDir(schema.KernelPid, RootNo, "dev")
	require.NoError(t, err)

	_, err = h.CreateFile(schema.KernelPid, d, "zero")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.PrintTree(&buf))

	want := "VFS:\n/\n" +
		" |- .\n" +
		" |- ..\n" +
		" |- dev\n" +
		" | |- .\n" +
		" | |- ..\n" +
		" | |- zero\n"

	assert.Equal(t, want, buf.String())
}

// TestFindInDir_ConcurrentDestroy tests that a directory walk never observes
// a partially unlinked child while the child is destroyed concurrently.
func TestFindInDir_ConcurrentDestroy(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)
	dirNo := mkdir(t, h, "race")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var wg sync.WaitGroup

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for ctx.Err() == nil {
				d, err := h.OpenDir(dirNo)
				if !assert.NoError(t, err) {
					return
				}

				if no := h.FindInDir(d, "x"); no != NoNode {
					c := h.store.get(no)
					assert.True(t, c.live)
					assert.Equal(t, "x", c.name)
					assert.Equal(t, dirNo, c.parent)
				}

				h.CloseDir(d)
			}
		}()
	}

	for range 200 {
		no, err := h.CreateFile(schema.KernelPid, dirNo, "x")
		require.NoError(t, err)

		h.Destroy(h.store.get(no))
	}

	cancel()
	wg.Wait()
}

// TestResolvePath_ConcurrentDestroy tests walkers racing with the removal of
// the directory they walk through.
func TestResolvePath_ConcurrentDestroy(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, 0, 0)
	top := mkdir(t, h, "top")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var wg sync.WaitGroup

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for ctx.Err() == nil {
				_, _, err := h.ResolvePath(pidUser, "/top/sub/leaf", 0)
				if err != nil {
					assert.True(t,
						errorIsAny(err, ErrNotFound, ErrDestroyed, ErrNotDir),
						"unexpected error: %v", err)
				}
			}
		}()
	}

	for range 100 {
		sub, err := h.CreateDir(schema.KernelPid, top, "sub")
		require.NoError(t, err)

		_, err = h.CreateFile(schema.KernelPid, sub, "leaf")
		require.NoError(t, err)

		h.DestroyNow(h.store.get(sub))
	}

	cancel()
	wg.Wait()
}

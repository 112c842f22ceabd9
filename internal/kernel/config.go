package kernel

import (
	"fmt"
	"time"

	"github.com/desertwitch/kcore/internal/request"
	"github.com/desertwitch/kcore/internal/vfs"
)

const (
	// DefaultMaxThreads is the default capacity of the ready queue.
	DefaultMaxThreads = 64

	// DefaultTimeslice is the default time a workload thread keeps the CPU
	// before it yields.
	DefaultTimeslice = time.Millisecond

	// DefaultSimThreads is the default number of workload threads.
	DefaultSimThreads = 8

	// DefaultSimRounds is the default number of rounds per workload thread.
	DefaultSimRounds = 16
)

// Config holds the tunables of a [Kernel].
type Config struct {
	MaxThreads   int
	RequestCount int
	HandlerCount int
	NodeGrow     int
	MaxNodes     int
	Timeslice    time.Duration

	SimThreads int
	SimRounds  int
	RandomSeed uint64

	// Release is written to /system/release.
	Release string
}

// DefaultConfig returns the default [Config].
func DefaultConfig() Config {
	return Config{
		MaxThreads:   DefaultMaxThreads,
		RequestCount: request.DefaultRequestCount,
		HandlerCount: request.DefaultHandlerCount,
		NodeGrow:     vfs.DefaultNodeGrow,
		MaxNodes:     vfs.DefaultMaxNodes,
		Timeslice:    DefaultTimeslice,
		SimThreads:   DefaultSimThreads,
		SimRounds:    DefaultSimRounds,
		Release:      "dev",
	}
}

// Validate checks that the configuration can be booted. Every workload
// thread must fit into the ready queue at once, otherwise a woken thread
// could find no free ready slot.
func (c Config) Validate() error {
	switch {
	case c.MaxThreads <= 0, c.RequestCount <= 0, c.NodeGrow <= 0, c.MaxNodes <= 0:
		return fmt.Errorf("%w: sizes must be positive", ErrInvalidConfig)

	case c.HandlerCount <= int(vfs.MsgErrorReply):
		return fmt.Errorf("%w: handler count %d too small", ErrInvalidConfig, c.HandlerCount)

	case c.NodeGrow > c.MaxNodes:
		return fmt.Errorf("%w: node grow %d exceeds max nodes %d", ErrInvalidConfig, c.NodeGrow, c.MaxNodes)

	case c.SimThreads < 0, c.SimRounds < 0, c.Timeslice < 0:
		return fmt.Errorf("%w: negative workload", ErrInvalidConfig)

	case c.SimThreads > c.MaxThreads:
		return fmt.Errorf("%w: %d workload threads exceed %d ready slots", ErrInvalidConfig, c.SimThreads, c.MaxThreads)
	}

	return nil
}

// Package kernel boots the kernel core: it wires the scheduler, the process
// manager, the request table and the VFS together, lays out the standard
// tree and mounts the simulated driver devices below /dev.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/desertwitch/kcore/internal/drivers"
	"github.com/desertwitch/kcore/internal/proc"
	"github.com/desertwitch/kcore/internal/queue"
	"github.com/desertwitch/kcore/internal/request"
	"github.com/desertwitch/kcore/internal/sched"
	"github.com/desertwitch/kcore/internal/schema"
	"github.com/desertwitch/kcore/internal/vfs"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// Paths of the standard tree.
const (
	DevPath    = "/dev"
	SystemPath = "/system"
	TmpPath    = "/tmp"
)

// Kernel is the booted kernel core.
type Kernel struct {
	config Config

	Sched    *sched.Scheduler
	Procs    *proc.Manager
	Requests *request.Table
	VFS      *vfs.Handler
	Drivers  *drivers.Host
	Workload *queue.WorkQueue[Job]

	devices []string
}

// Boot returns a pointer to a new booted [Kernel]. The dispatcher and the
// drivers only start working with [Kernel.Run].
func Boot(cfg Config) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("(kernel-boot) %w", err)
	}

	k := &Kernel{
		config:   cfg,
		Sched:    sched.NewScheduler(cfg.MaxThreads),
		Drivers:  drivers.NewHost(),
		Workload: queue.NewWorkQueue[Job](),
	}

	k.Procs = proc.NewManager(k.Sched)
	k.Requests = request.NewTable(cfg.RequestCount, cfg.HandlerCount, k.Procs, k.Procs, k.Procs)

	fs, err := vfs.NewHandler(cfg.NodeGrow, cfg.MaxNodes, k.Procs, k.Requests)
	if err != nil {
		return nil, fmt.Errorf("(kernel-boot) %w", err)
	}
	k.VFS = fs

	if err := k.layout(); err != nil {
		return nil, fmt.Errorf("(kernel-boot) %w", err)
	}

	devices := []drivers.Device{
		drivers.Zero{},
		drivers.Null{},
		drivers.NewRandom(cfg.RandomSeed),
		&drivers.Echo{},
	}
	for _, dev := range devices {
		if err := k.mount(dev); err != nil {
			return nil, fmt.Errorf("(kernel-boot) %w", err)
		}
	}

	stats := k.VFS.Stats()
	slog.Info("Kernel booted.",
		"release", cfg.Release,
		"readySlots", humanize.Comma(int64(cfg.MaxThreads)),
		"requestSlots", humanize.Comma(int64(cfg.RequestCount)),
		"nodes", humanize.Comma(int64(stats.Slots-stats.Free)),
		"devices", len(k.devices),
	)

	return k, nil
}

// Config returns the configuration the kernel was booted with.
func (k *Kernel) Config() Config {
	return k.config
}

// layout creates the standard tree.
func (k *Kernel) layout() error {
	if _, err := k.VFS.CreateDir(schema.KernelPid, vfs.RootNo, "dev"); err != nil {
		return err
	}

	system, err := k.VFS.CreateDir(schema.KernelPid, vfs.RootNo, "system")
	if err != nil {
		return err
	}

	tmp, err := k.VFS.CreateDir(schema.KernelPid, vfs.RootNo, "tmp")
	if err != nil {
		return err
	}

	if err := k.VFS.Chmod(schema.KernelPid, tmp, 0o777); err != nil { //nolint:mnd
		return err
	}

	release, err := k.VFS.CreateFile(schema.KernelPid, system, "release")
	if err != nil {
		return err
	}

	_, err = k.VFS.Write(context.Background(), schema.KernelPid, schema.InvalidTid, release, []byte(k.config.Release+"\n"), 0)
	if err != nil {
		return err
	}

	return nil
}

// mount starts a driver for the device and creates its node below /dev.
func (k *Kernel) mount(dev drivers.Device) error {
	parent, _, err := k.VFS.ResolvePath(schema.KernelPid, DevPath, 0)
	if err != nil {
		return err
	}

	d := drivers.NewDriver(dev, k.Requests, drivers.DefaultBacklog)

	if _, err := k.VFS.CreateDevice(schema.KernelPid, parent, dev.Name(), d); err != nil {
		return err
	}

	k.Drivers.Add(d)
	k.devices = append(k.devices, DevPath+"/"+dev.Name())

	return nil
}

// Devices returns the paths of the mounted devices.
func (k *Kernel) Devices() []string {
	return k.devices
}

// Run runs the dispatcher and the drivers until the context is cancelled.
func (k *Kernel) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := k.Procs.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		return k.Drivers.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("(kernel-run) %w", err)
	}

	return nil
}

// Shutdown removes the device nodes. Threads still waiting on a device are
// released with [request.ErrDriverDied].
func (k *Kernel) Shutdown() {
	for _, path := range k.devices {
		if err := k.VFS.Unlink(schema.KernelPid, path); err != nil {
			slog.Warn("Failed to remove device.", "path", path, "err", err)
		}
	}

	k.devices = nil
}

package kernel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/desertwitch/kcore/internal/proc"
	"github.com/desertwitch/kcore/internal/queue"
	"github.com/desertwitch/kcore/internal/sched"
	"github.com/desertwitch/kcore/internal/schema"
	"github.com/desertwitch/kcore/internal/vfs"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

const (
	// workloadUIDBase is the user id of the first workload process.
	workloadUIDBase = 1000

	// workloadGID is the group of every workload process.
	workloadGID = 100

	// chunkSize is the number of bytes a workload thread moves per round.
	chunkSize = 32

	// requeueDelay is the pause before a job is retried.
	requeueDelay = 5 * time.Millisecond
)

// Job is a unit of the synthetic workload, run by one user thread of its own
// process.
type Job struct {
	ID  int
	Pid schema.Pid
}

// worker is the state of a workload thread.
type worker struct {
	k          *Kernel
	pid        schema.Pid
	t          *proc.Thread
	sliceStart time.Time
}

// Simulate runs the kernel together with the synthetic workload and returns
// once the workload is done. The dispatcher and the drivers are stopped
// afterwards.
func (k *Kernel) Simulate(ctx context.Context) (queue.Progress, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return k.Run(gctx)
	})

	g.Go(func() error {
		defer cancel()

		return k.RunWorkload(gctx)
	})

	err := g.Wait()
	progress := k.Workload.Progress()

	if err != nil {
		return progress, fmt.Errorf("(kernel-simulate) %w", err)
	}

	slog.Info("Workload finished.",
		"jobs", progress.TotalItems,
		"success", progress.SuccessItems,
		"failed", progress.FailedItems,
		"requeued", progress.RequeuedItems,
		"written", humanize.Bytes(uint64(progress.SuccessItems*k.config.SimRounds*chunkSize)), //nolint:gosec
	)

	return progress, nil
}

// RunWorkload enqueues one job per configured workload thread and processes
// them concurrently. The dispatcher must be running.
func (k *Kernel) RunWorkload(ctx context.Context) error {
	jobs := make([]Job, 0, k.config.SimThreads)

	for i := range k.config.SimThreads {
		p := k.Procs.NewProcess(fmt.Sprintf("job%d", i), schema.Credentials{
			EUID: schema.UID(workloadUIDBase + i),
			EGID: workloadGID,
		})
		jobs = append(jobs, Job{ID: i, Pid: p.Pid})
	}

	k.Workload.Enqueue(jobs...)

	if err := k.Workload.DequeueAndProcessConc(ctx, k.config.SimThreads, func(job Job) queue.Decision {
		return k.runJob(ctx, job)
	}); err != nil {
		return fmt.Errorf("(kernel-workload) %w", err)
	}

	return nil
}

// runJob spawns the thread of the job and waits for it to terminate.
func (k *Kernel) runJob(ctx context.Context, job Job) queue.Decision {
	done := make(chan error, 1)

	_, err := k.Procs.Spawn(ctx, job.Pid, func(ctx context.Context, t *proc.Thread) error {
		w := &worker{k: k, pid: job.Pid, t: t, sliceStart: time.Now()}
		err := w.run(ctx, job)
		done <- err

		return err
	})
	if errors.Is(err, sched.ErrReadyQueueFull) {
		time.Sleep(requeueDelay)

		return queue.DecisionRequeue
	}
	if err != nil {
		slog.Error("Failed to spawn job thread.", "job", job.ID, "err", err)

		return queue.DecisionFailed
	}

	select {
	case err := <-done:
		if err != nil {
			return queue.DecisionFailed
		}

		return queue.DecisionSuccess

	case <-ctx.Done():
		return queue.DecisionFailed
	}
}

// run is the body of a workload thread. It builds a private directory below
// /tmp, fills a file with random data round by round while exercising the
// other devices, verifies it and tears everything down again.
func (w *worker) run(ctx context.Context, job Job) error {
	fs := w.k.VFS
	tid := w.t.Tid

	dir := fmt.Sprintf("%s/job%d", TmpPath, job.ID)
	path := dir + "/data"

	if _, err := fs.Mkdir(w.pid, dir); err != nil {
		return fmt.Errorf("(job-mkdir) %w", err)
	}

	file, _, err := fs.ResolvePath(w.pid, path, vfs.FlagCreate)
	if err != nil {
		return fmt.Errorf("(job-create) %w", err)
	}

	devs := map[string]vfs.NodeNo{}
	for _, name := range []string{"random", "zero", "null", "echo"} {
		no, _, err := fs.ResolvePath(w.pid, DevPath+"/"+name, 0)
		if err != nil {
			return fmt.Errorf("(job-open) %w", err)
		}
		devs[name] = no
	}

	chunk := make([]byte, chunkSize)
	back := make([]byte, chunkSize)
	frames := [][]byte{make([]byte, chunkSize/2), make([]byte, chunkSize/2)} //nolint:mnd

	for round := range w.k.config.SimRounds {
		offset := int64(round * chunkSize)

		n, err := fs.Read(ctx, w.pid, tid, devs["random"], chunk, 0)
		if err != nil {
			return fmt.Errorf("(job-random) %w", err)
		}

		if _, err := fs.Write(ctx, w.pid, tid, file, chunk[:n], offset); err != nil {
			return fmt.Errorf("(job-write) %w", err)
		}

		if err := w.preempt(ctx); err != nil {
			return err
		}

		if _, err := fs.Read(ctx, w.pid, tid, file, back[:n], offset); err != nil {
			return fmt.Errorf("(job-read) %w", err)
		}

		if !bytes.Equal(chunk[:n], back[:n]) {
			return fmt.Errorf("(job-verify) %w: %s at %d", ErrCorrupted, path, offset)
		}

		if _, err := fs.ReadFrames(ctx, w.pid, tid, devs["zero"], frames, 0, chunkSize); err != nil {
			return fmt.Errorf("(job-zero) %w", err)
		}

		if _, err := fs.Write(ctx, w.pid, tid, devs["null"], chunk[:n], 0); err != nil {
			return fmt.Errorf("(job-null) %w", err)
		}

		// The echo buffer is shared by every job, so it may be full.
		if _, err := fs.Write(ctx, w.pid, tid, devs["echo"], chunk[:n], 0); err != nil && !errors.Is(err, vfs.ErrDevice) {
			return fmt.Errorf("(job-echo) %w", err)
		}

		if _, err := fs.Read(ctx, w.pid, tid, devs["echo"], back, 0); err != nil {
			return fmt.Errorf("(job-echo) %w", err)
		}

		if err := w.preempt(ctx); err != nil {
			return err
		}
	}

	info, err := fs.Stat(w.pid, path)
	if err != nil {
		return fmt.Errorf("(job-stat) %w", err)
	}

	if want := int64(w.k.config.SimRounds * chunkSize); info.Size != want {
		return fmt.Errorf("(job-stat) %w: size %d, want %d", ErrCorrupted, info.Size, want)
	}

	if err := fs.Unlink(w.pid, path); err != nil {
		return fmt.Errorf("(job-unlink) %w", err)
	}

	if err := fs.Rmdir(w.pid, dir); err != nil {
		return fmt.Errorf("(job-rmdir) %w", err)
	}

	slog.Debug("Job finished.", "job", job.ID, "tid", tid, "size", humanize.Bytes(uint64(info.Size))) //nolint:gosec

	return nil
}

// preempt yields the CPU once the thread used up its timeslice.
func (w *worker) preempt(ctx context.Context) error {
	if time.Since(w.sliceStart) < w.k.config.Timeslice {
		return nil
	}

	if err := w.k.Procs.Yield(ctx, w.t); err != nil {
		return fmt.Errorf("(job-yield) %w", err)
	}

	w.sliceStart = time.Now()

	return nil
}

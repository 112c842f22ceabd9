package main

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/desertwitch/kcore/internal/kernel"
	"github.com/dustin/go-humanize"
)

const (
	// observerInterval is the interval at which a [statsObserver] samples.
	observerInterval = 100 * time.Millisecond
)

type statsProvider interface {
	Stats() kernel.Stats
}

// peaks are the highest values a [statsObserver] has seen.
type peaks struct {
	alloc    uint64
	ready    int
	blocked  int
	requests int
	nodes    int
}

// statsObserver tracks the peak memory usage of the program and the peak
// utilization of the kernel tables over a period of time.
type statsObserver struct {
	sync.RWMutex
	stats    statsProvider
	peaks    peaks
	stopChan chan struct{}
	doneChan chan struct{}
}

// newStatsObserver returns a pointer to a new running [statsObserver]. It
// needs to be stopped with [statsObserver.Stop].
func newStatsObserver(ctx context.Context, stats statsProvider) *statsObserver {
	obs := &statsObserver{
		stats:    stats,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go obs.monitor(ctx)

	return obs
}

// Peaks returns the recorded peaks.
func (o *statsObserver) Peaks() peaks {
	o.RLock()
	defer o.RUnlock()

	return o.peaks
}

// Stop halts the tracking and logs the recorded peaks.
func (o *statsObserver) Stop() {
	close(o.stopChan)
	<-o.doneChan

	p := o.Peaks()
	slog.Info("Resource usage peaked at:",
		"alloc", humanize.Bytes(p.alloc),
		"readyThreads", p.ready,
		"blockedThreads", p.blocked,
		"requests", humanize.Comma(int64(p.requests)),
		"nodes", humanize.Comma(int64(p.nodes)),
	)
}

func (o *statsObserver) monitor(ctx context.Context) {
	defer close(o.doneChan)

	ticker := time.NewTicker(observerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sample()
		}
	}
}

func (o *statsObserver) sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s := o.stats.Stats()

	o.Lock()
	defer o.Unlock()

	o.peaks.alloc = max(o.peaks.alloc, m.Alloc)
	o.peaks.ready = max(o.peaks.ready, len(s.Sched.Ready))
	o.peaks.blocked = max(o.peaks.blocked, len(s.Sched.Blocked))
	o.peaks.requests = max(o.peaks.requests, s.Requests.InUse)
	o.peaks.nodes = max(o.peaks.nodes, s.Nodes.Slots-s.Nodes.Free)
}

package kernel

import (
	"github.com/desertwitch/kcore/internal/proc"
	"github.com/desertwitch/kcore/internal/queue"
	"github.com/desertwitch/kcore/internal/request"
	"github.com/desertwitch/kcore/internal/sched"
	"github.com/desertwitch/kcore/internal/vfs"
)

// DriverStats describes a running driver.
type DriverStats struct {
	Name    string
	Handled uint64
}

// Stats is a point-in-time description of the whole kernel.
type Stats struct {
	Sched    sched.Snapshot
	Threads  []proc.ThreadInfo
	Requests request.Stats
	Pending  []request.Pending
	Nodes    vfs.Stats
	Drivers  []DriverStats
	Workload queue.Progress
}

// Stats collects the current [Stats]. The parts are sampled one after the
// other and need not be consistent with each other.
func (k *Kernel) Stats() Stats {
	stats := Stats{
		Sched:    k.Sched.Snapshot(),
		Threads:  k.Procs.Threads(),
		Requests: k.Requests.Stats(),
		Pending:  k.Requests.Pending(),
		Nodes:    k.VFS.Stats(),
		Workload: k.Workload.Progress(),
	}

	for _, d := range k.Drivers.Drivers() {
		stats.Drivers = append(stats.Drivers, DriverStats{
			Name:    d.Name(),
			Handled: d.Handled(),
		})
	}

	return stats
}

package ui

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
)

// logBacklog is the number of log lines queued for the monitor.
const logBacklog = 1000

// LogMsg is a single kernel log line. It is typed for identification as
// [tea.Msg] within a [tea.Program].
type LogMsg string

type teaProgramProvider interface {
	Send(msg tea.Msg)
}

// LogWriter is an [io.Writer], for use inside a [slog.Handler], that forwards
// the kernel log to a [tea.Program] line by line. Writers never wait for the
// monitor: lines arriving while the backlog is full are dropped, and their
// number is reported once the backlog has drained.
type LogWriter struct {
	program teaProgramProvider
	lines   chan LogMsg

	done     chan struct{}
	stopOnce sync.Once

	pending atomic.Uint64
	dropped atomic.Uint64
}

// NewLogWriter returns a pointer to a new [LogWriter] queueing up to backlog
// lines. The forwarding is started and needs to be stopped with
// [LogWriter.Stop].
func NewLogWriter(program teaProgramProvider, backlog int) *LogWriter {
	wr := &LogWriter{
		program: program,
		lines:   make(chan LogMsg, backlog),
		done:    make(chan struct{}),
	}

	go wr.forward()

	return wr
}

// Stop stops the forwarding. Lines written afterwards are discarded.
func (wr *LogWriter) Stop() {
	wr.stopOnce.Do(func() {
		close(wr.done)
	})
}

// Dropped returns the number of lines lost to a full backlog.
func (wr *LogWriter) Dropped() uint64 {
	return wr.dropped.Load()
}

func (wr *LogWriter) forward() {
	for {
		select {
		case <-wr.done:
			return
		case line := <-wr.lines:
			wr.program.Send(line)
		}

		if len(wr.lines) > 0 {
			continue
		}

		if n := wr.pending.Swap(0); n > 0 {
			wr.program.Send(LogMsg(fmt.Sprintf("... %s log lines dropped\n", humanize.Comma(int64(n))))) //nolint:gosec
		}
	}
}

// Write queues every line of p for the [tea.Program].
func (wr *LogWriter) Write(p []byte) (int, error) {
	select {
	case <-wr.done:
		return len(p), nil
	default:
	}

	for _, line := range bytes.SplitAfter(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		select {
		case wr.lines <- LogMsg(line):
		default:
			wr.pending.Add(1)
			wr.dropped.Add(1)
		}
	}

	return len(p), nil
}

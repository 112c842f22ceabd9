// Package ui implements a terminal monitor of the kernel using [tea].
package ui

import (
	"context"
	"fmt"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertwitch/kcore/internal/kernel"
)

type statsProvider interface {
	Stats() kernel.Stats
}

// Handler is the principal implementation of the terminal monitor.
type Handler struct {
	stats   statsProvider
	program *tea.Program

	LogWriter *LogWriter

	Ready  atomic.Bool
	Failed atomic.Bool
}

// NewHandler returns a pointer to a new [Handler] showing the stats of the
// provider. A ctrl+c keypress calls cancel.
func NewHandler(ctx context.Context, cancel context.CancelFunc, stats statsProvider) *Handler {
	handler := &Handler{
		stats: stats,
	}

	model := NewTeaModel(handler, cancel)
	handler.program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	handler.LogWriter = NewLogWriter(handler.program, logBacklog)

	return handler
}

// Launch runs the monitor until it is quit or its context is cancelled.
func (uiHandler *Handler) Launch() error {
	defer uiHandler.LogWriter.Stop()

	if _, err := uiHandler.program.Run(); err != nil {
		uiHandler.Failed.Store(true)

		return fmt.Errorf("(ui) %w", err)
	}

	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/desertwitch/kcore/internal/kernel"
	"github.com/desertwitch/kcore/internal/ui"
)

// App ties the kernel and its optional monitor together.
type App struct {
	kernel    *kernel.Kernel
	uiHandler *ui.Handler
	logs      *SlogManager
	dump      io.Writer
}

// NewApp returns a pointer to a new [App]. Without dump writer no tree is
// printed after the simulation.
func NewApp(k *kernel.Kernel, uiHandler *ui.Handler, logs *SlogManager, dump io.Writer) *App {
	return &App{
		kernel:    k,
		uiHandler: uiHandler,
		logs:      logs,
		dump:      dump,
	}
}

// Launch runs the simulation and shuts the kernel down afterwards.
func (app *App) Launch(ctx context.Context) error {
	defer app.kernel.Shutdown()

	progress, err := app.kernel.Simulate(ctx)
	if err != nil {
		return fmt.Errorf("(app) %w", err)
	}

	if progress.FailedItems > 0 {
		return fmt.Errorf("(app) %w: %d of %d jobs", ErrJobsFailed, progress.FailedItems, progress.TotalItems)
	}

	if app.dump != nil {
		if err := app.kernel.VFS.PrintTree(app.dump); err != nil {
			return fmt.Errorf("(app) %w", err)
		}
	}

	return nil
}

// LaunchUI runs the monitor. While it runs, logs are shown inside the monitor
// instead of the terminal.
func (app *App) LaunchUI() error {
	app.logs.AddHandler(uiLogHandler, newTintHandler(app.uiHandler.LogWriter))
	app.logs.RemoveHandler(terminalLogHandler)

	defer func() {
		app.logs.AddHandler(terminalLogHandler, newTintHandler(stdout))
		app.logs.RemoveHandler(uiLogHandler)
	}()

	if err := app.uiHandler.Launch(); err != nil {
		slog.Debug("Monitor stopped.", "err", err)

		return fmt.Errorf("(app-ui) %w", err)
	}

	return nil
}

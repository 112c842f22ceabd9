package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/desertwitch/kcore/internal/configuration"
	"github.com/desertwitch/kcore/internal/kernel"
	"github.com/desertwitch/kcore/internal/ui"
)

const (
	stackTraceBufMax = 1 << 24
	uiPollInterval   = 10 * time.Millisecond
)

//nolint:gochecknoglobals
var (
	ExitCode = 0
	Version  string

	stdout io.Writer = os.Stdout

	uiEnabled  = flag.Bool("ui", true, "enable the UI")
	configFile = flag.String("config", "", "read the configuration from this env file")
	dumpTree   = flag.Bool("dump", false, "print the VFS tree after the simulation")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile = flag.String("memprofile", "", "write memory profile to this file")
)

func setupLogging() *SlogManager {
	logs := NewSlogManager()
	logs.AddHandler(terminalLogHandler, newTintHandler(stdout))

	slog.SetDefault(slog.New(logs))

	return logs
}

func setupSignalHandlers(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		cancel()
	}()

	sigChan2 := make(chan os.Signal, 1)
	signal.Notify(sigChan2, syscall.SIGUSR1)
	go func() {
		for range sigChan2 {
			buf := make([]byte, stackTraceBufMax)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()

	sigChan3 := make(chan os.Signal, 1)
	signal.Notify(sigChan3, syscall.SIGUSR2)
	go func() {
		for range sigChan3 {
			runtime.GC()
		}
	}()
}

func loadConfig() (kernel.Config, error) {
	cfg := kernel.DefaultConfig()
	if Version != "" {
		cfg.Release = Version
	}

	var files []string
	if configFile != nil && *configFile != "" {
		files = append(files, *configFile)
	}

	configHandler := configuration.NewHandler(&configuration.GodotenvProvider{})
	if err := configHandler.Load(&cfg, files...); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func startApp(ctx context.Context, wg *sync.WaitGroup, app *App) {
	defer wg.Done()

	if app.uiHandler != nil {
		slog.Info("Waiting for UI...")

		ticker := time.NewTicker(uiPollInterval)
		defer ticker.Stop()

		for !app.uiHandler.Ready.Load() && !app.uiHandler.Failed.Load() {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}

	if err := app.Launch(ctx); err != nil {
		slog.Error("Simulation failed.", "err", err)
		ExitCode = 1
	}
}

func startUI(wg *sync.WaitGroup, app *App) {
	defer wg.Done()

	if app.uiHandler != nil {
		if err := app.LaunchUI(); err != nil {
			slog.Error("UI failure: falling back to terminal.", "err", err)
		}
	}
}

func main() {
	defer func() {
		os.Exit(ExitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flag.Parse()
	logs := setupLogging()
	setupSignalHandlers(cancel)

	cpuProfiler := newCPUProfiler(ctx, cpuprofile)
	defer cpuProfiler.Stop()

	allocProfiler := newAllocProfiler(ctx, memprofile)
	defer allocProfiler.Stop()

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to read the configuration.",
			"err", err,
		)
		ExitCode = 1

		return
	}

	k, err := kernel.Boot(cfg)
	if err != nil {
		slog.Error("Failed to boot the kernel.",
			"err", err,
		)
		ExitCode = 1

		return
	}

	observer := newStatsObserver(ctx, k)
	defer observer.Stop()

	var uiHandler *ui.Handler
	if uiEnabled != nil && *uiEnabled {
		uiHandler = ui.NewHandler(ctx, cancel, k)
	}

	// The tree is printed once the UI gave the terminal back.
	var dump *bytes.Buffer
	var dumpWriter io.Writer
	if dumpTree != nil && *dumpTree {
		dump = &bytes.Buffer{}
		dumpWriter = dump
	}

	var wg sync.WaitGroup
	app := NewApp(k, uiHandler, logs, dumpWriter)

	wg.Add(1)
	go startUI(&wg, app)

	wg.Add(1)
	go startApp(ctx, &wg, app)

	wg.Wait()

	if dump != nil {
		_, _ = dump.WriteTo(stdout)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fswatch/internal/config"
	"fswatch/internal/event"
	"fswatch/internal/fsutil"
	"fswatch/internal/logging"
	"fswatch/internal/metrics"
	"fswatch/internal/notifier"
	"fswatch/internal/reload"
	"fswatch/internal/runner"
	"fswatch/internal/version"
	"fswatch/internal/watch"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

const busHistorySize = 32

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	return runWithSignals(args, out, errOut, nil)
}

// runWithSignals is the real program body. Tests inject their own
// signal channel; main passes nil to hook up the OS signals.
func runWithSignals(args []string, out, errOut io.Writer, signalCh <-chan os.Signal) int {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(errOut, "fswatch: %v\n", err)
		return exitUsage
	}
	if cfg.ShowVersion {
		fmt.Fprintln(out, "fswatch "+version.String())
		return exitOK
	}

	logBuffer := logging.NewLogBuffer(logging.DefaultBufferSize)
	logger := logging.NewLogger(logBuffer, cfg.LogLevel, errOut)

	targets, err := fsutil.ResolveTargets(cfg.Targets)
	if err != nil {
		fmt.Fprintf(errOut, "fswatch: %v\n", err)
		return exitUsage
	}

	filter, err := watch.NewFilter(cfg.Exclude, targets)
	if err != nil {
		fmt.Fprintf(errOut, "fswatch: %v\n", err)
		return exitUsage
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if signalCh == nil {
		notified, stopNotify := notifyShutdownSignals()
		defer stopNotify()
		signalCh = notified
	}
	stopSignals := watchShutdownSignals(logger, cancel, signalCh)
	defer stopSignals()

	bus := event.NewBus(ctx, event.BusOptions{
		Name:        "fswatch",
		HistorySize: busHistorySize,
	})
	defer bus.Close()

	dispatcher, err := runner.NewDispatcher(runner.Options{
		Command:  cfg.Command,
		Policy:   cfg.Policy,
		Grace:    cfg.Grace,
		UsePTY:   cfg.PTY,
		Logger:   logger,
		Registry: metrics.Default,
		Bus:      bus,
	})
	if err != nil {
		fmt.Fprintf(errOut, "fswatch: %v\n", err)
		return exitUsage
	}

	notif, err := notifier.New(notifier.Options{
		Targets:  targets,
		Logger:   logger,
		Registry: metrics.Default,
		Bus:      bus,
	})
	if err != nil {
		fmt.Fprintf(errOut, "fswatch: %v\n", err)
		return exitRuntime
	}
	defer notif.Close()

	if cfg.ReloadAddr != "" {
		server, err := reload.NewServer(reload.Options{
			Addr:      cfg.ReloadAddr,
			Logger:    logger,
			Registry:  metrics.Default,
			Bus:       bus,
			LogBuffer: logBuffer,
			Status:    dispatcher,
			Targets:   cfg.Targets,
			Exclude:   cfg.Exclude,
		})
		if err == nil {
			err = server.Start()
		}
		if err != nil {
			fmt.Fprintf(errOut, "fswatch: %v\n", err)
			return exitRuntime
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	loop, err := watch.NewLoop(watch.LoopOptions{
		Events:        notif.Events(),
		Errors:        notif.Errors(),
		Filter:        filter,
		Debounce:      cfg.Debounce,
		Runner:        dispatcher,
		Logger:        logger,
		Registry:      metrics.Default,
		Bus:           bus,
		ShutdownGrace: cfg.Grace + 5*time.Second,
		InitialRun:    cfg.InitialRun,
	})
	if err != nil {
		fmt.Fprintf(errOut, "fswatch: %v\n", err)
		return exitRuntime
	}

	fmt.Fprintf(out, "fswatch: watching %s for changes...\n", strings.Join(cfg.Targets, ", "))
	logger.Info("watching", map[string]string{
		"targets":  strings.Join(cfg.Targets, ", "),
		"command":  strings.Join(cfg.Command, " "),
		"debounce": cfg.Debounce.String(),
		"policy":   string(cfg.Policy),
	})

	if err := loop.Run(ctx); err != nil {
		fmt.Fprintf(errOut, "fswatch: %v\n", err)
		return exitRuntime
	}
	return exitOK
}

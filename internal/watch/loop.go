package watch

import (
	"context"
	"errors"
	"strconv"
	"time"

	"fswatch/internal/event"
	"fswatch/internal/logging"
	"fswatch/internal/metrics"
	"fswatch/internal/runner"
)

const defaultShutdownGrace = 10 * time.Second

var ErrNotifierClosed = errors.New("filesystem notifier closed")

// Runner consumes settle signals and reports child process exits back
// into the control stream.
type Runner interface {
	OnSettle(paths []string)
	HandleExit(result runner.ExitResult)
	Exits() <-chan runner.ExitResult
	Shutdown(ctx context.Context) error
}

// LoopOptions wires the loop to its collaborators.
type LoopOptions struct {
	Events        <-chan RawEvent
	Errors        <-chan error
	Filter        *Filter
	Debounce      time.Duration
	Runner        Runner
	Logger        *logging.Logger
	Registry      *metrics.Registry
	Bus           *event.Bus
	ShutdownGrace time.Duration

	// InitialRun triggers one command run on startup, before any
	// filesystem event arrives.
	InitialRun bool
}

// Loop is the top-level driver. It owns the debouncer and the dispatcher
// state exclusively: raw events, the debounce timer, child exits and
// cancellation all feed one select, so no shared state needs a lock.
type Loop struct {
	events        <-chan RawEvent
	errors        <-chan error
	filter        *Filter
	debouncer     *Debouncer
	runner        Runner
	logger        *logging.Logger
	registry      *metrics.Registry
	bus           *event.Bus
	shutdownGrace time.Duration
	initialRun    bool
}

func NewLoop(options LoopOptions) (*Loop, error) {
	if options.Events == nil {
		return nil, errors.New("event source is required")
	}
	if options.Runner == nil {
		return nil, errors.New("runner is required")
	}
	filter := options.Filter
	if filter == nil {
		filter = &Filter{}
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	grace := options.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	return &Loop{
		events:        options.Events,
		errors:        options.Errors,
		filter:        filter,
		debouncer:     NewDebouncer(options.Debounce),
		runner:        options.Runner,
		logger:        options.Logger,
		registry:      registry,
		bus:           options.Bus,
		shutdownGrace: grace,
		initialRun:    options.InitialRun,
	}, nil
}

// Run drives the loop until the context is cancelled or the notifier
// fails. Per-run errors never unwind it, availability of the watch wins
// over any single run.
func (loop *Loop) Run(ctx context.Context) error {
	if loop == nil {
		return errors.New("loop is nil")
	}
	defer loop.debouncer.Stop()

	if loop.initialRun {
		loop.logger.Info("initial run", nil)
		loop.runner.OnSettle(nil)
	}

	for {
		select {
		case <-ctx.Done():
			return loop.shutdown(nil)
		case raw, ok := <-loop.events:
			if !ok {
				return loop.shutdown(ErrNotifierClosed)
			}
			loop.handleRaw(raw)
		case err := <-loop.errors:
			if err == nil {
				continue
			}
			loop.logger.Error("watch failed", map[string]string{"error": err.Error()})
			loop.bus.Publish(event.NewWatchEvent("", "watch_failed"))
			return loop.shutdown(err)
		case <-loop.debouncer.C():
			loop.handleSettle()
		case result := <-loop.runner.Exits():
			loop.runner.HandleExit(result)
		}
	}
}

func (loop *Loop) handleRaw(raw RawEvent) {
	for _, path := range raw.Paths {
		loop.registry.IncEventSeen()
		if !loop.filter.Relevant(path) {
			loop.registry.IncEventDiscarded()
			continue
		}
		loop.logger.Debug("change event", map[string]string{
			"op":   string(raw.Op),
			"path": path,
		})
		now := raw.Time
		if now.IsZero() {
			now = time.Now()
		}
		loop.debouncer.Observe(path, now)
	}
}

func (loop *Loop) handleSettle() {
	burst := loop.debouncer.Settle()
	loop.registry.IncBurstSettled()
	loop.bus.Publish(event.NewChangeEvent(burst.Paths))
	loop.logger.Info("change settled", map[string]string{
		"events": strconv.Itoa(burst.Events),
		"paths":  strconv.Itoa(len(burst.Paths)),
		"span":   burst.LastAt.Sub(burst.FirstAt).Round(time.Millisecond).String(),
	})
	loop.runner.OnSettle(burst.Paths)
}

func (loop *Loop) shutdown(cause error) error {
	loop.debouncer.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), loop.shutdownGrace)
	defer cancel()
	if err := loop.runner.Shutdown(ctx); err != nil {
		loop.logger.Warn("runner shutdown incomplete", map[string]string{"error": err.Error()})
		if cause == nil {
			cause = err
		}
	}
	return cause
}

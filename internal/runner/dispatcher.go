package runner

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"fswatch/internal/event"
	"fswatch/internal/logging"
	"fswatch/internal/metrics"
	"fswatch/internal/process"
)

// Policy decides what a settle does while a run is already in flight.
type Policy string

const (
	// PolicySerialize waits for the active run and coalesces every settle
	// that arrived meanwhile into exactly one follow-up run.
	PolicySerialize Policy = "serialize"
	// PolicyRestart stops the active run and starts a fresh one.
	PolicyRestart Policy = "restart"
)

func ParsePolicy(value string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "serialize", "queue", "":
		return PolicySerialize, true
	case "restart":
		return PolicyRestart, true
	default:
		return "", false
	}
}

// State is the dispatcher's externally visible run state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// RunHandle represents one invocation of the target command. It is owned
// by the dispatcher and discarded once its exit is observed.
type RunHandle struct {
	ID        uint64
	PID       int
	PGID      int
	Command   string
	Paths     []string
	StartedAt time.Time
	wait      func(context.Context) error
}

// ExitResult reports a finished run back into the control stream.
type ExitResult struct {
	RunID    uint64
	PID      int
	Paths    []string
	Code     int
	Signaled bool
	Err      error
	Duration time.Duration
}

const defaultGrace = 5 * time.Second

// Options configures a Dispatcher.
type Options struct {
	Command  []string
	Dir      string
	Env      []string
	Policy   Policy
	Grace    time.Duration
	UsePTY   bool
	Logger   *logging.Logger
	Registry *metrics.Registry
	Bus      *event.Bus
	Procs    *process.Registry
}

// Dispatcher owns the run lifecycle: it starts the command on settle,
// observes exits, and applies the busy policy. All state transitions
// happen on the loop goroutine; only State is published for readers
// outside it.
type Dispatcher struct {
	command      []string
	display      string
	dir          string
	env          []string
	policy       Policy
	grace        time.Duration
	usePTY       bool
	logger       *logging.Logger
	registry     *metrics.Registry
	bus          *event.Bus
	procs        *process.Registry
	active       *RunHandle
	stopping     bool
	rerunPending bool
	rerunPaths   []string
	nextRunID    uint64
	exits        chan ExitResult
	stateValue   atomic.Value
}

func NewDispatcher(options Options) (*Dispatcher, error) {
	if len(options.Command) == 0 || strings.TrimSpace(options.Command[0]) == "" {
		return nil, errors.New("command is required")
	}
	policy := options.Policy
	if policy == "" {
		policy = PolicySerialize
	}
	grace := options.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	procs := options.Procs
	if procs == nil {
		procs = process.NewRegistry()
	}
	dispatcher := &Dispatcher{
		command:  options.Command,
		display:  displayCommand(options.Command),
		dir:      options.Dir,
		env:      options.Env,
		policy:   policy,
		grace:    grace,
		usePTY:   options.UsePTY,
		logger:   options.Logger,
		registry: registry,
		bus:      options.Bus,
		procs:    procs,
		exits:    make(chan ExitResult, 8),
	}
	dispatcher.setState(StateIdle)
	return dispatcher, nil
}

// Exits delivers finished runs; the loop joins this channel into its
// select alongside filesystem events and the debounce timer.
func (d *Dispatcher) Exits() <-chan ExitResult {
	if d == nil {
		return nil
	}
	return d.exits
}

func (d *Dispatcher) State() State {
	if d == nil {
		return StateIdle
	}
	if value := d.stateValue.Load(); value != nil {
		return value.(State)
	}
	return StateIdle
}

func (d *Dispatcher) setState(state State) {
	d.stateValue.Store(state)
}

// Command returns the display form of the configured command.
func (d *Dispatcher) Command() string {
	if d == nil {
		return ""
	}
	return d.display
}

func (d *Dispatcher) Policy() Policy {
	if d == nil {
		return PolicySerialize
	}
	return d.policy
}

// OnSettle reacts to a settled burst. With no run active it starts one.
// While busy it records the settle, never queueing more than one rerun,
// and under the restart policy it also begins stopping the active run.
func (d *Dispatcher) OnSettle(paths []string) {
	if d == nil {
		return
	}
	if d.active != nil {
		d.rerunPending = true
		d.rerunPaths = mergePaths(d.rerunPaths, paths)
		d.registry.IncRunCoalesced()
		if d.policy == PolicyRestart {
			d.stopActive()
			return
		}
		d.logger.Debug("run in flight, rerun queued", map[string]string{
			"run": strconv.FormatUint(d.active.ID, 10),
		})
		return
	}
	d.start(paths)
}

// mergePaths folds newly settled paths into the pending rerun set,
// keeping first-seen order and dropping duplicates.
func mergePaths(pending, paths []string) []string {
	if len(paths) == 0 {
		return pending
	}
	seen := make(map[string]struct{}, len(pending)+len(paths))
	for _, p := range pending {
		seen[p] = struct{}{}
	}
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		pending = append(pending, p)
	}
	return pending
}

func (d *Dispatcher) start(paths []string) {
	handle, err := d.spawn(paths)
	if err != nil {
		d.registry.IncSpawnFailure()
		d.logger.Error("command failed to start", map[string]string{
			"command": d.display,
			"error":   err.Error(),
		})
		return
	}

	d.active = handle
	d.stopping = false
	d.setState(StateRunning)
	d.registry.IncRunStarted()
	d.bus.Publish(event.NewRunStarted(handle.ID, handle.Command, handle.Paths))

	fields := map[string]string{
		"command": handle.Command,
		"pid":     strconv.Itoa(handle.PID),
		"run":     strconv.FormatUint(handle.ID, 10),
	}
	if len(paths) > 0 {
		fields["paths"] = strconv.Itoa(len(paths))
	}
	d.logger.Info("command started", fields)
}

// HandleExit finishes a run: report, release the handle, and start the
// coalesced follow-up run if any settles arrived while busy.
func (d *Dispatcher) HandleExit(result ExitResult) {
	if d == nil {
		return
	}
	d.procs.Unregister(result.PID)

	disposition := "ok"
	switch {
	case result.Signaled:
		disposition = "killed"
	case result.Code != 0:
		disposition = "failed"
	}
	d.registry.RecordRun(disposition, result.Duration)
	d.bus.Publish(event.NewRunExited(result.RunID, d.display, result.Paths, result.Code, result.Signaled, result.Duration))

	fields := map[string]string{
		"run":      strconv.FormatUint(result.RunID, 10),
		"code":     strconv.Itoa(result.Code),
		"duration": result.Duration.Round(time.Millisecond).String(),
	}
	switch {
	case result.Err != nil:
		fields["error"] = result.Err.Error()
		d.logger.Warn("command wait failed", fields)
	case result.Signaled:
		d.logger.Info("command terminated by signal", fields)
	case result.Code != 0:
		d.logger.Info("command exited", fields)
	default:
		d.logger.Info("command exited", fields)
	}

	if d.active != nil && d.active.ID == result.RunID {
		d.active = nil
	}
	d.stopping = false
	d.setState(StateIdle)

	if d.rerunPending {
		d.rerunPending = false
		paths := d.rerunPaths
		d.rerunPaths = nil
		d.start(paths)
	}
}

// stopActive asks the in-flight run to die so the pending rerun can take
// its place. The exit still arrives through Exits, which keeps run
// starts strictly serialized.
func (d *Dispatcher) stopActive() {
	if d.active == nil || d.stopping {
		return
	}
	d.stopping = true
	d.setState(StateStopping)
	handle := d.active
	d.logger.Info("stopping superseded run", map[string]string{
		"run": strconv.FormatUint(handle.ID, 10),
		"pid": strconv.Itoa(handle.PID),
	})
	grace := d.grace
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), grace+defaultGrace)
		defer cancel()
		if err := process.Stop(ctx, handle.PID, handle.PGID, grace, handle.wait); err != nil && !errors.Is(err, process.ErrProcessNotFound) {
			d.logger.Warn("stop failed", map[string]string{
				"run":   strconv.FormatUint(handle.ID, 10),
				"error": err.Error(),
			})
		}
	}()
}

// Shutdown terminates any in-flight run and every straggler child. It is
// called after the loop stopped selecting, so no more exits will be
// consumed from the channel.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.rerunPending = false
	d.rerunPaths = nil
	var shutdownErr error
	if d.active != nil {
		handle := d.active
		d.active = nil
		err := process.Stop(ctx, handle.PID, handle.PGID, d.grace, handle.wait)
		if err != nil && !errors.Is(err, process.ErrProcessNotFound) {
			shutdownErr = err
		} else {
			d.logger.Info("command stopped", map[string]string{
				"run": strconv.FormatUint(handle.ID, 10),
				"pid": strconv.Itoa(handle.PID),
			})
		}
		d.procs.Unregister(handle.PID)
	}
	d.stopping = false
	d.setState(StateIdle)
	if err := d.procs.StopAll(ctx); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	return shutdownErr
}

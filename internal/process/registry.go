package process

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrProcessNotFound = errors.New("process not running")

const defaultStopTimeout = 5 * time.Second

type entry struct {
	pid   int
	pgid  int
	grace time.Duration
	wait  func(context.Context) error
}

// Registry tracks live child processes so shutdown can stop every one of
// them, including an old child still draining while its replacement runs.
type Registry struct {
	mu      sync.Mutex
	entries map[int]entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[int]entry),
	}
}

// Register records a child for StopAll. wait reaps the process when
// provided; without it StopAll polls for the pid to disappear.
func (r *Registry) Register(pid, pgid int, grace time.Duration, wait func(context.Context) error) {
	if r == nil || pid <= 0 {
		return
	}
	r.mu.Lock()
	r.entries[pid] = entry{
		pid:   pid,
		pgid:  pgid,
		grace: grace,
		wait:  wait,
	}
	r.mu.Unlock()
}

func (r *Registry) Unregister(pid int) {
	if r == nil || pid <= 0 {
		return
	}
	r.mu.Lock()
	delete(r.entries, pid)
	r.mu.Unlock()
}

func (r *Registry) StopAll(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.Lock()
	entries := make([]entry, 0, len(r.entries))
	for _, item := range r.entries {
		entries = append(entries, item)
	}
	r.mu.Unlock()

	var stopErr error
	for _, item := range entries {
		if err := stopProcess(ctx, item.pid, item.pgid, item.grace, item.wait); err != nil && !errors.Is(err, ErrProcessNotFound) {
			stopErr = errors.Join(stopErr, err)
		}
	}
	if len(entries) > 0 {
		r.mu.Lock()
		for _, item := range entries {
			delete(r.entries, item.pid)
		}
		r.mu.Unlock()
	}
	return stopErr
}

// Stop terminates a single process group: TERM, a grace period, then KILL.
func Stop(ctx context.Context, pid, pgid int, grace time.Duration, wait func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return stopProcess(ctx, pid, pgid, grace, wait)
}

// Alive reports whether the process still exists.
func Alive(pid int) bool {
	return isProcessAlive(pid)
}

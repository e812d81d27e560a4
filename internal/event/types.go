package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

// ChangeEvent represents a settled burst of filesystem changes.
type ChangeEvent struct {
	EventType  string
	Paths      []string
	OccurredAt time.Time
}

func NewChangeEvent(paths []string) ChangeEvent {
	return ChangeEvent{
		EventType:  "change",
		Paths:      paths,
		OccurredAt: time.Now().UTC(),
	}
}

func (e ChangeEvent) Type() string {
	return e.EventType
}

func (e ChangeEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// RunEvent captures command run lifecycle changes. Paths holds the
// settled change paths that triggered the run, empty for an initial run.
type RunEvent struct {
	EventType  string
	RunID      uint64
	Command    string
	Paths      []string
	ExitCode   int
	Signaled   bool
	Duration   time.Duration
	OccurredAt time.Time
}

func NewRunStarted(runID uint64, command string, paths []string) RunEvent {
	return RunEvent{
		EventType:  "run_started",
		RunID:      runID,
		Command:    command,
		Paths:      paths,
		OccurredAt: time.Now().UTC(),
	}
}

func NewRunExited(runID uint64, command string, paths []string, exitCode int, signaled bool, duration time.Duration) RunEvent {
	return RunEvent{
		EventType:  "run_exited",
		RunID:      runID,
		Command:    command,
		Paths:      paths,
		ExitCode:   exitCode,
		Signaled:   signaled,
		Duration:   duration,
		OccurredAt: time.Now().UTC(),
	}
}

func (e RunEvent) Type() string {
	return e.EventType
}

func (e RunEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// WatchEvent captures watch subscription lifecycle changes.
type WatchEvent struct {
	EventType  string
	Path       string
	OccurredAt time.Time
}

func NewWatchEvent(path, eventType string) WatchEvent {
	return WatchEvent{
		EventType:  eventType,
		Path:       path,
		OccurredAt: time.Now().UTC(),
	}
}

func (e WatchEvent) Type() string {
	return e.EventType
}

func (e WatchEvent) Timestamp() time.Time {
	return e.OccurredAt
}

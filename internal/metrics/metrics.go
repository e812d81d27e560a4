package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Registry collects counters for the watch pipeline. All methods are safe
// for concurrent use and tolerate a nil receiver.
type Registry struct {
	eventsSeen      atomic.Int64
	eventsDiscarded atomic.Int64
	burstsSettled   atomic.Int64
	runsStarted     atomic.Int64
	runsCoalesced   atomic.Int64
	spawnFailures   atomic.Int64
	watchRestarts   atomic.Int64
	runs            sync.Map
}

type runStats struct {
	count         atomic.Int64
	durationNanos atomic.Int64
}

// Snapshot is a point-in-time copy of the registry counters.
type Snapshot struct {
	EventsSeen      int64 `json:"events_seen"`
	EventsDiscarded int64 `json:"events_discarded"`
	BurstsSettled   int64 `json:"bursts_settled"`
	RunsStarted     int64 `json:"runs_started"`
	RunsCoalesced   int64 `json:"runs_coalesced"`
	SpawnFailures   int64 `json:"spawn_failures"`
	WatchRestarts   int64 `json:"watch_restarts"`
}

var Default = &Registry{}

func (r *Registry) IncEventSeen() {
	if r == nil {
		return
	}
	r.eventsSeen.Add(1)
}

func (r *Registry) IncEventDiscarded() {
	if r == nil {
		return
	}
	r.eventsDiscarded.Add(1)
}

func (r *Registry) IncBurstSettled() {
	if r == nil {
		return
	}
	r.burstsSettled.Add(1)
}

func (r *Registry) IncRunStarted() {
	if r == nil {
		return
	}
	r.runsStarted.Add(1)
}

func (r *Registry) IncRunCoalesced() {
	if r == nil {
		return
	}
	r.runsCoalesced.Add(1)
}

func (r *Registry) IncSpawnFailure() {
	if r == nil {
		return
	}
	r.spawnFailures.Add(1)
}

func (r *Registry) IncWatchRestart() {
	if r == nil {
		return
	}
	r.watchRestarts.Add(1)
}

// RecordRun tracks a finished child process under its result label,
// "ok", "failed" or "killed".
func (r *Registry) RecordRun(result string, duration time.Duration) {
	if r == nil {
		return
	}
	if strings.TrimSpace(result) == "" {
		result = "unknown"
	}
	stats := r.runStats(result)
	stats.count.Add(1)
	stats.durationNanos.Add(duration.Nanoseconds())
}

func (r *Registry) SnapshotCounters() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		EventsSeen:      r.eventsSeen.Load(),
		EventsDiscarded: r.eventsDiscarded.Load(),
		BurstsSettled:   r.burstsSettled.Load(),
		RunsStarted:     r.runsStarted.Load(),
		RunsCoalesced:   r.runsCoalesced.Load(),
		SpawnFailures:   r.spawnFailures.Load(),
		WatchRestarts:   r.watchRestarts.Load(),
	}
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "fswatch_events_total", "Total filesystem events observed", r.eventsSeen.Load())
	writeCounter(writer, "fswatch_events_discarded_total", "Total events discarded by the pattern filter", r.eventsDiscarded.Load())
	writeCounter(writer, "fswatch_bursts_total", "Total debounced bursts settled", r.burstsSettled.Load())
	writeCounter(writer, "fswatch_runs_started_total", "Total command runs started", r.runsStarted.Load())
	writeCounter(writer, "fswatch_runs_coalesced_total", "Total settles coalesced into a pending rerun", r.runsCoalesced.Load())
	writeCounter(writer, "fswatch_spawn_failures_total", "Total command spawn failures", r.spawnFailures.Load())
	writeCounter(writer, "fswatch_watch_restarts_total", "Total watch resubscriptions", r.watchRestarts.Load())

	results := r.runResults()
	sort.Strings(results)

	writeHelp(writer, "fswatch_run_duration_seconds", "Command run duration in seconds")
	fmt.Fprintln(writer, "# TYPE fswatch_run_duration_seconds summary")

	for _, result := range results {
		stats := r.runStats(result)
		label := formatLabel(result)
		durationSeconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fmt.Fprintf(writer, "fswatch_run_duration_seconds_sum{result=%s} %.6f\n", label, durationSeconds)
		fmt.Fprintf(writer, "fswatch_run_duration_seconds_count{result=%s} %d\n", label, stats.count.Load())
	}

	return nil
}

func (r *Registry) runStats(result string) *runStats {
	value, _ := r.runs.LoadOrStore(result, &runStats{})
	return value.(*runStats)
}

func (r *Registry) runResults() []string {
	if r == nil {
		return nil
	}
	var results []string
	r.runs.Range(func(key, value interface{}) bool {
		if result, ok := key.(string); ok {
			results = append(results, result)
		}
		return true
	})
	return results
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

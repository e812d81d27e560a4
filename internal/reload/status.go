package reload

import (
	"net/http"
	"strconv"
	"time"

	"fswatch/internal/event"
	"fswatch/internal/logging"
	"fswatch/internal/metrics"
	"fswatch/internal/version"
)

type statusResponse struct {
	Version    version.Info     `json:"version"`
	Targets    []string         `json:"targets"`
	Exclude    string           `json:"exclude,omitempty"`
	State      string           `json:"state"`
	Command    string           `json:"command"`
	Policy     string           `json:"policy"`
	Counters   metrics.Snapshot `json:"counters"`
	Events     busStats         `json:"events"`
	RecentRuns []runPayload     `json:"recent_runs"`
	ServerTime time.Time        `json:"server_time"`
}

// busStats reports event fan-out health: dropped grows when a stream
// subscriber stops draining its connection.
type busStats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
}

type changePayload struct {
	Type  string    `json:"type"`
	Paths []string  `json:"paths"`
	Time  time.Time `json:"time"`
}

type runPayload struct {
	Type       string    `json:"type"`
	RunID      uint64    `json:"run_id"`
	Command    string    `json:"command"`
	Paths      []string  `json:"paths,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Signaled   bool      `json:"signaled,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Time       time.Time `json:"time"`
}

type watchPayload struct {
	Type string    `json:"type"`
	Path string    `json:"path,omitempty"`
	Time time.Time `json:"time"`
}

// buildEventPayload maps bus events onto their wire form. Unknown event
// types are skipped rather than serialized with reflection.
func buildEventPayload(value event.Event) (any, bool) {
	switch typed := value.(type) {
	case event.RunEvent:
		return buildRunPayload(typed), true
	case event.ChangeEvent:
		return changePayload{
			Type:  typed.EventType,
			Paths: typed.Paths,
			Time:  typed.OccurredAt,
		}, true
	case event.WatchEvent:
		return watchPayload{
			Type: typed.EventType,
			Path: typed.Path,
			Time: typed.OccurredAt,
		}, true
	default:
		return nil, false
	}
}

func buildRunPayload(run event.RunEvent) runPayload {
	payload := runPayload{
		Type:    run.EventType,
		RunID:   run.RunID,
		Command: run.Command,
		Paths:   run.Paths,
		Time:    run.OccurredAt,
	}
	if run.EventType == "run_exited" {
		code := run.ExitCode
		payload.ExitCode = &code
		payload.Signaled = run.Signaled
		payload.DurationMS = run.Duration.Milliseconds()
	}
	return payload
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := statusResponse{
		Version:    version.GetInfo(),
		Targets:    s.targets,
		Exclude:    s.exclude,
		Counters:   s.registry.SnapshotCounters(),
		RecentRuns: s.recentRuns(),
		ServerTime: time.Now().UTC(),
	}
	if s.status != nil {
		response.State = string(s.status.State())
		response.Command = s.status.Command()
		response.Policy = string(s.status.Policy())
	}
	response.Events.Published, response.Events.Dropped = s.bus.Stats()

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) recentRuns() []runPayload {
	runs := []runPayload{}
	for _, value := range s.bus.DumpHistory() {
		run, ok := value.(event.RunEvent)
		if !ok || run.EventType != "run_exited" {
			continue
		}
		runs = append(runs, buildRunPayload(run))
	}
	return runs
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.logBuffer == nil {
		http.Error(w, "log buffer unavailable", http.StatusServiceUnavailable)
		return
	}

	minLevel := logging.Level("")
	if rawLevel := r.URL.Query().Get("level"); rawLevel != "" {
		level, ok := logging.ParseLevel(rawLevel)
		if !ok {
			http.Error(w, "unknown level", http.StatusBadRequest)
			return
		}
		minLevel = level
	}

	limit := 0
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, s.logBuffer.Filtered(minLevel, limit))
}

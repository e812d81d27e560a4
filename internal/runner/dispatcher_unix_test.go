//go:build !windows

package runner

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"fswatch/internal/event"
	"fswatch/internal/logging"
	"fswatch/internal/metrics"
	"fswatch/internal/process"
)

func newTestDispatcher(t *testing.T, command []string, policy Policy) (*Dispatcher, *metrics.Registry) {
	t.Helper()
	registry := &metrics.Registry{}
	logger := logging.NewLogger(logging.NewLogBuffer(16), logging.LevelDebug, io.Discard)
	dispatcher, err := NewDispatcher(Options{
		Command:  command,
		Policy:   policy,
		Grace:    time.Second,
		Logger:   logger,
		Registry: registry,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher, registry
}

func receiveExit(t *testing.T, dispatcher *Dispatcher) ExitResult {
	t.Helper()
	select {
	case result := <-dispatcher.Exits():
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit")
	}
	return ExitResult{}
}

func TestDispatcherRunsCommandOnSettle(t *testing.T) {
	dispatcher, registry := newTestDispatcher(t, []string{"true"}, PolicySerialize)

	dispatcher.OnSettle([]string{"main.go"})
	if dispatcher.State() != StateRunning {
		t.Fatalf("expected running state, got %q", dispatcher.State())
	}

	result := receiveExit(t, dispatcher)
	dispatcher.HandleExit(result)

	if result.Code != 0 || result.Signaled {
		t.Fatalf("unexpected exit: %+v", result)
	}
	if dispatcher.State() != StateIdle {
		t.Fatalf("expected idle state, got %q", dispatcher.State())
	}
	if snapshot := registry.SnapshotCounters(); snapshot.RunsStarted != 1 {
		t.Fatalf("expected 1 run started, got %d", snapshot.RunsStarted)
	}
}

func TestDispatcherReportsExitCode(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, []string{"sh", "-c", "exit 3"}, PolicySerialize)

	dispatcher.OnSettle(nil)
	result := receiveExit(t, dispatcher)
	dispatcher.HandleExit(result)

	if result.Code != 3 {
		t.Fatalf("expected exit code 3, got %d", result.Code)
	}
	if result.Signaled {
		t.Fatal("expected normal exit, got signaled")
	}
	if result.Err != nil {
		t.Fatalf("non-zero exit must not surface an error, got %v", result.Err)
	}
}

func TestDispatcherCoalescesSettlesWhileBusy(t *testing.T) {
	dispatcher, registry := newTestDispatcher(t, []string{"sleep", "0.2"}, PolicySerialize)

	bus := event.NewBus(context.Background(), event.BusOptions{})
	t.Cleanup(bus.Close)
	dispatcher.bus = bus
	started, cancel := bus.SubscribeTypes("run_started")
	defer cancel()

	dispatcher.OnSettle([]string{"a.go"})
	dispatcher.OnSettle([]string{"b.go"})
	dispatcher.OnSettle([]string{"c.go"})
	dispatcher.OnSettle([]string{"d.go"})

	first := receiveExit(t, dispatcher)
	dispatcher.HandleExit(first)
	if dispatcher.State() != StateRunning {
		t.Fatalf("expected follow-up run, state %q", dispatcher.State())
	}

	second := receiveExit(t, dispatcher)
	dispatcher.HandleExit(second)
	if dispatcher.State() != StateIdle {
		t.Fatalf("expected idle after follow-up, state %q", dispatcher.State())
	}

	select {
	case result := <-dispatcher.Exits():
		t.Fatalf("unexpected third run: %+v", result)
	case <-time.After(300 * time.Millisecond):
	}

	firstStart, ok := event.ReceiveWithTimeout(t, started, time.Second).(event.RunEvent)
	if !ok || len(firstStart.Paths) != 1 || firstStart.Paths[0] != "a.go" {
		t.Fatalf("expected first start for a.go, got %+v", firstStart)
	}
	rerunStart, ok := event.ReceiveWithTimeout(t, started, time.Second).(event.RunEvent)
	if !ok {
		t.Fatal("expected a run event for the follow-up start")
	}
	if got := strings.Join(rerunStart.Paths, ","); got != "b.go,c.go,d.go" {
		t.Fatalf("expected follow-up run to carry coalesced paths, got %q", got)
	}
	select {
	case extra := <-started:
		t.Fatalf("unexpected extra start event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	snapshot := registry.SnapshotCounters()
	if snapshot.RunsStarted != 2 {
		t.Fatalf("expected 2 runs started, got %d", snapshot.RunsStarted)
	}
	if snapshot.RunsCoalesced != 3 {
		t.Fatalf("expected 3 coalesced settles, got %d", snapshot.RunsCoalesced)
	}
}

func TestDispatcherSpawnFailureKeepsDispatching(t *testing.T) {
	dispatcher, registry := newTestDispatcher(t, []string{"/nonexistent-fswatch-binary"}, PolicySerialize)

	dispatcher.OnSettle(nil)
	if dispatcher.State() != StateIdle {
		t.Fatalf("expected idle after spawn failure, got %q", dispatcher.State())
	}

	dispatcher.OnSettle(nil)
	if snapshot := registry.SnapshotCounters(); snapshot.SpawnFailures != 2 {
		t.Fatalf("expected 2 spawn failures, got %d", snapshot.SpawnFailures)
	}

	select {
	case result := <-dispatcher.Exits():
		t.Fatalf("unexpected exit after spawn failure: %+v", result)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcherRestartPolicySupersedes(t *testing.T) {
	dispatcher, registry := newTestDispatcher(t, []string{"sleep", "5"}, PolicyRestart)

	dispatcher.OnSettle([]string{"a.go"})
	firstPID := dispatcher.active.PID

	dispatcher.OnSettle([]string{"b.go"})
	if dispatcher.State() != StateStopping {
		t.Fatalf("expected stopping state, got %q", dispatcher.State())
	}

	first := receiveExit(t, dispatcher)
	if first.PID != firstPID {
		t.Fatalf("expected first run to exit, got pid %d", first.PID)
	}
	if !first.Signaled {
		t.Fatalf("expected superseded run to die by signal: %+v", first)
	}
	dispatcher.HandleExit(first)

	if dispatcher.State() != StateRunning {
		t.Fatalf("expected replacement run, state %q", dispatcher.State())
	}
	if dispatcher.active.PID == firstPID {
		t.Fatal("expected a fresh process for the replacement run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if snapshot := registry.SnapshotCounters(); snapshot.RunsStarted != 2 {
		t.Fatalf("expected 2 runs started, got %d", snapshot.RunsStarted)
	}
}

func TestDispatcherShutdownStopsActiveRun(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, []string{"sleep", "5"}, PolicySerialize)

	dispatcher.OnSettle(nil)
	pid := dispatcher.active.PID

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if process.Alive(pid) {
		t.Fatalf("expected pid %d to be stopped", pid)
	}
	if dispatcher.State() != StateIdle {
		t.Fatalf("expected idle after shutdown, got %q", dispatcher.State())
	}
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		raw    string
		policy Policy
		ok     bool
	}{
		{"serialize", PolicySerialize, true},
		{"queue", PolicySerialize, true},
		{"", PolicySerialize, true},
		{"Restart", PolicyRestart, true},
		{"parallel", "", false},
	}
	for _, testCase := range cases {
		policy, ok := ParsePolicy(testCase.raw)
		if ok != testCase.ok || policy != testCase.policy {
			t.Fatalf("ParsePolicy(%q) = %q, %v; expected %q, %v", testCase.raw, policy, ok, testCase.policy, testCase.ok)
		}
	}
}

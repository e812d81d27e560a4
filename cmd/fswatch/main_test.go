package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunVersionExitsZero(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"--version"}, &out, &errOut); code != exitOK {
		t.Fatalf("expected exit %d, got %d (stderr: %s)", exitOK, code, errOut.String())
	}
	if !strings.HasPrefix(out.String(), "fswatch ") {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

func TestRunHelpExitsZero(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"--help"}, &out, &errOut); code != exitOK {
		t.Fatalf("expected exit %d, got %d", exitOK, code)
	}
}

func TestRunUsageErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent")
	cases := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"unknown flag", []string{"--frobnicate", "src", "--", "true"}},
		{"no command", []string{"."}},
		{"missing target", []string{missing, "--", "true"}},
		{"bad exclude regex", []string{"--exclude", "([", ".", "--", "true"}},
		{"bad policy", []string{"--on-busy", "pile-up", ".", "--", "true"}},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			if code := run(testCase.args, &out, &errOut); code != exitUsage {
				t.Fatalf("expected exit %d, got %d (stderr: %s)", exitUsage, code, errOut.String())
			}
			if !strings.Contains(errOut.String(), "fswatch: ") {
				t.Fatalf("expected error prefix on stderr, got %q", errOut.String())
			}
		})
	}
}

func TestWatchShutdownSignalsCancelsOnce(t *testing.T) {
	signalCh := make(chan os.Signal, 2)
	cancelled := make(chan struct{})
	stop := watchShutdownSignals(nil, func() {
		close(cancelled)
	}, signalCh)
	defer stop()

	signalCh <- os.Interrupt
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("expected cancel on first signal")
	}

	// A repeat signal must not panic from a second close.
	signalCh <- os.Interrupt
	time.Sleep(20 * time.Millisecond)
}

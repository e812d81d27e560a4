//go:build windows

package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

func GroupID(pid int) int {
	return 0
}

// Windows has no TERM equivalent for console children started this way,
// so the grace period is skipped and the process is killed outright.
func stopProcess(ctx context.Context, pid, pgid int, grace time.Duration, wait func(context.Context) error) error {
	if pid <= 0 {
		return nil
	}
	_ = pgid
	_ = grace
	process, err := os.FindProcess(pid)
	if err != nil {
		return ErrProcessNotFound
	}
	_ = process.Kill()
	waitErr := waitForExit(ctx, pid, wait)
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		// The child was just killed, its non-zero exit is not a stop failure.
		waitErr = nil
	}
	return waitErr
}

func waitForExit(ctx context.Context, pid int, wait func(context.Context) error) error {
	if wait != nil {
		return wait(ctx)
	}
	if pid <= 0 {
		return nil
	}
	timeout := defaultStopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ctx.Err()
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	deadline := time.Now().Add(timeout)
	for {
		if !isProcessAlive(pid) {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	return err == nil && process != nil
}

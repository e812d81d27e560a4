package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"fswatch/internal/process"
)

func (d *Dispatcher) spawn(paths []string) (*RunHandle, error) {
	cmd := exec.Command(d.command[0], d.command[1:]...)
	cmd.Dir = d.dir
	if len(d.env) > 0 {
		cmd.Env = append(os.Environ(), d.env...)
	}

	var ptmx *os.File
	var err error
	if d.usePTY {
		ptmx, err = startPTY(cmd)
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.SysProcAttr = sysProcAttr()
		err = cmd.Start()
	}
	if err != nil {
		return nil, err
	}

	d.nextRunID++
	handle := &RunHandle{
		ID:        d.nextRunID,
		PID:       cmd.Process.Pid,
		PGID:      process.GroupID(cmd.Process.Pid),
		Command:   d.display,
		Paths:     paths,
		StartedAt: time.Now(),
	}

	if ptmx != nil {
		go forwardOutput(ptmx)
	}

	done := make(chan error, 1)
	go func() {
		waitErr := cmd.Wait()
		if ptmx != nil {
			_ = ptmx.Close()
		}
		done <- waitErr

		code, signaled := exitStatus(cmd, waitErr)
		d.exits <- ExitResult{
			RunID:    handle.ID,
			PID:      handle.PID,
			Paths:    paths,
			Code:     code,
			Signaled: signaled,
			Err:      unexpectedWaitError(waitErr),
			Duration: time.Since(handle.StartedAt),
		}
	}()

	// The done channel is refilled after every read so the exit can be
	// awaited more than once, by a stop and by shutdown.
	handle.wait = func(ctx context.Context) error {
		select {
		case waitErr := <-done:
			done <- waitErr
			return waitErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.procs.Register(handle.PID, handle.PGID, d.grace, handle.wait)
	return handle, nil
}

// forwardOutput pumps pty output to stdout. Linux reports EIO once the
// child side closes, which simply ends the copy.
func forwardOutput(ptmx *os.File) {
	_, _ = io.Copy(os.Stdout, ptmx)
}

func exitStatus(cmd *exec.Cmd, waitErr error) (int, bool) {
	if waitErr == nil {
		if cmd.ProcessState != nil {
			return cmd.ProcessState.ExitCode(), false
		}
		return 0, false
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return exitErr.ExitCode(), true
		}
		return exitErr.ExitCode(), false
	}
	return -1, false
}

// unexpectedWaitError filters out the ordinary non-zero-exit error so
// only real wait failures surface.
func unexpectedWaitError(waitErr error) error {
	if waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return nil
	}
	return waitErr
}

func displayCommand(args []string) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, quoteForDisplay(arg))
	}
	return strings.Join(parts, " ")
}

func quoteForDisplay(value string) string {
	if value == "" {
		return `""`
	}
	if !needsDisplayQuoting(value) {
		return value
	}
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + replacer.Replace(value) + `"`
}

func needsDisplayQuoting(value string) bool {
	for _, r := range value {
		switch r {
		case ' ', '\t', '\n', '\r', '"', '\\':
			return true
		}
	}
	return false
}

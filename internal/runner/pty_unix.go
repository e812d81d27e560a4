//go:build !windows

package runner

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// startPTY runs the command on a pseudo-terminal so tools that probe for
// a tty keep their interactive output. pty.Start puts the child in its
// own session, which also makes it a process group leader; Setpgid must
// stay unset here or setpgid fails in the child after setsid.
func startPTY(cmd *exec.Cmd) (*os.File, error) {
	attr := &syscall.SysProcAttr{}
	setDeathSignal(attr)
	cmd.SysProcAttr = attr
	return pty.Start(cmd)
}

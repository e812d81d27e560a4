//go:build linux

package runner

import "syscall"

// The child dies with us if the watcher is killed without a chance to
// clean up.
func setDeathSignal(attr *syscall.SysProcAttr) {
	if attr == nil {
		return
	}
	attr.Pdeathsig = syscall.SIGTERM
}

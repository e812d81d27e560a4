//go:build !windows

package runner

import "syscall"

// Children get their own process group so TERM and KILL reach the whole
// tree, not just the immediate child.
func sysProcAttr() *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true}
	setDeathSignal(attr)
	return attr
}

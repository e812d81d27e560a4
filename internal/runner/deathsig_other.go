//go:build !linux

package runner

import "syscall"

func setDeathSignal(attr *syscall.SysProcAttr) {
}

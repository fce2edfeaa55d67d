package cgroup

import "syscall"

// signalKill sends SIGKILL to pid, used by Destroy's drain path when
// cgroup.kill is unavailable.
func signalKill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

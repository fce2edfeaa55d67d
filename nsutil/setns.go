package nsutil

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"alice/errs"
)

// Join enters an existing namespace of kind ns referenced by a /proc/<pid>/ns
// file. Used by the exec path to place an additional child into the init
// child's namespaces without re-unsharing them.
func Join(path string, ns Namespace) error {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_CLOEXEC, 0)
	if err != nil {
		return errs.Wrap(err, errs.Io, "setns")
	}
	defer syscall.Close(fd)

	flag := cloneFlag[ns]
	if _, _, errno := syscall.Syscall(unix.SYS_SETNS, uintptr(fd), flag, 0); errno != 0 {
		return errs.Wrap(fmt.Errorf("setns: %w", errno), errs.Io, "setns")
	}
	return nil
}

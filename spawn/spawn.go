// Package spawn composes child creation with cgroup placement and
// namespace entry. Two implementations — generic and direct — share one
// contract; capprobe decides which a Container uses.
package spawn

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"alice/cgroup"
	"alice/errs"
	"alice/nsutil"
)

// Request describes a child to spawn.
type Request struct {
	// Path is the executable to run.
	Path string
	Args []string
	Env  []string
	Dir  string

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	Namespaces nsutil.Set
	Cgroup     *cgroup.Cgroup

	// IDMaps and GIDMaps, when Namespaces includes User, are written to
	// the child's uid_map/gid_map while it is still blocked on the sync
	// pipe — before it pivots its root or sets its hostname, both of
	// which require a mapped root inside the new user namespace.
	IDMaps  []nsutil.IDMapping
	GIDMaps []nsutil.IDMapping

	// Hostname, when non-empty, is set inside the new UTS namespace before
	// the target binary executes.
	Hostname string
	// NewRoot and PutOld, when both non-empty, drive a pivot_root into the
	// prepared rootfs before the target binary executes. Left empty, the
	// spawned process runs in the caller's existing root.
	NewRoot string
	PutOld  string

	// JoinPID, when non-zero, makes this request join an already-running
	// container's namespaces (via setns against /proc/<JoinPID>/ns/*)
	// instead of unsharing fresh ones. Used by Container.Exec.
	JoinPID int
}

// Child is the handle returned to the supervisor.
type Child struct {
	PID int
	cmd *exec.Cmd
}

// WrapPID builds a Child for a process this runtime did not itself
// fork — e.g. a CLI invocation re-attaching to a container's init
// process across separate process lifetimes. Such a Child can be
// signaled but cannot be reaped via wait4(2), since it is not this
// process's child; Wait instead polls kill(pid, 0) until it fails.
func WrapPID(pid int) *Child {
	return &Child{PID: pid}
}

// Wait blocks until the child exits and returns its exit status. For a
// Child owned by this process (spawned via Generic/Direct) this is a
// real wait4(2). For a Child built with WrapPID, the exit status is not
// observable and Wait reports 0 once the process is gone.
func (c *Child) Wait() (int, error) {
	if c.cmd == nil {
		return c.waitByPolling()
	}
	err := c.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, errs.Wrap(err, errs.Io, "wait")
}

func (c *Child) waitByPolling() (int, error) {
	for {
		if err := syscall.Kill(c.PID, 0); err != nil {
			return 0, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Signal delivers sig to the child.
func (c *Child) Signal(sig os.Signal) error {
	if c.cmd == nil {
		proc, err := os.FindProcess(c.PID)
		if err != nil {
			return errs.ErrProcessNotFound
		}
		if err := proc.Signal(sig); err != nil {
			return errs.Wrap(err, errs.Io, "signal")
		}
		return nil
	}
	if c.cmd.Process == nil {
		return errs.ErrProcessNotFound
	}
	if err := c.cmd.Process.Signal(sig); err != nil {
		return errs.Wrap(err, errs.Io, "signal")
	}
	return nil
}

// Spawner is the shared contract between the generic and direct paths.
type Spawner interface {
	// Spawn starts req's process, placing it in req.Cgroup and
	// req.Namespaces, and returns its PID once it is guaranteed to be an
	// accounted member of the cgroup.
	Spawn(req Request) (*Child, error)
	// Name identifies the strategy for telemetry/logging.
	Name() string
}

// Select returns the direct spawner when directSupported is true (as
// decided by capprobe.Probe), otherwise the generic spawner.
func Select(directSupported bool) Spawner {
	if directSupported {
		return Direct{}
	}
	return Generic{}
}

// writeIDMaps maps req's uid/gid ranges into the child at pid, a no-op
// unless req.Namespaces includes User. Must run while the child is still
// blocked on its sync pipe: the kernel rejects most operations inside an
// unmapped user namespace, including the pivot_root/hostname setup the
// child performs immediately after being released.
func writeIDMaps(pid int, req Request) error {
	if !req.Namespaces.Has(nsutil.User) {
		return nil
	}
	if len(req.IDMaps) > 0 {
		if err := nsutil.WriteIDMap(pid, false, req.IDMaps); err != nil {
			return err
		}
	}
	if len(req.GIDMaps) > 0 {
		if err := nsutil.WriteIDMap(pid, true, req.GIDMaps); err != nil {
			return err
		}
	}
	return nil
}

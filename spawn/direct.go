package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"alice/errs"
	"alice/utils"
)

// Direct spawns the child with a cgroup file descriptor attached to
// SysProcAttr, so the kernel places it in the cgroup as part of clone(2)
// itself (CLONE_INTO_CGROUP). Like Generic it re-execs through the init
// helper to run hostname/pivot_root setup before the target binary's
// execve. Cgroup membership is guaranteed by the kernel before the child's
// first instruction runs, eliminating the race the generic path works
// around; the sync pipe here only holds the child until its ID maps are
// written.
type Direct struct{}

// Name identifies this strategy.
func (Direct) Name() string { return "direct" }

// Spawn implements Spawner.
func (Direct) Spawn(req Request) (*Child, error) {
	if req.Cgroup == nil {
		return nil, errs.New(errs.Invalid, "spawn_direct", "direct path requires a target cgroup")
	}

	fd, err := syscall.Open(req.Cgroup.Path(), syscall.O_RDONLY|syscall.O_DIRECTORY, 0)
	if err != nil {
		return nil, errs.Wrap(err, errs.Io, "spawn_direct")
	}
	defer syscall.Close(fd)

	self, err := os.Executable()
	if err != nil {
		return nil, errs.Wrap(err, errs.Io, "spawn_direct")
	}

	cmd := exec.Command(self, initSubcommand)
	cmd.Dir = req.Dir
	cmd.Env = append(append([]string{}, req.Env...),
		fmt.Sprintf("%s=%s", envPath, req.Path),
		fmt.Sprintf("%s=%s", envArgs, strings.Join(req.Args, "\x00")),
		fmt.Sprintf("%s=%s", envDir, req.Dir),
		fmt.Sprintf("%s=%s", envHostname, req.Hostname),
		fmt.Sprintf("%s=%s", envNewRoot, req.NewRoot),
		fmt.Sprintf("%s=%s", envPutOld, req.PutOld),
		fmt.Sprintf("%s=%s", envJoinPID, joinPIDEnv(req.JoinPID)),
		fmt.Sprintf("%s=%d", envJoinNS, req.Namespaces),
	)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = req.Stdin, req.Stdout, req.Stderr

	sp, err := utils.NewSyncPipe()
	if err != nil {
		return nil, errs.Wrap(err, errs.Io, "spawn_direct")
	}
	defer sp.CloseReader()
	cmd.ExtraFiles = []*os.File{sp.ReaderFile()}

	var attr *syscall.SysProcAttr
	if req.JoinPID != 0 {
		attr = &syscall.SysProcAttr{Setsid: true}
	} else {
		attr = req.Namespaces.SysProcAttr()
	}
	attr.UseCgroupFD = true
	attr.CgroupFD = fd
	cmd.SysProcAttr = attr

	if err := cmd.Start(); err != nil {
		sp.CloseWriter()
		return nil, errs.Wrap(err, errs.Io, "spawn_direct")
	}

	// The child is still blocked on the sync pipe: map its uid/gid ranges
	// now, before releasing it to pivot_root/set its hostname, both of
	// which need a mapped root inside a fresh user namespace.
	if err := writeIDMaps(cmd.Process.Pid, req); err != nil {
		cmd.Process.Kill()
		sp.CloseWriter()
		return nil, err
	}

	// No placement race to close: the kernel already put the child in the
	// cgroup at clone(2) time. The signal only releases RunInit's read.
	if err := sp.Signal(); err != nil {
		cmd.Process.Kill()
		sp.CloseWriter()
		return nil, errs.Wrap(err, errs.Io, "spawn_direct")
	}
	sp.CloseWriter()

	return &Child{PID: cmd.Process.Pid, cmd: cmd}, nil
}

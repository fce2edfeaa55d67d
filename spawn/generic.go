package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"alice/errs"
	"alice/nsutil"
	"alice/rootfs"
	"alice/utils"
)

// initSubcommand is the argv[1] the re-exec'd process recognizes; main()
// dispatches to RunInit when it sees this.
const initSubcommand = "__alice_spawn_init__"

// Environment variables used to hand the real command to RunInit across
// the re-exec. The sync pipe itself travels as fd 3 (cmd.ExtraFiles[0]).
const (
	envPath     = "_ALICE_SPAWN_PATH"
	envArgs     = "_ALICE_SPAWN_ARGS"
	envDir      = "_ALICE_SPAWN_DIR"
	envHostname = "_ALICE_SPAWN_HOSTNAME"
	envNewRoot  = "_ALICE_SPAWN_NEWROOT"
	envPutOld   = "_ALICE_SPAWN_PUTOLD"
	envJoinPID  = "_ALICE_SPAWN_JOINPID"
	envJoinNS   = "_ALICE_SPAWN_JOINNS"
)

const syncFD = 3

// Generic spawns the child by re-executing the current binary into a
// helper subcommand, which blocks on a sync pipe until the parent has
// placed its PID in the target cgroup, then execve's the real command.
// This guarantees cgroup.procs is written before the user process's code
// begins executing, at the cost of an extra fork+exec hop compared to the
// direct path.
type Generic struct{}

// Name identifies this strategy.
func (Generic) Name() string { return "generic" }

// Spawn implements Spawner.
func (Generic) Spawn(req Request) (*Child, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, errs.Wrap(err, errs.Io, "spawn_generic")
	}

	sp, err := utils.NewSyncPipe()
	if err != nil {
		return nil, errs.Wrap(err, errs.Io, "spawn_generic")
	}
	defer sp.CloseReader()

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
	cmd.ExtraFiles = []*os.File{sp.ReaderFile()}

	if req.JoinPID != 0 {
		// Namespaces are joined post-clone via setns in RunInit; clone
		// plainly here so the child starts in the caller's namespaces.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	} else {
		cmd.SysProcAttr = req.Namespaces.SysProcAttr()
	}

	if err := cmd.Start(); err != nil {
		sp.CloseWriter()
		return nil, errs.Wrap(err, errs.Io, "spawn_generic")
	}

	// The child is blocked reading fd 3; it has not yet called execve, so
	// placing it in the cgroup now is observed before user code runs.
	if req.Cgroup != nil {
		if err := req.Cgroup.AddProcess(cmd.Process.Pid); err != nil {
			cmd.Process.Kill()
			sp.CloseWriter()
			return nil, err
		}
	}

	// The child is still blocked on the sync pipe: map its uid/gid ranges
	// now, before releasing it to pivot_root/set its hostname, both of
	// which need a mapped root inside a fresh user namespace.
	if err := writeIDMaps(cmd.Process.Pid, req); err != nil {
		cmd.Process.Kill()
		sp.CloseWriter()
		return nil, err
	}

	if err := sp.Signal(); err != nil {
		cmd.Process.Kill()
		sp.CloseWriter()
		return nil, errs.Wrap(err, errs.Io, "spawn_generic")
	}
	sp.CloseWriter()

	return &Child{PID: cmd.Process.Pid, cmd: cmd}, nil
}

func joinPIDEnv(pid int) string {
	if pid == 0 {
		return ""
	}
	return strconv.Itoa(pid)
}

// IsInitRequest reports whether the current process was re-exec'd by
// Generic.Spawn or Direct.Spawn and should call RunInit instead of
// proceeding normally.
func IsInitRequest(args []string) bool {
	return len(args) > 1 && args[1] == initSubcommand
}

// RunInit completes both spawn paths inside the re-exec'd child: it
// waits on the sync pipe, then execve's the real command. It never returns
// on success.
func RunInit() error {
	// The sync pipe's reading end arrives as a bare fd across the re-exec;
	// there is no Go SyncPipe object to reconstruct, only the fd number.
	syncFile := os.NewFile(syncFD, "alice-spawn-sync")
	buf := make([]byte, 1)
	if _, err := syncFile.Read(buf); err != nil {
		return errs.Wrap(err, errs.Io, "spawn_init")
	}
	syncFile.Close()

	if err := applyPreExecSetup(); err != nil {
		return err
	}

	path := os.Getenv(envPath)
	if path == "" {
		return errs.New(errs.Invalid, "spawn_init", "missing target path")
	}
	var args []string
	if raw := os.Getenv(envArgs); raw != "" {
		args = strings.Split(raw, "\x00")
	}

	env := os.Environ()
	return syscall.Exec(path, append([]string{path}, args...), env)
}

// applyPreExecSetup runs the steps that must happen inside the re-exec'd
// process's own namespaces, after clone(2) but before the target binary's
// execve: hostname, then pivot_root. Order matters because pivot_root
// replaces the mount at "/" the hostname step does not depend on.
func applyPreExecSetup() error {
	if joinPID := os.Getenv(envJoinPID); joinPID != "" {
		pid, err := strconv.Atoi(joinPID)
		if err != nil {
			return errs.New(errs.Invalid, "spawn_init", "malformed join pid")
		}
		nsBits, _ := strconv.Atoi(os.Getenv(envJoinNS))
		for _, ns := range nsutil.Set(nsBits).Members() {
			if err := nsutil.Join(nsutil.ProcNsPath(pid, ns), ns); err != nil {
				return err
			}
		}
		// A process that joins an existing container's namespaces neither
		// re-pivots its root nor re-sets its hostname; both already reflect
		// the target container's state once mnt/uts are entered.
		return nil
	}

	if hostname := os.Getenv(envHostname); hostname != "" {
		if err := nsutil.SetHostname(hostname); err != nil {
			return err
		}
	}

	newRoot, putOld := os.Getenv(envNewRoot), os.Getenv(envPutOld)
	if newRoot != "" && putOld != "" {
		if err := rootfs.PivotRoot(newRoot, putOld); err != nil {
			return err
		}
	}
	return nil
}

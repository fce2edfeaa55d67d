package container

import (
	"os"

	"alice/capprobe"
	"alice/errs"
	"alice/spawn"
)

// Exec spawns an additional process inside the container's existing
// namespaces and cgroup, waiting for it to exit and returning its exit
// status. Allowed only from Running. Multiple concurrent Execs are
// permitted; each spawns independently and does not affect c.init.
func (c *Container) Exec(argv []string, env []string) (int, error) {
	c.mu.RLock()
	state := c.state
	spawner := c.spawner
	cg := c.cg
	ns := c.cfg.Namespaces
	init := c.init
	c.mu.RUnlock()

	if state != Running {
		return -1, errs.ErrNotRunning
	}
	if len(argv) == 0 {
		return -1, errs.New(errs.Invalid, "exec", "argv must be non-empty")
	}
	if init == nil {
		return -1, errs.ErrNoInitProcess
	}
	if spawner == nil {
		// A Container re-attached via Load has no spawner selected yet;
		// exec only needs the join path, which both strategies support
		// identically, so capability negotiation runs lazily here too.
		spawner = spawn.Select(capprobe.Probe().DirectSpawn)
		c.mu.Lock()
		c.spawner = spawner
		c.mu.Unlock()
	}

	// Exec'd processes join the container's existing namespaces via setns
	// against the init process's /proc/<pid>/ns entries rather than
	// unsharing fresh ones, so they land in the already-pivoted root with
	// cwd reset to "/".
	req := spawn.Request{
		Path:       argv[0],
		Args:       argv[1:],
		Env:        env,
		Dir:        "/",
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Namespaces: ns,
		Cgroup:     cg,
		JoinPID:    init.PID,
	}

	child, err := spawner.Spawn(req)
	if err != nil {
		return -1, err
	}
	return child.Wait()
}

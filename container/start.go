package container

import (
	"os"

	"alice/capprobe"
	"alice/errs"
	"alice/scheduler"
	"alice/spawn"
	"alice/telemetry"
)

// Start spawns the container's init process and attaches its scheduler.
// Allowed only from Created; any other state returns Invalid. A failure
// past the first side-effecting syscall triggers reverse-order cleanup
// and transitions the Container to Destroyed.
func (c *Container) Start(argv []string, env []string) error {
	c.mu.Lock()
	if c.state != Created {
		c.mu.Unlock()
		return errs.ErrNotCreated
	}
	c.mu.Unlock()

	if len(argv) == 0 {
		return errs.New(errs.Invalid, "start", "argv must be non-empty")
	}

	caps := capprobe.Probe()
	c.spawner = spawn.Select(caps.DirectSpawn)

	newRoot, putOld := c.pivotPaths()
	req := spawn.Request{
		Path:       argv[0],
		Args:       argv[1:],
		Env:        env,
		Dir:        "/",
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Namespaces: c.cfg.Namespaces,
		Cgroup:     c.cg,
		Hostname:   c.cfg.Hostname,
		NewRoot:    newRoot,
		PutOld:     putOld,
		IDMaps:     c.cfg.IDMaps,
		GIDMaps:    c.cfg.GIDMaps,
	}

	child, err := c.spawner.Spawn(req)
	if err != nil {
		c.fatalCleanup(err)
		return err
	}

	c.mu.Lock()
	c.init = child
	c.mu.Unlock()

	c.attachScheduler(caps)

	c.setState(Created, Running)
	return nil
}

func (c *Container) attachScheduler(caps capprobe.Set) {
	schedCfg := c.cfg.Scheduler
	if schedCfg.MinQuotaPct == 0 && schedCfg.MaxQuotaPct == 0 {
		// No scheduler configured for this container.
		return
	}

	if c.cfg.UsePSI && caps.PSITriggers {
		psi, err := scheduler.NewPSI(c.cg, schedCfg, 100_000, c.emit)
		if err == nil {
			if startErr := psi.Start(); startErr == nil {
				c.mu.Lock()
				c.sched = psi
				c.mu.Unlock()
				return
			}
		}
		// Fall through to polling if PSI registration failed at runtime.
	}

	poll := scheduler.NewPolling(c.cg, schedCfg, 100_000, c.emit)
	poll.Start()
	c.mu.Lock()
	c.sched = poll
	c.mu.Unlock()
}

// fatalCleanup implements the reverse-order teardown required when Start
// fails after its first side-effecting syscall: kill any spawned process,
// unmount the rootfs, delete the cgroup, and force the state to
// Destroyed regardless of the prior state.
func (c *Container) fatalCleanup(cause error) {
	c.mu.Lock()
	init := c.init
	rfs := c.rfs
	cg := c.cg
	c.mu.Unlock()

	if init != nil {
		init.Signal(os.Kill)
	}
	if rfs != nil {
		if err := rfs.Destroy(); err != nil {
			cause = wrapNote(cause, err)
		}
	}
	if cg != nil {
		if err := cg.Destroy(); err != nil {
			cause = wrapNote(cause, err)
		}
	}

	c.mu.Lock()
	from := c.state
	c.state = Destroyed
	c.mu.Unlock()

	c.emit.Emit(telemetry.Event{
		Kind:        telemetry.StateChanged,
		ContainerID: c.id,
		FromState:   from.String(),
		ToState:     Destroyed.String(),
	})
	c.savePersistence()
}

func wrapNote(cause, note error) error {
	if e, ok := cause.(*errs.Error); ok {
		return e.WithNote(note.Error())
	}
	return cause
}

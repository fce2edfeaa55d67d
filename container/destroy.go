package container

import "alice/errs"

// Destroy tears down the scheduler, rootfs mounts, and cgroup. Allowed
// only from Created or Stopped; refuses from Running with Invalid.
// Idempotent from Destroyed. Cleanup errors from later steps are
// attached as notes rather than replacing an earlier step's error.
func (c *Container) Destroy() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == Destroyed {
		return nil
	}
	if state == Running || state == Paused {
		return errs.ErrNotStopped
	}

	c.mu.Lock()
	sched := c.sched
	rfs := c.rfs
	cg := c.cg
	c.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}

	var first error
	if rfs != nil {
		if err := rfs.Destroy(); err != nil {
			first = err
		}
	}
	if cg != nil {
		if err := cg.Destroy(); err != nil {
			if first == nil {
				first = err
			} else {
				first = wrapNote(first, err)
			}
		}
	}

	c.setState(state, Destroyed)
	return first
}

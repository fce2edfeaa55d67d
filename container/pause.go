package container

import "alice/errs"

// Pause freezes the container's cgroup, suspending every process inside
// it. Allowed only from Running.
func (c *Container) Pause() error {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return errs.ErrNotRunning
	}
	c.mu.Unlock()

	if err := c.cg.Freeze(); err != nil {
		return err
	}
	c.setState(Running, Paused)
	return nil
}

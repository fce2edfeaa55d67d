package container

import "alice/errs"

// Resume thaws the container's cgroup, returning it to Running. Allowed
// only from Paused.
func (c *Container) Resume() error {
	c.mu.Lock()
	if c.state != Paused {
		c.mu.Unlock()
		return errs.New(errs.Invalid, "resume", "container is not paused")
	}
	c.mu.Unlock()

	if err := c.cg.Thaw(); err != nil {
		return err
	}
	c.setState(Paused, Running)
	return nil
}

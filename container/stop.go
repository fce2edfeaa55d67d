package container

import (
	"syscall"
	"time"

	"alice/errs"
)

// Stop sends SIGTERM to the init process, waits up to graceMs for it to
// exit, then sends SIGKILL. Transitions to Stopped. Idempotent: calling
// Stop on an already-Stopped container is a no-op.
func (c *Container) Stop(graceMs int) error {
	c.mu.Lock()
	state := c.state
	init := c.init
	sched := c.sched
	c.mu.Unlock()

	if state == Stopped {
		return nil
	}
	if state != Running && state != Paused {
		return errs.New(errs.Invalid, "stop", "container has no running init process")
	}

	if sched != nil {
		sched.Stop()
	}

	if init != nil {
		if err := init.Signal(syscall.SIGTERM); err != nil && !errs.IsKind(err, errs.NotFound) {
			return err
		}

		done := make(chan struct{})
		go func() {
			init.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Duration(graceMs) * time.Millisecond):
			init.Signal(syscall.SIGKILL)
			<-done
		}
	}

	c.setState(state, Stopped)
	return nil
}

package container

import (
	"alice/cgroup"
	"alice/errs"
	"alice/nsutil"
	"alice/persistence"
	"alice/rootfs"
	"alice/spawn"
	"alice/telemetry"
)

// Load re-attaches to a container an earlier process created, using hook
// to recover its last known Snapshot. Used by the CLI, where each
// subcommand is a separate process with no in-memory Container graph.
// Snapshots do not carry the Config given to Create: the returned
// Container has the default namespace set and zero values for every other
// Config field, and no scheduler is attached or resumed. Exec, Pause,
// Resume, Stop, Destroy and State work on it; a Start after Load runs
// without the original hostname, ID maps and scheduler settings.
func Load(id string, hook persistence.Hook) (*Container, error) {
	if hook == nil {
		hook = persistence.Noop{}
	}
	snap, err := hook.Load(id)
	if err != nil {
		return nil, err
	}

	st, err := parseState(snap.State)
	if err != nil {
		return nil, err
	}

	// Only lifecycle-critical fields are persisted in a Snapshot; a loaded
	// Container gets the runtime's default namespace set rather than
	// whatever the original create() call configured.
	c := &Container{
		id:      id,
		cfg:     Config{Telemetry: telemetry.Noop{}, Namespaces: nsutil.DefaultSet},
		emit:    telemetry.Noop{},
		persist: hook,
		state:   st,
	}

	if snap.CgroupPath != "" {
		if cg, err := cgroup.Open(id); err == nil {
			c.cg = cg
		}
	}
	if snap.RootfsPath != "" {
		if rfs, err := rootfs.Open(snap.RootfsPath); err == nil {
			c.rfs = rfs
		}
	}
	if snap.PID != 0 {
		c.init = spawn.WrapPID(snap.PID)
	}

	return c, nil
}

func parseState(s string) (State, error) {
	switch s {
	case Created.String():
		return Created, nil
	case Running.String():
		return Running, nil
	case Paused.String():
		return Paused, nil
	case Stopped.String():
		return Stopped, nil
	case Destroyed.String():
		return Destroyed, nil
	default:
		return 0, errs.New(errs.Invalid, "load", "unknown persisted state "+s)
	}
}

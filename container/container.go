// Package container binds the cgroup, rootfs, spawn, and scheduler
// packages into a state machine with a well-defined state graph and
// idempotent teardown.
package container

import (
	"regexp"
	"sync"

	"alice/cgroup"
	"alice/errs"
	"alice/nsutil"
	"alice/persistence"
	"alice/rootfs"
	"alice/scheduler"
	"alice/secretbind"
	"alice/spawn"
	"alice/telemetry"
)

// nameRe validates Container IDs: [A-Za-z0-9_-]{1,64}.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateName reports whether id is a legal container identifier.
func ValidateName(id string) error {
	if id == "" {
		return errs.ErrEmptyContainerID
	}
	if !nameRe.MatchString(id) {
		return errs.ErrInvalidName
	}
	return nil
}

// State is one node in the container lifecycle graph.
type State int

const (
	Created State = iota
	Running
	Paused
	Stopped
	Destroyed
)

// String renders the state the way telemetry events name it.
func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// IOLimit is one device's io.max setting.
type IOLimit struct {
	Major, Minor int
	RBps, WBps   uint64
}

// Config is the immutable bundle a Container is created from.
type Config struct {
	RootfsSource string
	Hostname     string

	CpuPct    int // 0 means unset
	MemoryMax uint64
	IOLimits  []IOLimit

	Namespaces nsutil.Set
	IDMaps     []nsutil.IDMapping
	GIDMaps    []nsutil.IDMapping

	Scheduler   scheduler.Config
	UsePSI      bool
	Telemetry   telemetry.Emitter
	Persistence persistence.Hook
	SecretHook  secretbind.Hook
}

// runningScheduler is the shape shared by *scheduler.Polling and
// *scheduler.PSI; a Container holds whichever one capability negotiation
// picked without needing to know which.
type runningScheduler interface {
	Stop()
	CurrentQuotaPct() int
}

// Container is one isolated process tree plus its resource controls.
type Container struct {
	id      string
	cfg     Config
	emit    telemetry.Emitter
	persist persistence.Hook

	mu    sync.RWMutex
	state State

	cg      *cgroup.Cgroup
	rfs     *rootfs.Rootfs
	init    *spawn.Child
	sched   runningScheduler
	spawner spawn.Spawner
}

// ID returns the container's identifier.
func (c *Container) ID() string { return c.id }

// State returns the container's current lifecycle state.
func (c *Container) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Container) setState(from, to State) {
	c.mu.Lock()
	c.state = to
	c.mu.Unlock()

	c.emit.Emit(telemetry.Event{
		Kind:        telemetry.StateChanged,
		ContainerID: c.id,
		FromState:   from.String(),
		ToState:     to.String(),
	})
	c.savePersistence()
}

func (c *Container) savePersistence() {
	if c.persist == nil {
		return
	}
	snap := persistence.Snapshot{ID: c.id, State: c.State().String()}
	c.mu.RLock()
	if c.cg != nil {
		snap.CgroupPath = c.cg.Path()
	}
	if c.rfs != nil {
		snap.RootfsPath = c.rfs.Dir()
	}
	if c.init != nil {
		snap.PID = c.init.PID
	}
	c.mu.RUnlock()
	_ = c.persist.Save(snap)
}

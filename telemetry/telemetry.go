// Package telemetry fans runtime events out to collaborator hooks:
// logging, metrics exporters, or test probes. The container and scheduler
// packages both emit through the same small surface.
package telemetry

import (
	"context"
	"log/slog"
)

// Kind enumerates the event types a Container and its scheduler emit.
type Kind int

const (
	// StateChanged fires on every container lifecycle transition.
	StateChanged Kind = iota
	// QuotaAdjusted fires whenever the scheduler writes a new cpu.max quota.
	QuotaAdjusted
	// OOMKilled names an OOM kill inside the cgroup. Nothing in this
	// module emits it.
	OOMKilled
	// Throttled names an advance of cpu.stat's nr_throttled counter.
	// Nothing in this module emits it; the schedulers mark throttle-driven
	// quota changes with QuotaAdjusted and WasThrottle instead.
	Throttled
	// PSIEvent fires on a PSI pressure trigger wake.
	PSIEvent
	// SchedulerStopped fires when a scheduler stops itself after too many
	// consecutive cgroup I/O failures.
	SchedulerStopped
)

func (k Kind) String() string {
	switch k {
	case StateChanged:
		return "state_changed"
	case QuotaAdjusted:
		return "quota_adjusted"
	case OOMKilled:
		return "oom_killed"
	case Throttled:
		return "throttled"
	case PSIEvent:
		return "psi_event"
	case SchedulerStopped:
		return "scheduler_stopped"
	default:
		return "unknown"
	}
}

// Event carries the union of fields any Kind might populate; unused
// fields are left at their zero value.
type Event struct {
	Kind Kind

	ContainerID string
	FromState   string
	ToState     string

	QuotaPct    int
	WasThrottle bool

	PressureType string // "some" or "full"
	PressureAvg  float64

	Err error // set on SchedulerStopped: the failure that triggered it
}

// Hook receives emitted events. Implementations must not block the
// caller for long; slow consumers should buffer internally.
type Hook interface {
	Handle(Event)
}

// Emitter fans an Event out to zero or more Hooks.
type Emitter interface {
	Emit(Event)
}

// Fanout is the default Emitter: a fixed list of Hooks invoked in order.
type Fanout struct {
	hooks []Hook
}

// NewFanout builds a Fanout over hooks.
func NewFanout(hooks ...Hook) *Fanout {
	return &Fanout{hooks: hooks}
}

// Emit implements Emitter.
func (f *Fanout) Emit(e Event) {
	for _, h := range f.hooks {
		h.Handle(e)
	}
}

// Noop discards every event. Useful as a default when the caller has not
// wired telemetry explicitly.
type Noop struct{}

// Emit implements Emitter by discarding e.
func (Noop) Emit(Event) {}

// LogHook is the default Hook, writing each event as a structured slog
// record at a level proportional to its severity.
type LogHook struct {
	Logger *slog.Logger
}

// NewLogHook builds a LogHook against logger, or slog.Default() if nil.
func NewLogHook(logger *slog.Logger) *LogHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHook{Logger: logger}
}

// Handle implements Hook.
func (h *LogHook) Handle(e Event) {
	level := slog.LevelInfo
	if e.Kind == OOMKilled || e.Kind == Throttled || e.Kind == SchedulerStopped {
		level = slog.LevelWarn
	}
	var errText string
	if e.Err != nil {
		errText = e.Err.Error()
	}
	h.Logger.Log(context.Background(), level, "telemetry event",
		"kind", e.Kind.String(),
		"container_id", e.ContainerID,
		"from_state", e.FromState,
		"to_state", e.ToState,
		"quota_pct", e.QuotaPct,
		"was_throttle", e.WasThrottle,
		"pressure_type", e.PressureType,
		"pressure_avg", e.PressureAvg,
		"err", errText,
	)
}

package container

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"alice/cgroup"
	"alice/errs"
	"alice/persistence"
	"alice/telemetry"
)

func TestValidateNameAcceptsLegalIDs(t *testing.T) {
	for _, id := range []string{"a", "box1", "my-container_2"} {
		if err := ValidateName(id); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", id, err)
		}
	}
}

func TestValidateNameRejectsEmpty(t *testing.T) {
	if err := ValidateName(""); !errors.Is(err, errs.ErrEmptyContainerID) {
		t.Errorf("ValidateName(\"\") = %v, want ErrEmptyContainerID", err)
	}
}

func TestValidateNameRejectsIllegalCharacters(t *testing.T) {
	for _, id := range []string{"has a space", "has/slash", "semi;colon"} {
		if err := ValidateName(id); !errors.Is(err, errs.ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", id, err)
		}
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Created:   "created",
		Running:   "running",
		Paused:    "paused",
		Stopped:   "stopped",
		Destroyed: "destroyed",
		State(99): "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

// newTestCgroup mirrors cgroup package's own test fixture, building a fake
// cgroup v2 root with a writable cgroup.subtree_control.
func newTestCgroup(t *testing.T, id string) *cgroup.Cgroup {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "cgroup.subtree_control"), nil, 0644); err != nil {
		t.Fatalf("seed subtree_control: %v", err)
	}
	t.Setenv(cgroup.RootEnv, root)

	cg, err := cgroup.Create(id)
	if err != nil {
		t.Fatalf("cgroup.Create: %v", err)
	}
	return cg
}

func TestApplyCgroupLimitsSetsCpuAndMemory(t *testing.T) {
	cg := newTestCgroup(t, "box1")
	cfg := Config{CpuPct: 50, MemoryMax: 67108864}

	if err := applyCgroupLimits(cg, cfg); err != nil {
		t.Fatalf("applyCgroupLimits: %v", err)
	}

	quota, period, err := cg.CpuMax()
	if err != nil {
		t.Fatalf("CpuMax: %v", err)
	}
	if quota != 50000 || period != 100000 {
		t.Errorf("CpuMax = (%d, %d), want (50000, 100000) for 50%%", quota, period)
	}

	mem, err := os.ReadFile(filepath.Join(cg.Path(), "memory.max"))
	if err != nil {
		t.Fatalf("ReadFile memory.max: %v", err)
	}
	if string(mem) != "67108864" {
		t.Errorf("memory.max = %q, want %q", mem, "67108864")
	}
}

func TestApplyCgroupLimitsSkipsUnsetFields(t *testing.T) {
	cg := newTestCgroup(t, "box1")
	if err := applyCgroupLimits(cg, Config{}); err != nil {
		t.Fatalf("applyCgroupLimits with empty config: %v", err)
	}
}

func TestDestroyFromCreatedTearsDownCgroup(t *testing.T) {
	cg := newTestCgroup(t, "box1")

	c := &Container{
		id:    "box1",
		cfg:   Config{},
		emit:  telemetry.Noop{},
		state: Created,
		cg:    cg,
	}

	if err := c.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if c.State() != Destroyed {
		t.Errorf("State() after Destroy = %v, want Destroyed", c.State())
	}
	if _, err := os.Stat(cg.Path()); !os.IsNotExist(err) {
		t.Fatalf("cgroup directory still present after Destroy: %v", err)
	}
}

func TestDestroyIsIdempotentFromDestroyed(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Destroyed}
	if err := c.Destroy(); err != nil {
		t.Errorf("Destroy from Destroyed = %v, want nil", err)
	}
}

func TestDestroyRefusesFromRunning(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Running}
	if err := c.Destroy(); !errors.Is(err, errs.ErrNotStopped) {
		t.Errorf("Destroy from Running = %v, want ErrNotStopped", err)
	}
	if c.State() != Running {
		t.Errorf("State() after refused Destroy = %v, want unchanged Running", c.State())
	}
}

func TestStopFromCreatedRejected(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Created}
	if err := c.Stop(100); !errs.IsKind(err, errs.Invalid) {
		t.Errorf("Stop from Created = %v, want Invalid", err)
	}
}

func TestStopFromRunningWithNoInitTransitionsToStopped(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Running}
	if err := c.Stop(100); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.State() != Stopped {
		t.Errorf("State() after Stop = %v, want Stopped", c.State())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Stopped}
	if err := c.Stop(100); err != nil {
		t.Errorf("Stop from Stopped = %v, want nil", err)
	}
}

func TestPauseRefusesFromNonRunning(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Created}
	if err := c.Pause(); !errors.Is(err, errs.ErrNotRunning) {
		t.Errorf("Pause from Created = %v, want ErrNotRunning", err)
	}
}

func TestPauseThenResumeRoundTrips(t *testing.T) {
	cg := newTestCgroup(t, "box1")
	eventsPath := filepath.Join(cg.Path(), "cgroup.events")
	if err := os.WriteFile(eventsPath, []byte("populated 1\nfrozen 0\n"), 0644); err != nil {
		t.Fatalf("seed cgroup.events: %v", err)
	}

	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Running, cg: cg}

	// Freeze polls cgroup.events for "frozen 1"; flip it from a goroutine
	// so waitForFrozen sees it well within its retry budget.
	go func() {
		os.WriteFile(eventsPath, []byte("populated 1\nfrozen 1\n"), 0644)
	}()
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if c.State() != Paused {
		t.Fatalf("State() after Pause = %v, want Paused", c.State())
	}

	go func() {
		os.WriteFile(eventsPath, []byte("populated 1\nfrozen 0\n"), 0644)
	}()
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if c.State() != Running {
		t.Errorf("State() after Resume = %v, want Running", c.State())
	}
}

func TestResumeRefusesFromNonPaused(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Running}
	if err := c.Resume(); !errs.IsKind(err, errs.Invalid) {
		t.Errorf("Resume from Running = %v, want Invalid", err)
	}
}

func TestExecRejectsEmptyArgv(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Running}
	if _, err := c.Exec(nil, nil); !errs.IsKind(err, errs.Invalid) {
		t.Errorf("Exec with empty argv = %v, want Invalid", err)
	}
}

func TestExecRejectsNotRunning(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Created}
	if _, err := c.Exec([]string{"/bin/true"}, nil); !errors.Is(err, errs.ErrNotRunning) {
		t.Errorf("Exec from Created = %v, want ErrNotRunning", err)
	}
}

func TestExecRejectsMissingInit(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Running}
	if _, err := c.Exec([]string{"/bin/true"}, nil); !errors.Is(err, errs.ErrNoInitProcess) {
		t.Errorf("Exec with no init process = %v, want ErrNoInitProcess", err)
	}
}

func TestSavePersistenceSkipsWhenHookNil(t *testing.T) {
	c := &Container{id: "box1", emit: telemetry.Noop{}, state: Created}
	c.savePersistence() // must not panic with a nil persist hook
}

func TestSavePersistenceWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	hook := persistence.NewFileHook(dir)
	c := &Container{id: "box1", emit: telemetry.Noop{}, persist: hook, state: Created}

	c.savePersistence()

	snap, err := hook.Load("box1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.State != "created" {
		t.Errorf("snapshot state = %q, want %q", snap.State, "created")
	}
}

package scheduler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"alice/cgroup"
	"alice/errs"
	"alice/telemetry"
)

// fakeCgroup creates a minimal on-disk cgroup directory with just the
// pseudo-files tick() and ApplyDecision touch, so the decision loop can be
// exercised without a real cgroup v2 mount.
func fakeCgroup(t *testing.T, cpuStat string) *cgroup.Cgroup {
	t.Helper()
	root := t.TempDir()
	t.Setenv(cgroup.RootEnv, root)

	dir := filepath.Join(root, "box1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cpu.stat"), []byte(cpuStat), 0644); err != nil {
		t.Fatalf("write cpu.stat: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cpu.max"), []byte("max 100000\n"), 0644); err != nil {
		t.Fatalf("write cpu.max: %v", err)
	}

	cg, err := cgroup.Open("box1")
	if err != nil {
		t.Fatalf("cgroup.Open: %v", err)
	}
	return cg
}

func TestPollingTickFirstSampleOnlyPrimes(t *testing.T) {
	cg := fakeCgroup(t, "usage_usec 1000\nnr_periods 0\nnr_throttled 0\nthrottled_usec 0\n")
	p := NewPolling(cg, Config{}, 100000, nil)

	if err := p.tick(); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if p.CurrentQuotaPct() != 100 {
		t.Errorf("quota after priming tick = %d, want 100 (unchanged)", p.CurrentQuotaPct())
	}
}

func TestPollingTickEmitsOnThrottle(t *testing.T) {
	cg := fakeCgroup(t, "usage_usec 1000\nnr_periods 0\nnr_throttled 0\nthrottled_usec 0\n")
	var hook recordingHook
	p := NewPolling(cg, Config{MinQuotaPct: 10, MaxQuotaPct: 100}, 100000, telemetry.NewFanout(&hook))

	if err := p.tick(); err != nil {
		t.Fatalf("priming tick: %v", err)
	}

	// Advance throttled_usec so the next sample looks throttled.
	path := filepath.Join(cg.Path(), "cpu.stat")
	if err := os.WriteFile(path, []byte("usage_usec 90000\nnr_periods 1\nnr_throttled 1\nthrottled_usec 80000\n"), 0644); err != nil {
		t.Fatalf("rewrite cpu.stat: %v", err)
	}

	if err := p.tick(); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	if len(hook.events) == 0 {
		t.Fatal("expected a QuotaAdjusted event after a throttled sample, got none")
	}
	if !hook.events[0].WasThrottle {
		t.Errorf("emitted event WasThrottle = false, want true")
	}
}

func TestPollingStartStopIsIdempotent(t *testing.T) {
	cg := fakeCgroup(t, "usage_usec 0\nnr_periods 0\nnr_throttled 0\nthrottled_usec 0\n")
	p := NewPolling(cg, Config{}, 100000, nil)

	p.Start()
	p.Start() // no-op, must not deadlock or panic
	p.Stop()
	p.Stop() // no-op, must not block
}

func TestPollingTickReturnsIOKindErrorWhenCpuStatMissing(t *testing.T) {
	cg := fakeCgroup(t, "usage_usec 0\nnr_periods 0\nnr_throttled 0\nthrottled_usec 0\n")
	if err := os.Remove(filepath.Join(cg.Path(), "cpu.stat")); err != nil {
		t.Fatalf("Remove cpu.stat: %v", err)
	}

	err := (&Polling{cg: cg, cfg: Config{}, emit: telemetry.Noop{}}).tick()
	if !errs.IsKind(err, errs.Io) {
		t.Errorf("tick() with cpu.stat missing = %v, want errs.Io", err)
	}
}

func TestOnIOFailureStopsAfterThreshold(t *testing.T) {
	var hook recordingHook
	p := NewPolling(fakeCgroup(t, "usage_usec 0\nnr_periods 0\nnr_throttled 0\nthrottled_usec 0\n"),
		Config{}, 100000, telemetry.NewFanout(&hook))

	for i := 0; i < maxConsecutiveIOFailures-1; i++ {
		if p.onIOFailure() {
			t.Fatalf("onIOFailure stopped early, after %d calls", i+1)
		}
	}
	if len(hook.events) != 0 {
		t.Fatalf("telemetry fired before reaching the threshold: %+v", hook.events)
	}

	if !p.onIOFailure() {
		t.Fatal("onIOFailure did not stop at the threshold")
	}
	if len(hook.events) != 1 || hook.events[0].Kind != telemetry.SchedulerStopped {
		t.Fatalf("events = %+v, want a single SchedulerStopped event", hook.events)
	}
	if !errors.Is(hook.events[0].Err, errs.ErrTooManyIOFailures) {
		t.Errorf("event Err = %v, want ErrTooManyIOFailures", hook.events[0].Err)
	}
}

type recordingHook struct {
	events []telemetry.Event
}

func (r *recordingHook) Handle(e telemetry.Event) {
	r.events = append(r.events, e)
}

package scheduler

import (
	"testing"
	"time"

	"alice/cgroup"
)

func statAt(t time.Time, usage, throttled uint64) cgroup.CpuStats {
	return cgroup.CpuStats{UsageUsec: usage, ThrottledUsec: throttled, SampledAt: t}
}

func TestEvaluateHoldsOnIdenticalSamples(t *testing.T) {
	cfg := Config{TargetLatencyUsec: 10_000, MinQuotaPct: 10, MaxQuotaPct: 100}
	base := time.Unix(0, 0)
	prev := statAt(base, 1000, 0)
	cur := statAt(base, 1000, 0)

	d := Evaluate(cfg, prev, cur, 50)
	if d.Action != Hold {
		t.Fatalf("expected Hold, got %v", d.Action)
	}
	if d.NewQuotaPct != 50 {
		t.Fatalf("expected unchanged quota 50, got %d", d.NewQuotaPct)
	}
}

func TestEvaluateNeverDropsBelowCurrentWhenThrottled(t *testing.T) {
	cfg := Config{TargetLatencyUsec: 1_000, MinQuotaPct: 10, MaxQuotaPct: 100, BurstFactor: 1.5}
	base := time.Unix(0, 0)
	prev := statAt(base, 0, 0)
	// 100ms wall, 50ms throttled: throttleRatio 0.5 >> targetRatio 0.001.
	cur := statAt(base.Add(100*time.Millisecond), 50_000, 50_000)

	d := Evaluate(cfg, prev, cur, 40)
	if d.Action != Throttle {
		t.Fatalf("expected Throttle, got %v", d.Action)
	}
	if d.NewQuotaPct < 40 {
		t.Fatalf("quota must never drop below current (%d) when throttled, got %d", 40, d.NewQuotaPct)
	}
}

func TestEvaluateClampsToConfiguredRange(t *testing.T) {
	cfg := Config{TargetLatencyUsec: 1_000, MinQuotaPct: 10, MaxQuotaPct: 60, BurstFactor: 4.0}
	base := time.Unix(0, 0)
	prev := statAt(base, 0, 0)
	cur := statAt(base.Add(100*time.Millisecond), 90_000, 90_000)

	d := Evaluate(cfg, prev, cur, 50)
	if d.NewQuotaPct > cfg.MaxQuotaPct {
		t.Fatalf("quota %d exceeds MaxQuotaPct %d", d.NewQuotaPct, cfg.MaxQuotaPct)
	}
}

func TestEvaluateDecaysUnderHysteresisFloor(t *testing.T) {
	cfg := Config{TargetLatencyUsec: 100_000, MinQuotaPct: 5, MaxQuotaPct: 100, HysteresisPct: 5}
	base := time.Unix(0, 0)
	prev := statAt(base, 0, 0)
	// Near-zero utilization over the window.
	cur := statAt(base.Add(100*time.Millisecond), 100, 0)

	d := Evaluate(cfg, prev, cur, 80)
	if d.Action != Adjust {
		t.Fatalf("expected Adjust (decay), got %v", d.Action)
	}
	if d.NewQuotaPct >= 80 {
		t.Fatalf("expected decayed quota below 80, got %d", d.NewQuotaPct)
	}
	if d.NewQuotaPct < cfg.MinQuotaPct {
		t.Fatalf("quota %d below MinQuotaPct %d", d.NewQuotaPct, cfg.MinQuotaPct)
	}
}

func TestEvaluateNonPositiveWallHolds(t *testing.T) {
	cfg := Config{TargetLatencyUsec: 1_000, MinQuotaPct: 10, MaxQuotaPct: 100}
	base := time.Unix(0, 0)
	prev := statAt(base, 100, 0)
	cur := statAt(base, 200, 0) // same timestamp, zero wall time

	d := Evaluate(cfg, prev, cur, 50)
	if d.Action != Hold {
		t.Fatalf("expected Hold on non-positive wall delta, got %v", d.Action)
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	cfg := Config{MinQuotaPct: 0, MaxQuotaPct: 0, BurstFactor: 0}.Normalize()
	if cfg.HysteresisPct != 5 {
		t.Fatalf("expected default hysteresis 5, got %d", cfg.HysteresisPct)
	}
	if cfg.BurstFactor != 1.0 {
		t.Fatalf("expected default burst factor 1.0, got %v", cfg.BurstFactor)
	}
	if cfg.MinQuotaPct != 1 {
		t.Fatalf("expected default min quota 1, got %d", cfg.MinQuotaPct)
	}
}

package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"alice/cgroup"
	"alice/errs"
	"alice/telemetry"
)

// Polling drives the decision core on a fixed-interval ticker, the
// baseline strategy available on every kernel regardless of PSI support.
type Polling struct {
	cg     *cgroup.Cgroup
	cfg    Config
	emit   telemetry.Emitter
	period uint64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	quotaPct int32
	prev     cgroup.CpuStats
	havePrev bool

	consecutiveIOFailures int
}

// NewPolling constructs a Polling scheduler bound to cg, reporting quota
// adjustments through emit (nil is a valid no-op emitter).
func NewPolling(cg *cgroup.Cgroup, cfg Config, periodUs uint64, emit telemetry.Emitter) *Polling {
	if emit == nil {
		emit = telemetry.Noop{}
	}
	return &Polling{
		cg:       cg,
		cfg:      cfg.Normalize(),
		emit:     emit,
		period:   periodUs,
		quotaPct: 100,
	}
}

// Start begins the polling loop. Calling Start on an already-running
// scheduler is a no-op.
func (p *Polling) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.loop(p.stopCh, p.doneCh)
}

// Stop halts the polling loop and blocks until the goroutine has exited.
// Idempotent: calling Stop twice, or before Start, is safe.
func (p *Polling) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// CurrentQuotaPct returns the last quota percentage applied.
func (p *Polling) CurrentQuotaPct() int {
	return int(atomic.LoadInt32(&p.quotaPct))
}

func (p *Polling) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	interval := time.Duration(p.cfg.TickIntervalUsec) * time.Microsecond
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := p.tick(); err != nil && errs.IsKind(err, errs.Io) {
				if p.onIOFailure() {
					return
				}
				continue
			}
			p.consecutiveIOFailures = 0
		}
	}
}

// onIOFailure counts a transient cgroup I/O failure and, once
// maxConsecutiveIOFailures is reached, stops the scheduler and reports
// the reason through telemetry. Returns true once the scheduler has
// stopped itself, signaling the caller's loop to return.
func (p *Polling) onIOFailure() bool {
	p.consecutiveIOFailures++
	if p.consecutiveIOFailures < maxConsecutiveIOFailures {
		return false
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.emit.Emit(telemetry.Event{Kind: telemetry.SchedulerStopped, Err: errs.ErrTooManyIOFailures})
	return true
}

// tick samples cpu.stat once and applies the resulting decision. The
// in-package tests call it directly for deterministic single-step control
// instead of waiting on the ticker.
func (p *Polling) tick() error {
	cur, err := p.cg.CpuStat()
	if err != nil {
		return err
	}

	if !p.havePrev {
		p.prev = cur
		p.havePrev = true
		return nil
	}

	current := int(atomic.LoadInt32(&p.quotaPct))
	d := Evaluate(p.cfg, p.prev, cur, current)
	p.prev = cur

	if d.Action == Hold {
		return nil
	}

	if err := ApplyDecision(p.cg, d, p.period); err != nil {
		if errs.IsKind(err, errs.NotFound) {
			// Container torn down concurrently; quiesce rather than error.
			return nil
		}
		return err
	}

	atomic.StoreInt32(&p.quotaPct, int32(d.NewQuotaPct))
	p.emit.Emit(telemetry.Event{
		Kind:        telemetry.QuotaAdjusted,
		QuotaPct:    d.NewQuotaPct,
		WasThrottle: d.Action == Throttle,
	})
	return nil
}

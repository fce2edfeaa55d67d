package scheduler

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"alice/cgroup"
	"alice/errs"
	"alice/telemetry"
)

// psiTriggerWindowUsec and psiTriggerStallMinUs are the trigger parameters
// written to cpu.pressure: wake when "some" stall exceeds
// psiTriggerStallMinUs out of every psiTriggerWindowUsec.
const (
	psiTriggerWindowUsec = 1_000_000
	psiTriggerStallMinUs = 50_000
)

// PSI drives the decision core from pressure-stall event wakeups instead
// of a fixed ticker, trading a small epoll registration cost for
// microsecond-scale reaction to actual stall, not just elapsed time.
type PSI struct {
	cg     *cgroup.Cgroup
	cfg    Config
	emit   telemetry.Emitter
	period uint64

	pressureFile string
	epfd         int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	quotaPct int32
	prev     cgroup.CpuStats
	havePrev bool

	consecutiveIOFailures int
}

// NewPSI constructs a PSI scheduler bound to cg's cpu.pressure file (or
// the global /proc/pressure/cpu when cg has none). Returns
// errs.Unsupported if the kernel lacks CONFIG_PSI.
func NewPSI(cg *cgroup.Cgroup, cfg Config, periodUs uint64, emit telemetry.Emitter) (*PSI, error) {
	if emit == nil {
		emit = telemetry.Noop{}
	}
	path := fmt.Sprintf("%s/cpu.pressure", cg.Path())
	if _, err := os.Stat(path); err != nil {
		path = "/proc/pressure/cpu"
		if _, err := os.Stat(path); err != nil {
			return nil, errs.Wrap(err, errs.Unsupported, "psi_new")
		}
	}
	return &PSI{
		cg:           cg,
		cfg:          cfg.Normalize(),
		emit:         emit,
		period:       periodUs,
		pressureFile: path,
		quotaPct:     100,
	}, nil
}

// CurrentQuotaPct returns the last quota percentage applied.
func (p *PSI) CurrentQuotaPct() int {
	return int(atomic.LoadInt32(&p.quotaPct))
}

// Start registers a PSI trigger and begins the wait loop. Idempotent.
func (p *PSI) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	fd, err := unix.Open(p.pressureFile, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return errs.Wrap(err, errs.Io, "psi_start")
	}

	trigger := fmt.Sprintf("some %d %d", psiTriggerStallMinUs, psiTriggerWindowUsec)
	if _, err := unix.Write(fd, []byte(trigger)); err != nil {
		unix.Close(fd)
		return errs.Wrap(err, errs.Io, "psi_start")
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		unix.Close(fd)
		return errs.Wrap(err, errs.Io, "psi_start")
	}
	ev := unix.EpollEvent{Events: unix.EPOLLPRI, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		unix.Close(fd)
		unix.Close(epfd)
		return errs.Wrap(err, errs.Io, "psi_start")
	}

	p.epfd = epfd
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.loop(fd, p.stopCh, p.doneCh)
	return nil
}

// Stop cancels the wait loop and closes the trigger registration. It
// returns within about one 250 ms epoll_wait timeout, since the loop checks
// stopCh between waits rather than blocking forever.
func (p *PSI) Stop() {
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

func (p *PSI) loop(triggerFd int, stopCh, doneCh chan struct{}) {
	defer func() {
		unix.Close(triggerFd)
		unix.Close(p.epfd)
		close(doneCh)
	}()

	events := make([]unix.EpollEvent, 4)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n, err := unix.EpollWait(p.epfd, events, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if n <= 0 {
			// Timeout with no event: a spurious wake, treated as Hold.
			continue
		}
		if p.onPressure() {
			return
		}
	}
}

// onPressure handles one pressure wake. It returns true once repeated
// transient I/O failures have forced the scheduler to stop itself, in
// which case the caller's loop must return.
func (p *PSI) onPressure() bool {
	cur, err := p.cg.CpuStat()
	if err != nil {
		return p.onIOFailure()
	}
	now := cur.SampledAt

	if !p.havePrev {
		p.prev = cur
		p.havePrev = true
		p.consecutiveIOFailures = 0
		return false
	}

	current := int(atomic.LoadInt32(&p.quotaPct))
	d := Evaluate(p.cfg, p.prev, cur, current)
	p.prev = cur

	p.emit.Emit(telemetry.Event{
		Kind:         telemetry.PSIEvent,
		PressureType: "some",
		PressureAvg:  float64(time.Since(now).Microseconds()),
	})

	if d.Action == Hold {
		p.consecutiveIOFailures = 0
		return false
	}
	if err := ApplyDecision(p.cg, d, p.period); err != nil {
		if errs.IsKind(err, errs.NotFound) {
			p.consecutiveIOFailures = 0
			return false
		}
		if errs.IsKind(err, errs.Io) {
			return p.onIOFailure()
		}
		return false
	}
	p.consecutiveIOFailures = 0
	atomic.StoreInt32(&p.quotaPct, int32(d.NewQuotaPct))
	p.emit.Emit(telemetry.Event{
		Kind:        telemetry.QuotaAdjusted,
		QuotaPct:    d.NewQuotaPct,
		WasThrottle: d.Action == Throttle,
	})
	return false
}

// onIOFailure counts a transient cgroup I/O failure and, once
// maxConsecutiveIOFailures is reached, stops the scheduler and reports
// the reason through telemetry.
func (p *PSI) onIOFailure() bool {
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

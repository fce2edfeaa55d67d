// Package cgroup provides a typed, fallible interface over the cgroup v2
// unified hierarchy for one container's cgroup directory.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"alice/errs"
)

// RootEnv is the environment variable that overrides the cgroup v2 mount
// point, defaulting to /sys/fs/cgroup.
const RootEnv = "ALICE_CGROUP_ROOT"

const defaultRoot = "/sys/fs/cgroup"

// freezeRetries and freezeDelay bound the freeze/thaw confirmation poll.
const (
	freezeRetries = 1000
	freezeDelay   = 100 * time.Microsecond
)

// Unlimited is the "max" sentinel accepted by SetCpuMax/SetMemoryMax.
const Unlimited = ^uint64(0)

// Root returns the configured unified hierarchy root.
func Root() string {
	if v := os.Getenv(RootEnv); v != "" {
		return v
	}
	return defaultRoot
}

// Cgroup is a directory under the unified hierarchy root for one container.
type Cgroup struct {
	path      string
	destroyed bool
}

// Create ensures /sys/fs/cgroup/<name> exists and enables the controllers
// this runtime needs on the parent's cgroup.subtree_control.
func Create(name string) (*Cgroup, error) {
	root := Root()
	path := filepath.Join(root, name)

	if fi, err := os.Stat(path); err == nil {
		if fi.IsDir() {
			entries, _ := os.ReadDir(path)
			if len(nonProcsEntries(entries)) > 0 || hasMembers(path) {
				return nil, errs.WrapWithDetail(nil, errs.Exists, "create",
					fmt.Sprintf("cgroup %s already exists and is non-empty", path))
			}
		}
	}

	if err := enableControllers(root); err != nil {
		return nil, errs.Wrap(err, errs.Unsupported, "create")
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errs.Wrap(err, errs.Io, "create")
	}

	return &Cgroup{path: path}, nil
}

func nonProcsEntries(entries []os.DirEntry) []os.DirEntry {
	var out []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e)
		}
	}
	return out
}

func hasMembers(path string) bool {
	data, err := os.ReadFile(filepath.Join(path, "cgroup.procs"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) != ""
}

// enableControllers writes "+cpu +memory +io +pids" to the parent's
// cgroup.subtree_control. Writes are commutative/idempotent across
// concurrent containers.
func enableControllers(root string) error {
	controlFile := filepath.Join(root, "cgroup.subtree_control")
	if err := os.WriteFile(controlFile, []byte("+cpu +memory +io +pids"), 0644); err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return err
		}
		// Any other write error is ignored: some controllers may already
		// be enabled or unavailable.
	}
	return nil
}

// Open wraps an existing cgroup directory without creating or validating
// emptiness, for a supervisor process re-attaching to a container whose
// cgroup was created by an earlier invocation.
func Open(name string) (*Cgroup, error) {
	path := filepath.Join(Root(), name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrCgroupNotFound
		}
		return nil, errs.Wrap(err, errs.Io, "open")
	}
	return &Cgroup{path: path}, nil
}

// Path returns the cgroup's filesystem directory.
func (c *Cgroup) Path() string { return c.path }

func (c *Cgroup) checkLive(op string) error {
	if c.destroyed {
		return errs.WrapWithDetail(nil, errs.NotFound, op, "cgroup already destroyed")
	}
	return nil
}

func (c *Cgroup) write(op, file, value string) error {
	if err := c.checkLive(op); err != nil {
		return err
	}
	path := filepath.Join(c.path, file)
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		if os.IsNotExist(err) {
			return errs.Wrap(err, errs.NotFound, op)
		}
		if os.IsPermission(err) {
			return errs.Wrap(err, errs.Permission, op)
		}
		return errs.Wrap(err, errs.Io, op)
	}
	return nil
}

// SetCpuMax writes "<quota> <period>" to cpu.max. quotaUs == Unlimited
// writes the literal "max". Rejects quota > period * 2^20.
func (c *Cgroup) SetCpuMax(quotaUs, periodUs uint64) error {
	if quotaUs != Unlimited && quotaUs == 0 {
		return errs.New(errs.Invalid, "set_cpu_max", "quota must be nonzero or max")
	}
	if periodUs < 1000 || periodUs > 1_000_000 {
		return errs.New(errs.Invalid, "set_cpu_max", "period must be in [1000, 1000000]")
	}
	if quotaUs != Unlimited && quotaUs > periodUs*(1<<20) {
		return errs.ErrQuotaExceedsPeriod
	}

	quota := "max"
	if quotaUs != Unlimited {
		quota = strconv.FormatUint(quotaUs, 10)
	}
	return c.write("set_cpu_max", "cpu.max", fmt.Sprintf("%s %d", quota, periodUs))
}

// CpuMax reads back cpu.max and parses it into (quotaUs, periodUs).
func (c *Cgroup) CpuMax() (quotaUs, periodUs uint64, err error) {
	data, err := os.ReadFile(filepath.Join(c.path, "cpu.max"))
	if err != nil {
		return 0, 0, errs.Wrap(err, errs.Io, "cpu_max")
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return 0, 0, errs.New(errs.Io, "cpu_max", "malformed cpu.max")
	}
	if fields[0] == "max" {
		quotaUs = Unlimited
	} else {
		quotaUs, err = strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return 0, 0, errs.Wrap(err, errs.Io, "cpu_max")
		}
	}
	periodUs, err = strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, 0, errs.Wrap(err, errs.Io, "cpu_max")
	}
	return quotaUs, periodUs, nil
}

// SetMemoryMax writes memory.max. bytes == Unlimited writes "max".
func (c *Cgroup) SetMemoryMax(bytes uint64) error {
	value := "max"
	if bytes != Unlimited {
		value = strconv.FormatUint(bytes, 10)
	}
	return c.write("set_memory_max", "memory.max", value)
}

// SetIoMax writes "<maj>:<min> rbps=<r> wbps=<w>" to io.max.
func (c *Cgroup) SetIoMax(major, minor int, rbps, wbps uint64) error {
	r, w := "max", "max"
	if rbps != Unlimited {
		r = strconv.FormatUint(rbps, 10)
	}
	if wbps != Unlimited {
		w = strconv.FormatUint(wbps, 10)
	}
	value := fmt.Sprintf("%d:%d rbps=%s wbps=%s", major, minor, r, w)
	return c.write("set_io_max", "io.max", value)
}

// AddProcess writes pid to cgroup.procs.
func (c *Cgroup) AddProcess(pid int) error {
	if err := c.write("add_process", "cgroup.procs", strconv.Itoa(pid)); err != nil {
		return err
	}
	return nil
}

// MemoryCurrent parses memory.current.
func (c *Cgroup) MemoryCurrent() (int64, error) {
	return c.readInt("memory.current")
}

// CpuUsageUs returns the usage_usec field of cpu.stat.
func (c *Cgroup) CpuUsageUs() (uint64, error) {
	stat, err := c.CpuStat()
	if err != nil {
		return 0, err
	}
	return stat.UsageUsec, nil
}

func (c *Cgroup) readInt(file string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(c.path, file))
	if err != nil {
		return 0, errs.Wrap(err, errs.Io, "read "+file)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, errs.Wrap(err, errs.Io, "parse "+file)
	}
	return v, nil
}

// CpuStats are the monotonically non-decreasing counters parsed from
// cpu.stat, paired with the wall-clock time they were sampled at.
type CpuStats struct {
	UsageUsec     uint64
	UserUsec      uint64
	SystemUsec    uint64
	NrPeriods     uint64
	NrThrottled   uint64
	ThrottledUsec uint64
	SampledAt     time.Time
}

// CpuStat reads and parses cpu.stat. Unknown keys are ignored.
func (c *Cgroup) CpuStat() (CpuStats, error) {
	data, err := os.ReadFile(filepath.Join(c.path, "cpu.stat"))
	if err != nil {
		return CpuStats{}, errs.Wrap(err, errs.Io, "cpu_stat")
	}

	stats := CpuStats{SampledAt: time.Now()}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "usage_usec":
			stats.UsageUsec = v
		case "user_usec":
			stats.UserUsec = v
		case "system_usec":
			stats.SystemUsec = v
		case "nr_periods":
			stats.NrPeriods = v
		case "nr_throttled":
			stats.NrThrottled = v
		case "throttled_usec":
			stats.ThrottledUsec = v
		}
	}
	return stats, nil
}

// Freeze writes 1 to cgroup.freeze and polls cgroup.events for "frozen 1"
// before returning, bounded to freezeRetries attempts.
func (c *Cgroup) Freeze() error {
	if err := c.write("freeze", "cgroup.freeze", "1"); err != nil {
		return err
	}
	return c.waitForFrozen(1)
}

// Thaw writes 0 to cgroup.freeze and polls for "frozen 0".
func (c *Cgroup) Thaw() error {
	if err := c.write("thaw", "cgroup.freeze", "0"); err != nil {
		return err
	}
	return c.waitForFrozen(0)
}

func (c *Cgroup) waitForFrozen(want int) error {
	for i := 0; i < freezeRetries; i++ {
		got, err := c.eventsField("frozen")
		if err == nil && got == want {
			return nil
		}
		time.Sleep(freezeDelay)
	}
	return errs.New(errs.Timeout, "freeze", "cgroup.events did not reach the expected frozen state")
}

func (c *Cgroup) eventsField(key string) (int, error) {
	data, err := os.ReadFile(filepath.Join(c.path, "cgroup.events"))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == key {
			return strconv.Atoi(fields[1])
		}
	}
	return 0, fmt.Errorf("%s not present in cgroup.events", key)
}

// Destroy drains members (via cgroup.kill when available, else SIGKILL via
// cgroup.procs), waits for populated 0, then rmdir. Idempotent: NotFound is
// swallowed on repeat calls.
func (c *Cgroup) Destroy() error {
	if c.destroyed {
		return nil
	}

	if err := c.drain(); err != nil {
		// A drain failure does not stop the rmdir attempt. It is reported
		// only if rmdir also fails, with the rmdir error attached as a note.
		if rmErr := os.Remove(c.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return errs.Wrap(err, errs.Io, "destroy").WithNote(rmErr.Error())
		}
		c.destroyed = true
		return nil
	}

	if err := os.Remove(c.path); err != nil {
		if os.IsNotExist(err) {
			c.destroyed = true
			return nil
		}
		return errs.Wrap(err, errs.Io, "destroy")
	}
	c.destroyed = true
	return nil
}

func (c *Cgroup) drain() error {
	killPath := filepath.Join(c.path, "cgroup.kill")
	if _, err := os.Stat(killPath); err == nil {
		if werr := os.WriteFile(killPath, []byte("1"), 0644); werr == nil {
			return c.waitPopulated(0)
		}
	}

	data, err := os.ReadFile(filepath.Join(c.path, "cgroup.procs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, line := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		_ = signalKill(pid)
	}
	return c.waitPopulated(0)
}

func (c *Cgroup) waitPopulated(want int) error {
	for i := 0; i < freezeRetries; i++ {
		got, err := c.eventsField("populated")
		if err == nil && got == want {
			return nil
		}
		time.Sleep(freezeDelay)
	}
	return errs.New(errs.Timeout, "destroy", "cgroup.events did not reach populated 0")
}

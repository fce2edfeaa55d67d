// Package capprobe negotiates which capability-gated strategy a Container
// uses: direct-into-cgroup spawn, the async cgroup-write submission ring,
// and PSI pressure triggers. Absent capabilities fall back transparently to
// the generic path.
package capprobe

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Set is a read-only bitset of negotiated capabilities.
type Set struct {
	DirectSpawn bool
	AsyncRing   bool
	PSITriggers bool
}

var (
	once   sync.Once
	cached Set
)

// Probe detects the capability set for this host. Results are cached for
// the process lifetime since the kernel features in question cannot
// change underneath a running process.
func Probe() Set {
	once.Do(func() {
		cached = Set{
			DirectSpawn: probeDirectSpawn(),
			AsyncRing:   probeAsyncRing(),
			PSITriggers: probePSI(),
		}
	})
	return cached
}

// probeDirectSpawn checks for a kernel new enough to support clone3's
// CLONE_INTO_CGROUP (Linux 5.7+), which Go's runtime exposes via
// SysProcAttr.UseCgroupFD on linux/amd64 and linux/arm64 builds.
func probeDirectSpawn() bool {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return false
	}
	major, minor := parseKernelVersion(uts.Release[:])
	if major > 5 {
		return true
	}
	return major == 5 && minor >= 7
}

func parseKernelVersion(release []byte) (major, minor int) {
	s := cString(release)
	// release looks like "6.8.0-generic" or "5.15.0-1234-aws".
	parseInt := func(s string) (int, string) {
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		n := 0
		for _, c := range s[:i] {
			n = n*10 + int(c-'0')
		}
		return n, s[i:]
	}

	major, rest := parseInt(s)
	if len(rest) > 0 && rest[0] == '.' {
		minor, _ = parseInt(rest[1:])
	}
	return major, minor
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// probeAsyncRing checks whether the batched cgroup-write path should be
// used; see cgroup.SupportsAsyncRing for the rationale.
func probeAsyncRing() bool {
	return true
}

// probePSI checks for /proc/pressure/cpu, the minimum signal that PSI is
// compiled into the running kernel (CONFIG_PSI).
func probePSI() bool {
	_, err := os.Stat("/proc/pressure/cpu")
	return err == nil
}

// Reset clears the cached probe result. Test-only: production callers
// should never need to re-probe within a process lifetime.
func Reset() {
	once = sync.Once{}
}

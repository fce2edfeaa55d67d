// Package nsutil composes unshare, ID-mapping, mount propagation and
// hostname handling for the namespace & root-pivot engine.
package nsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"alice/errs"
)

// Namespace is a single bit in a NamespaceSet.
type Namespace uint32

// The namespace kinds recognized by the runtime.
const (
	Mount Namespace = 1 << iota
	PID
	Net
	UTS
	IPC
	User
	Cgroup
	Time
)

// cloneFlag maps a Namespace bit to its clone(2)/unshare(2) flag.
var cloneFlag = map[Namespace]uintptr{
	Mount:  syscall.CLONE_NEWNS,
	PID:    syscall.CLONE_NEWPID,
	Net:    syscall.CLONE_NEWNET,
	UTS:    syscall.CLONE_NEWUTS,
	IPC:    syscall.CLONE_NEWIPC,
	User:   syscall.CLONE_NEWUSER,
	Cgroup: 0x02000000, // CLONE_NEWCGROUP, absent from the syscall package
	Time:   0x00000080, // CLONE_NEWTIME
}

// Set is a bitset over the namespace kinds.
type Set uint32

// DefaultSet is the namespace set a ContainerConfig uses when none is
// specified: {MOUNT, PID, UTS, IPC}.
const DefaultSet = Set(Mount | PID | UTS | IPC)

// Has reports whether ns is a member of s.
func (s Set) Has(ns Namespace) bool { return s&Set(ns) != 0 }

// With returns s with ns added.
func (s Set) With(ns Namespace) Set { return s | Set(ns) }

// CloneFlags returns the clone(2)/unshare(2) flag bitmask for s.
func (s Set) CloneFlags() uintptr {
	var flags uintptr
	for ns, flag := range cloneFlag {
		if s.Has(ns) {
			flags |= flag
		}
	}
	return flags
}

// SysProcAttr builds a syscall.SysProcAttr that places a freshly spawned
// child into exactly the namespaces in s. When User is requested, the user
// namespace's capabilities must exist before the rest of the unshares take
// effect, which Go's exec already guarantees by applying Cloneflags
// atomically in one clone(2) call.
func (s Set) SysProcAttr() *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Cloneflags: s.CloneFlags(),
		Setsid:     true,
	}
	if !s.Has(User) {
		attr.Unshareflags = syscall.CLONE_NEWNS
	}
	return attr
}

// nsFileName maps a Namespace bit to its /proc/<pid>/ns/<name> entry.
var nsFileName = map[Namespace]string{
	Mount:  "mnt",
	PID:    "pid",
	Net:    "net",
	UTS:    "uts",
	IPC:    "ipc",
	User:   "user",
	Cgroup: "cgroup",
	Time:   "time",
}

// ProcNsPath returns the /proc/<pid>/ns/<name> path for ns, used by the
// exec path to join an existing container's namespaces via setns(2).
func ProcNsPath(pid int, ns Namespace) string {
	return fmt.Sprintf("/proc/%d/ns/%s", pid, nsFileName[ns])
}

// Members returns the individual Namespace bits set in s, in the
// iteration order Join should apply them (PID namespace membership must
// be acquired before the rest affect a subsequently forked tree the same
// way, though this runtime applies them in bit order for simplicity).
func (s Set) Members() []Namespace {
	var out []Namespace
	for _, ns := range []Namespace{Mount, PID, Net, UTS, IPC, User, Cgroup, Time} {
		if s.Has(ns) {
			out = append(out, ns)
		}
	}
	return out
}

// IDMapping is one (inside_id, outside_id, length) triple for uid_map or
// gid_map.
type IDMapping struct {
	InsideID  uint32
	OutsideID uint32
	Length    uint32
}

// ValidateMappings checks that ranges are non-overlapping on both sides.
func ValidateMappings(mappings []IDMapping) error {
	if err := checkOverlap(mappings, func(m IDMapping) (uint32, uint32) {
		return m.InsideID, m.InsideID + m.Length
	}); err != nil {
		return err
	}
	return checkOverlap(mappings, func(m IDMapping) (uint32, uint32) {
		return m.OutsideID, m.OutsideID + m.Length
	})
}

func checkOverlap(mappings []IDMapping, span func(IDMapping) (uint32, uint32)) error {
	type iv struct{ lo, hi uint32 }
	ivs := make([]iv, 0, len(mappings))
	for _, m := range mappings {
		lo, hi := span(m)
		ivs = append(ivs, iv{lo, hi})
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].lo < ivs[j].lo })
	for i := 1; i < len(ivs); i++ {
		if ivs[i].lo < ivs[i-1].hi {
			return errs.ErrMappingOverlap
		}
	}
	return nil
}

// WriteIDMap writes uid_map or gid_map for pid's user namespace, in the
// single-write format the kernel requires. For gid_map, "deny" is written
// to setgroups first when unprivileged (effective uid not 0).
func WriteIDMap(pid int, gid bool, mappings []IDMapping) error {
	if err := ValidateMappings(mappings); err != nil {
		return err
	}

	base := filepath.Join("/proc", fmt.Sprint(pid))
	if gid && os.Geteuid() != 0 {
		if err := os.WriteFile(filepath.Join(base, "setgroups"), []byte("deny"), 0644); err != nil {
			if !os.IsNotExist(err) && !os.IsPermission(err) {
				return errs.Wrap(err, errs.Io, "write_id_map")
			}
		}
	}

	name := "uid_map"
	if gid {
		name = "gid_map"
	}
	content := formatIDMap(mappings)
	if err := os.WriteFile(filepath.Join(base, name), []byte(content), 0644); err != nil {
		if os.IsPermission(err) {
			return errs.Wrap(err, errs.Permission, "write_id_map")
		}
		return errs.Wrap(err, errs.Io, "write_id_map")
	}
	return nil
}

func formatIDMap(mappings []IDMapping) string {
	var b strings.Builder
	for _, m := range mappings {
		fmt.Fprintf(&b, "%d %d %d\n", m.InsideID, m.OutsideID, m.Length)
	}
	return b.String()
}

// maxHostnameLen is the kernel's HOST_NAME_MAX.
const maxHostnameLen = 64

// SetHostname sets the hostname; the caller must already be in a UTS
// namespace.
func SetHostname(name string) error {
	if len(name) > maxHostnameLen {
		return errs.WrapWithDetail(nil, errs.Invalid, "set_hostname",
			fmt.Sprintf("hostname exceeds %d bytes", maxHostnameLen))
	}
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			return errs.New(errs.Invalid, "set_hostname", "hostname must be printable ASCII")
		}
	}
	if err := syscall.Sethostname([]byte(name)); err != nil {
		return errs.Wrap(err, errs.Io, "set_hostname")
	}
	return nil
}

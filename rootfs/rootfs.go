// Package rootfs builds and tears down a container's pivoted root
// filesystem: bind mounts, synthesized /proc, /dev and /dev/pts, and the
// pivot_root sequence itself.
package rootfs

import (
	"os"
	"path/filepath"
	"syscall"

	"alice/errs"
)

// RootEnv overrides the default directory new container rootfs trees are
// created under.
const RootEnv = "ALICE_ROOTFS_ROOT"

const defaultRoot = "/var/lib/alice/containers"

// DefaultRoot returns the configured rootfs storage root.
func DefaultRoot() string {
	if v := os.Getenv(RootEnv); v != "" {
		return v
	}
	return defaultRoot
}

// mount propagation / option flags, named the way the kernel names them.
const (
	msPrivate = syscall.MS_PRIVATE
	msRec     = syscall.MS_REC
	msBind    = syscall.MS_BIND
	msRdonly  = syscall.MS_RDONLY
	msNosuid  = syscall.MS_NOSUID
	msNodev   = syscall.MS_NODEV
	msNoexec  = syscall.MS_NOEXEC
	msRemount = syscall.MS_REMOUNT
	msDetach  = syscall.MNT_DETACH
)

// mountRecord describes one mount applied to the rootfs, in the order it
// was applied, so a partial failure can be unwound in reverse.
// Every record, the bind of the rootfs onto itself included, is undone the
// same way: a detached unmount of target.
type mountRecord struct {
	target string
}

// Rootfs is an absolute directory plus the mounts layered onto it.
type Rootfs struct {
	dir     string
	mounts  []mountRecord
	pivoted bool
}

// Create ensures dir exists and severs mount propagation from the host by
// bind-mounting dir onto itself and marking it MS_PRIVATE, so pivot_root
// has a mount point to operate on.
func Create(dir string) (*Rootfs, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.Wrap(err, errs.Invalid, "create")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Wrap(err, errs.Io, "create")
	}

	r := &Rootfs{dir: dir}

	if err := syscall.Mount(dir, dir, "", msBind|msRec, ""); err != nil {
		return nil, errs.Wrap(err, errs.Io, "create")
	}
	r.mounts = append(r.mounts, mountRecord{target: dir})

	if err := syscall.Mount("", dir, "", msRec|msPrivate, ""); err != nil {
		r.unwind()
		return nil, errs.Wrap(err, errs.Io, "create")
	}

	return r, nil
}

// Open wraps an existing rootfs directory without performing the
// bind-mount-onto-self construction step, for a supervisor process
// re-attaching to a container an earlier invocation already built.
func Open(dir string) (*Rootfs, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.Wrap(err, errs.Invalid, "open")
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotFound, "open", "rootfs directory does not exist")
		}
		return nil, errs.Wrap(err, errs.Io, "open")
	}
	return &Rootfs{dir: dir}, nil
}

// Dir returns the rootfs's absolute directory.
func (r *Rootfs) Dir() string { return r.dir }

func (r *Rootfs) resolve(targetRelative string) string {
	return filepath.Join(r.dir, targetRelative)
}

// BindMountRO bind-mounts source onto targetRelative (created if missing)
// then remounts it read-only, a two-step sequence because MS_BIND and
// MS_RDONLY cannot be combined in a single mount(2) call.
func (r *Rootfs) BindMountRO(source, targetRelative string) error {
	target := r.resolve(targetRelative)
	if err := os.MkdirAll(target, 0755); err != nil {
		return errs.Wrap(err, errs.Io, "bind_mount_ro")
	}

	if err := syscall.Mount(source, target, "", msBind|msRec, ""); err != nil {
		return errs.WrapWithDetail(err, errs.Io, "bind_mount_ro", target)
	}
	r.mounts = append(r.mounts, mountRecord{target: target})

	if err := syscall.Mount(target, target, "", msBind|msRemount|msRdonly|msRec, ""); err != nil {
		r.unwind()
		return errs.WrapWithDetail(err, errs.Io, "bind_mount_ro", target)
	}
	return nil
}

// MountProc mounts procfs at /proc inside the rootfs.
func (r *Rootfs) MountProc() error {
	target := r.resolve("proc")
	if err := os.MkdirAll(target, 0755); err != nil {
		return errs.Wrap(err, errs.Io, "mount_proc")
	}
	if err := syscall.Mount("proc", target, "proc", msNosuid|msNoexec|msNodev, ""); err != nil {
		return errs.Wrap(err, errs.Io, "mount_proc")
	}
	r.mounts = append(r.mounts, mountRecord{target: target})
	return nil
}

// devNode is one synthesized /dev entry.
type devNode struct {
	name  string
	major uint32
	minor uint32
}

var standardDevNodes = []devNode{
	{"null", 1, 3},
	{"zero", 1, 5},
	{"full", 1, 7},
	{"random", 1, 8},
	{"urandom", 1, 9},
	{"tty", 5, 0},
}

// SetupDev creates a minimal /dev via tmpfs plus the standard device nodes.
// When mknod is forbidden (e.g. inside an unprivileged user namespace), it
// falls back to bind-mounting each node from the host.
func (r *Rootfs) SetupDev() error {
	devDir := r.resolve("dev")
	if err := os.MkdirAll(devDir, 0755); err != nil {
		return errs.Wrap(err, errs.Io, "setup_dev")
	}
	if err := syscall.Mount("tmpfs", devDir, "tmpfs", msNosuid, "mode=755,size=65536k"); err != nil {
		return errs.Wrap(err, errs.Io, "setup_dev")
	}
	r.mounts = append(r.mounts, mountRecord{target: devDir})

	for _, n := range standardDevNodes {
		path := filepath.Join(devDir, n.name)
		devNum := int((n.major << 8) | n.minor)
		if err := syscall.Mknod(path, syscall.S_IFCHR|0666, devNum); err != nil {
			if err := r.bindFromHost("/dev/"+n.name, path); err != nil {
				return errs.WrapWithDetail(err, errs.Io, "setup_dev", n.name)
			}
		}
	}

	ptsDir := filepath.Join(devDir, "pts")
	if err := os.MkdirAll(ptsDir, 0755); err != nil {
		return errs.Wrap(err, errs.Io, "setup_dev")
	}
	if err := syscall.Mount("devpts", ptsDir, "devpts", msNosuid|msNoexec,
		"newinstance,ptmxmode=0666,mode=0620"); err != nil {
		return errs.Wrap(err, errs.Io, "setup_dev")
	}
	r.mounts = append(r.mounts, mountRecord{target: ptsDir})

	return nil
}

func (r *Rootfs) bindFromHost(source, target string) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	f.Close()
	if err := syscall.Mount(source, target, "", msBind, ""); err != nil {
		return err
	}
	r.mounts = append(r.mounts, mountRecord{target: target})
	return nil
}

// SetHosts writes a synthesized /etc/hosts.
func (r *Rootfs) SetHosts(content string) error {
	return r.writeEtc("hosts", content)
}

// SetResolvConf writes a synthesized /etc/resolv.conf.
func (r *Rootfs) SetResolvConf(content string) error {
	return r.writeEtc("resolv.conf", content)
}

// SetHostname writes /etc/hostname.
func (r *Rootfs) SetHostname(name string) error {
	return r.writeEtc("hostname", name+"\n")
}

func (r *Rootfs) writeEtc(name, content string) error {
	etc := r.resolve("etc")
	if err := os.MkdirAll(etc, 0755); err != nil {
		return errs.Wrap(err, errs.Io, "write_etc")
	}
	if err := os.WriteFile(filepath.Join(etc, name), []byte(content), 0644); err != nil {
		return errs.Wrap(err, errs.Io, "write_etc")
	}
	return nil
}

// PreparePivot ensures a .put_old subdirectory exists and returns its
// absolute path.
func (r *Rootfs) PreparePivot() (string, error) {
	putOld := r.resolve(".put_old")
	if err := os.MkdirAll(putOld, 0700); err != nil {
		return "", errs.Wrap(err, errs.Io, "prepare_pivot")
	}
	return putOld, nil
}

// Pivot performs pivot_root(newRoot, putOld), chdir("/"), unmounts putOld
// with MNT_DETACH and removes it. putOld must be a direct child of
// newRoot; passing newRoot itself as putOld, or any putOld outside
// newRoot, is rejected before the syscall runs.
func (r *Rootfs) Pivot(newRoot, putOld string) error {
	if err := PivotRoot(newRoot, putOld); err != nil {
		return err
	}
	r.pivoted = true
	return nil
}

// PivotRoot is the free-function form of Pivot's syscall sequence, usable
// from a re-exec'd helper process that holds no *Rootfs (its pivot runs
// after execve replaces the process image that built one). Behaves
// identically to Pivot otherwise.
func PivotRoot(newRoot, putOld string) error {
	if newRoot == putOld || filepath.Dir(putOld) != newRoot {
		return errs.ErrInvalidPivot
	}

	if err := syscall.PivotRoot(newRoot, putOld); err != nil {
		return errs.Wrap(err, errs.Io, "pivot")
	}

	if err := os.Chdir("/"); err != nil {
		return errs.Wrap(err, errs.Io, "pivot")
	}

	oldRootInNewRoot := "/" + filepath.Base(putOld)
	if err := syscall.Unmount(oldRootInNewRoot, msDetach); err != nil {
		return errs.Wrap(err, errs.Io, "pivot")
	}

	if err := os.RemoveAll(oldRootInNewRoot); err != nil {
		return errs.Wrap(err, errs.Io, "pivot").WithNote("old root directory removal failed, left inert")
	}
	return nil
}

// BindSecret mounts data as a read-only tmpfs file at targetRelative, for
// the secret-binding collaborator interface.
func (r *Rootfs) BindSecret(targetRelative string, data []byte) error {
	target := r.resolve(targetRelative)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errs.Wrap(err, errs.Io, "bind_secret")
	}

	tmpDir, err := os.MkdirTemp("", "alice-secret-*")
	if err != nil {
		return errs.Wrap(err, errs.Io, "bind_secret")
	}
	if err := syscall.Mount("tmpfs", tmpDir, "tmpfs", msNosuid, "size=1m,mode=700"); err != nil {
		os.RemoveAll(tmpDir)
		return errs.Wrap(err, errs.Io, "bind_secret")
	}

	secretFile := filepath.Join(tmpDir, filepath.Base(targetRelative))
	if err := os.WriteFile(secretFile, data, 0400); err != nil {
		syscall.Unmount(tmpDir, msDetach)
		os.RemoveAll(tmpDir)
		return errs.Wrap(err, errs.Io, "bind_secret")
	}

	if err := os.WriteFile(target, nil, 0400); err != nil && !os.IsExist(err) {
		syscall.Unmount(tmpDir, msDetach)
		os.RemoveAll(tmpDir)
		return errs.Wrap(err, errs.Io, "bind_secret")
	}
	if err := syscall.Mount(secretFile, target, "", msBind, ""); err != nil {
		syscall.Unmount(tmpDir, msDetach)
		os.RemoveAll(tmpDir)
		return errs.Wrap(err, errs.Io, "bind_secret")
	}
	r.mounts = append(r.mounts, mountRecord{target: target})
	return nil
}

// unwind tears down mounts in reverse order, used both for partial-
// construction failures and for Destroy.
func (r *Rootfs) unwind() {
	for i := len(r.mounts) - 1; i >= 0; i-- {
		syscall.Unmount(r.mounts[i].target, msDetach)
	}
	r.mounts = nil
}

// Destroy unmounts every layered mount in reverse order. It is a no-op if
// the rootfs already pivoted into place (the mount table entries belong to
// the now-unreachable old root's namespace, torn down with the namespace
// itself) and safe to call more than once.
func (r *Rootfs) Destroy() error {
	if r.pivoted {
		return nil
	}
	r.unwind()
	return nil
}

package container

import (
	"fmt"

	"alice/cgroup"
	"alice/errs"
	"alice/nsutil"
	"alice/rootfs"
	"alice/secretbind"
	"alice/telemetry"
)

// Create provisions a Container's cgroup and rootfs but does not spawn
// any process; call Start to bring it to Running. Failures past cgroup
// creation are unwound in reverse order before the error is returned.
func Create(id string, cfg Config) (*Container, error) {
	if err := ValidateName(id); err != nil {
		return nil, err
	}
	if cfg.RootfsSource == "" {
		return nil, errs.ErrInvalidRootfs
	}
	if cfg.Namespaces == 0 {
		cfg.Namespaces = nsutil.DefaultSet
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Noop{}
	}

	cg, err := cgroup.Create(id)
	if err != nil {
		return nil, err
	}

	if err := applyCgroupLimits(cg, cfg); err != nil {
		cg.Destroy()
		return nil, err
	}

	rfs, err := rootfs.Create(rootfs.DefaultRoot() + "/" + id)
	if err != nil {
		cg.Destroy()
		return nil, err
	}

	if err := buildRootfsTree(rfs, cfg); err != nil {
		rfs.Destroy()
		cg.Destroy()
		return nil, err
	}

	if err := bindSecrets(rfs, cfg, id); err != nil {
		rfs.Destroy()
		cg.Destroy()
		return nil, err
	}

	c := &Container{
		id:      id,
		cfg:     cfg,
		emit:    cfg.Telemetry,
		persist: cfg.Persistence,
		state:   Created,
		cg:      cg,
		rfs:     rfs,
	}
	c.emit.Emit(telemetry.Event{Kind: telemetry.StateChanged, ContainerID: id, ToState: Created.String()})
	c.savePersistence()
	return c, nil
}

func applyCgroupLimits(cg *cgroup.Cgroup, cfg Config) error {
	const periodUs = 100_000

	if cfg.CpuPct > 0 {
		quotaUs := uint64(cfg.CpuPct) * periodUs / 100
		if err := cg.SetCpuMax(quotaUs, periodUs); err != nil {
			return err
		}
	}
	if cfg.MemoryMax > 0 {
		if err := cg.SetMemoryMax(cfg.MemoryMax); err != nil {
			return err
		}
	}
	for _, lim := range cfg.IOLimits {
		rbps, wbps := lim.RBps, lim.WBps
		if rbps == 0 {
			rbps = cgroup.Unlimited
		}
		if wbps == 0 {
			wbps = cgroup.Unlimited
		}
		if err := cg.SetIoMax(lim.Major, lim.Minor, rbps, wbps); err != nil {
			return err
		}
	}
	return nil
}

func buildRootfsTree(rfs *rootfs.Rootfs, cfg Config) error {
	if err := rfs.BindMountRO(cfg.RootfsSource, "."); err != nil {
		return err
	}
	if err := rfs.MountProc(); err != nil {
		return err
	}
	if err := rfs.SetupDev(); err != nil {
		return err
	}
	if err := rfs.SetHosts("127.0.0.1 localhost\n"); err != nil {
		return err
	}
	if err := rfs.SetResolvConf("nameserver 127.0.0.1\n"); err != nil {
		return err
	}
	if cfg.Hostname != "" {
		if err := rfs.SetHostname(cfg.Hostname); err != nil {
			return err
		}
	}
	if _, err := rfs.PreparePivot(); err != nil {
		return err
	}
	return nil
}

// pivotPaths returns the (new_root, put_old) pair RunInit needs, derived
// from the container's rootfs directory.
func (c *Container) pivotPaths() (newRoot, putOld string) {
	newRoot = c.rfs.Dir()
	putOld = fmt.Sprintf("%s/.put_old", newRoot)
	return newRoot, putOld
}

// bindSecrets resolves secrets for id via cfg.SecretHook (a no-op if
// unset) and binds each into the rootfs before the container ever runs.
func bindSecrets(rfs *rootfs.Rootfs, cfg Config, id string) error {
	hook := cfg.SecretHook
	if hook == nil {
		hook = secretbind.Noop{}
	}
	secrets, err := hook.Resolve(id)
	if err != nil {
		return err
	}
	for _, s := range secrets {
		if err := rfs.BindSecret(s.TargetPath, s.Data); err != nil {
			return err
		}
	}
	return nil
}

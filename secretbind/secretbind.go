// Package secretbind lets a collaborator inject secret material into a
// container's rootfs when the container is created, without the secret ever
// touching the container's image or persistence snapshots.
package secretbind

import (
	"os"

	"alice/errs"
)

// Secret is one piece of material to bind into the container.
type Secret struct {
	// Name identifies the secret for logging; never logged with Data.
	Name string
	// Data is the secret payload, written to a tmpfs-backed file.
	Data []byte
	// TargetPath is the in-container path the secret is bound at.
	TargetPath string
}

// Hook resolves the secrets a container should receive. Implementations
// typically call out to a vault or orchestrator API.
type Hook interface {
	Resolve(containerID string) ([]Secret, error)
}

// Noop resolves no secrets. The default when no Hook is configured.
type Noop struct{}

// Resolve implements Hook by returning no secrets.
func (Noop) Resolve(string) ([]Secret, error) { return nil, nil }

// Static returns a fixed list of secrets regardless of container ID,
// useful for tests and single-tenant deployments.
type Static struct {
	Secrets []Secret
}

// Resolve implements Hook.
func (s Static) Resolve(string) ([]Secret, error) { return s.Secrets, nil }

// WriteTemp materializes secret.Data to a file at dir/secret.Name
// with mode 0400, returning the path for the caller to bind-mount from.
// The caller is responsible for the bind-mount and for removing the
// source file once the mount is in place.
func WriteTemp(dir string, secret Secret) (string, error) {
	path := dir + "/" + secret.Name
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0400)
	if err != nil {
		return "", errs.Wrap(err, errs.Io, "secretbind_write")
	}
	defer f.Close()
	if _, err := f.Write(secret.Data); err != nil {
		os.Remove(path)
		return "", errs.Wrap(err, errs.Io, "secretbind_write")
	}
	return path, nil
}

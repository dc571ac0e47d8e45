package mount

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"

	"github.com/nace/automount/internal/system"
)

const mountSuffix = ".mount"

// EnvSpec is the content of a mount environment file.
type EnvSpec struct {
	User   string
	UID    string
	GID    string
	UUID   string
	FSType string
	Opts   string
}

// Render returns the file body. Equal specs render to equal bytes.
func (e EnvSpec) Render() []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "RWUSER=%s\n", e.User)
	fmt.Fprintf(&b, "RW_UID=%s\n", e.UID)
	fmt.Fprintf(&b, "RW_GID=%s\n", e.GID)
	fmt.Fprintf(&b, "UUID=%s\n", e.UUID)
	fmt.Fprintf(&b, "FSTYPE=%s\n", e.FSType)
	fmt.Fprintf(&b, "OPTS=%s\n", e.Opts)

	return []byte(b.String())
}

// Instance returns the escaped mount unit name for a partition mounted at
// <mediaRoot>/<user>/<uuid>, e.g. run-media-me-1111\x2dAAAA.mount.
func Instance(mediaRoot, user, uuid string) string {
	return unit.UnitNamePathEscape(MountPath(mediaRoot, user, uuid)) + mountSuffix
}

// MountPath returns the mount point path for a partition.
func MountPath(mediaRoot, user, uuid string) string {
	return path.Join(mediaRoot, user, uuid)
}

// unescapeInstance normalizes an escaped unit name or a literal path to the
// unescaped "/run/media/<user>/<uuid>.mount" form.
func unescapeInstance(instance string) string {
	inst := strings.TrimSpace(instance)

	if strings.HasSuffix(inst, mountSuffix) && !strings.HasPrefix(inst, "/") {
		return unit.UnitNamePathUnescape(strings.TrimSuffix(inst, mountSuffix)) + mountSuffix
	}

	if !strings.HasPrefix(inst, "/") {
		inst = "/" + inst
	}
	if !strings.HasSuffix(inst, mountSuffix) {
		inst += mountSuffix
	}

	return inst
}

// EnvWriter maintains per-partition environment files for the mount helper.
type EnvWriter struct {
	root string
}

// NewEnvWriter creates a writer rooted at root.
func NewEnvWriter(root string) *EnvWriter {
	return &EnvWriter{root: root}
}

// Path returns the environment file location for instance.
func (w *EnvWriter) Path(instance string) string {
	rel := strings.TrimLeft(unescapeInstance(instance), "/")
	return filepath.Join(w.root, filepath.FromSlash(rel)+".env")
}

// Write atomically writes the environment file for instance and returns its
// path. The file is world-readable.
func (w *EnvWriter) Write(instance string, spec EnvSpec) (string, error) {
	p := w.Path(instance)

	if err := system.AtomicWriteFile(p, spec.Render(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write environment file: %w", err)
	}

	return p, nil
}

// Remove deletes the environment file for instance. A missing file is not an
// error.
func (w *EnvWriter) Remove(instance string) error {
	if err := system.RemoveIfExists(w.Path(instance)); err != nil {
		return fmt.Errorf("failed to remove environment file: %w", err)
	}
	return nil
}

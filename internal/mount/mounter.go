package mount

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/nace/automount/internal/system"
)

// ProbeMounter performs the temporary mount used to inspect a btrfs volume.
type ProbeMounter interface {
	MountReadOnly(ctx context.Context, device, mountPoint, fstype string) error
	UnmountLazy(mountPoint string) error
	IsSubvolume(ctx context.Context, path string) bool
}

// Mounter handles the probe mount through mount(8) and umount2(2).
type Mounter struct {
	runner system.Runner
}

// NewMounter creates a new mounter
func NewMounter(runner system.Runner) *Mounter {
	return &Mounter{runner: runner}
}

// MountReadOnly mounts device read-only at mountPoint.
func (m *Mounter) MountReadOnly(ctx context.Context, device, mountPoint, fstype string) error {
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return fmt.Errorf("failed to create mount point: %w", err)
	}

	if err := m.runner.Run(ctx, "mount", "-t", fstype, "-o", "ro", device, mountPoint); err != nil {
		return fmt.Errorf("failed to mount %s to %s: %w", device, mountPoint, err)
	}

	return nil
}

// UnmountLazy detaches mountPoint even if it is busy.
func (m *Mounter) UnmountLazy(mountPoint string) error {
	if err := unix.Unmount(mountPoint, unix.MNT_DETACH); err != nil && err != unix.EINVAL {
		return fmt.Errorf("failed to unmount %s: %w", mountPoint, err)
	}

	return nil
}

// IsSubvolume reports whether path is a btrfs subvolume.
func (m *Mounter) IsSubvolume(ctx context.Context, path string) bool {
	return m.runner.Run(ctx, "btrfs", "subvolume", "show", path) == nil
}

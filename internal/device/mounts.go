package device

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/siderolabs/go-retry/retry"
)

// Mount polling used after a mount unit has been started.
const (
	mountPollAttempts = 10
	mountPollInterval = 150 * time.Millisecond
)

// ErrNotMounted is returned when a partition has no mountpoint.
var ErrNotMounted = errors.New("partition is not mounted")

// MountEntry is one line of the mount table.
type MountEntry struct {
	Device     string
	Mountpoint string
	FSType     string
}

// MountTable reads the current mount table.
type MountTable interface {
	Mounts(ctx context.Context) ([]MountEntry, error)
}

// SystemMounts reads the mount table through gopsutil.
type SystemMounts struct{}

// Mounts returns every mounted filesystem.
func (SystemMounts) Mounts(ctx context.Context) ([]MountEntry, error) {
	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}

	entries := make([]MountEntry, 0, len(parts))
	for _, p := range parts {
		entries = append(entries, MountEntry{
			Device:     p.Device,
			Mountpoint: p.Mountpoint,
			FSType:     p.Fstype,
		})
	}

	return entries, nil
}

// Mountpoint returns where the filesystem uuid is mounted.
func (inv *Inventory) Mountpoint(ctx context.Context, uuid string) (string, error) {
	target, err := inv.resolve(ByUUIDPath(uuid))
	if err != nil {
		return "", ErrNotMounted
	}

	entries, err := inv.mounts.Mounts(ctx)
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		if !filepath.IsAbs(e.Device) {
			continue
		}

		dev, err := inv.resolve(e.Device)
		if err != nil {
			continue
		}

		if dev == target {
			return e.Mountpoint, nil
		}
	}

	return "", ErrNotMounted
}

// WaitMounted polls until the filesystem uuid shows up in the mount table.
func (inv *Inventory) WaitMounted(ctx context.Context, uuid string) (string, error) {
	var mountpoint string

	err := retry.Constant(mountPollAttempts*mountPollInterval, retry.WithUnits(mountPollInterval)).RetryWithContext(ctx,
		func(ctx context.Context) error {
			mp, err := inv.Mountpoint(ctx, uuid)
			if err != nil {
				if errors.Is(err, ErrNotMounted) {
					return retry.ExpectedError(err)
				}
				return err
			}

			mountpoint = mp

			return nil
		})
	if err != nil {
		return "", fmt.Errorf("waiting for %s to mount: %w", uuid, err)
	}

	return mountpoint, nil
}

package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nace/automount/internal/device"
	"github.com/nace/automount/internal/enablement"
)

func partition(uuid, mountpoint string) device.Partition {
	return device.Partition{
		DevicePath: device.ByUUIDPath(uuid),
		FSType:     "ext4",
		UUID:       uuid,
		SizeBytes:  1 << 30,
		Model:      "Disk",
		Mountpoint: mountpoint,
	}
}

func TestBuildListing(t *testing.T) {
	desktop := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(desktop, "data.desktop"),
		[]byte("[Desktop Entry]\nName=Data\nURL=file:///run/media/me/cccc\n"), 0o644))

	snap := device.Snapshot{
		Unmounted: []device.Partition{partition("dddd", ""), partition("aaaa", ""), partition("bbbb", "")},
		Mounted:   []device.Partition{partition("cccc", "/run/media/me/cccc"), partition("eeee", "/home")},
		Locked:    []device.LockedLuks{{OuterDevicePath: device.ByUUIDPath("ffff"), OuterUUID: "ffff"}},
	}
	set := enablement.Set{Partitions: []string{device.ByUUIDPath("bbbb"), device.ByUUIDPath("cccc")}}

	listing := BuildListing(snap, set, desktop)

	var order []string
	for _, p := range listing.Partitions {
		order = append(order, p.UUID)
	}
	assert.Equal(t, []string{"bbbb", "cccc", "aaaa", "dddd"}, order)

	assert.True(t, listing.Partitions[0].Enabled)
	assert.Equal(t, "Data", listing.Partitions[1].Shortcut)
	assert.False(t, listing.Partitions[2].Enabled)

	require.Len(t, listing.External, 1)
	assert.Equal(t, "eeee", listing.External[0].UUID)
	assert.Empty(t, listing.External[0].Shortcut)

	assert.Equal(t, snap.Locked, listing.Locked)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "-", formatSize(0))
	assert.Equal(t, "1.0 GiB", formatSize(1<<30))
}

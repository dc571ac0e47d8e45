package mount

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-envparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeMounter struct {
	mountErr    error
	subvolume   bool
	createAt    bool
	mounted     []string
	unmounted   []string
	subvolPaths []string
}

func (f *fakeMounter) MountReadOnly(_ context.Context, _, mountPoint, _ string) error {
	if f.mountErr != nil {
		return f.mountErr
	}
	f.mounted = append(f.mounted, mountPoint)
	if f.createAt {
		return os.Mkdir(filepath.Join(mountPoint, "@"), 0o755)
	}
	return nil
}

func (f *fakeMounter) UnmountLazy(mountPoint string) error {
	f.unmounted = append(f.unmounted, mountPoint)
	// Remove what the fake "mounted" so the scratch dir can be deleted.
	return os.RemoveAll(filepath.Join(mountPoint, "@"))
}

func (f *fakeMounter) IsSubvolume(_ context.Context, path string) bool {
	f.subvolPaths = append(f.subvolPaths, path)
	return f.subvolume
}

func newTarget(fstype string) Target {
	return Target{DevicePath: "/dev/disk/by-uuid/1111-AAAA", FSType: fstype, User: "me", UID: "1000", GID: "1000"}
}

func TestOptionsTable(t *testing.T) {
	s := NewSynthesizer(&fakeMounter{mountErr: errors.New("no device")}, t.TempDir(), "", zaptest.NewLogger(t))

	for _, tc := range []struct {
		fstype   string
		wantType string
		wantOpts string
	}{
		{"ext4", "ext4", "rw,noatime,lazytime"},
		{"ext3", "ext3", "rw,noatime,lazytime"},
		{"xfs", "xfs", "rw,noatime,lazytime"},
		{"ntfs3", "ntfs3", "rw,noatime,lazytime"},
		{"vfat", "vfat", "rw,noatime,lazytime,uid=1000,gid=1000,utf8=1"},
		{"fat32", "fat32", "rw,noatime,lazytime,uid=1000,gid=1000,utf8=1"},
		{"exfat", "exfat", "rw,noatime,lazytime,uid=1000,gid=1000"},
		{"ntfs", "ntfs-3g", "rw,noatime,lazytime,uid=1000,gid=1000,big_writes,umask=0022"},
		{"f2fs", "f2fs", "rw,noatime,lazytime,compress_algorithm=zstd,compress_chksum,atgc,gc_merge"},
		{"btrfs", "btrfs", "rw,noatime,lazytime,compress-force=zstd,space_cache=v2,autodefrag,ssd_spread"},
	} {
		t.Run(tc.fstype, func(t *testing.T) {
			fstype, opts := s.Options(context.Background(), newTarget(tc.fstype))
			assert.Equal(t, tc.wantType, fstype)
			assert.Equal(t, tc.wantOpts, opts)

			fstype2, opts2 := s.Options(context.Background(), newTarget(tc.fstype))
			assert.Equal(t, fstype, fstype2)
			assert.Equal(t, opts, opts2)
		})
	}
}

func TestBtrfsRootSubvolume(t *testing.T) {
	media := t.TempDir()
	mounter := &fakeMounter{subvolume: true, createAt: true}
	s := NewSynthesizer(mounter, media, "", zaptest.NewLogger(t))

	_, opts := s.Options(context.Background(), newTarget("btrfs"))

	assert.Equal(t, "rw,noatime,lazytime,compress-force=zstd,space_cache=v2,autodefrag,ssd_spread,subvol=@", opts)
	require.Len(t, mounter.mounted, 1)
	assert.Equal(t, mounter.mounted, mounter.unmounted)
	assert.Equal(t, []string{filepath.Join(mounter.mounted[0], "@")}, mounter.subvolPaths)

	entries, err := os.ReadDir(filepath.Join(media, "me"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBtrfsPlainDirectoryIsNotSubvolume(t *testing.T) {
	mounter := &fakeMounter{subvolume: false, createAt: true}
	s := NewSynthesizer(mounter, t.TempDir(), "", zaptest.NewLogger(t))

	_, opts := s.Options(context.Background(), newTarget("btrfs"))

	assert.NotContains(t, opts, "subvol=")
	assert.Len(t, mounter.unmounted, 1)
}

func TestBtrfsProbeFailureLeavesNoDirectory(t *testing.T) {
	media := t.TempDir()
	mounter := &fakeMounter{mountErr: errors.New("mount: wrong fs type")}
	s := NewSynthesizer(mounter, media, "", zaptest.NewLogger(t))

	_, opts := s.Options(context.Background(), newTarget("btrfs"))

	assert.NotContains(t, opts, "subvol=")
	assert.Empty(t, mounter.unmounted)

	entries, err := os.ReadDir(filepath.Join(media, "me"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestF2fsRegistersFilesystem(t *testing.T) {
	registry := filepath.Join(t.TempDir(), "filesystems")
	require.NoError(t, os.WriteFile(registry, []byte("ext4\nvfat"), 0o644))

	s := NewSynthesizer(&fakeMounter{}, t.TempDir(), registry, zaptest.NewLogger(t))

	s.Options(context.Background(), newTarget("f2fs"))
	s.Options(context.Background(), newTarget("f2fs"))

	data, err := os.ReadFile(registry)
	require.NoError(t, err)
	assert.Equal(t, "ext4\nvfat\nf2fs\n", string(data))
}

func TestInstance(t *testing.T) {
	assert.Equal(t, `run-media-me-1111\x2dAAAA.mount`, Instance("/run/media", "me", "1111-AAAA"))
	assert.Equal(t, "/run/media/me/1111-AAAA", MountPath("/run/media", "me", "1111-AAAA"))
}

func TestEnvWriterPath(t *testing.T) {
	w := NewEnvWriter("/etc/nobara/automount")

	want := "/etc/nobara/automount/run/media/me/1111-AAAA.mount.env"
	assert.Equal(t, want, w.Path(`run-media-me-1111\x2dAAAA.mount`))
	assert.Equal(t, want, w.Path("/run/media/me/1111-AAAA.mount"))
	assert.Equal(t, want, w.Path("run/media/me/1111-AAAA"))
}

func TestEnvWriterWrite(t *testing.T) {
	root := t.TempDir()
	w := NewEnvWriter(root)
	instance := Instance("/run/media", "me", "1111-AAAA")
	spec := EnvSpec{User: "me", UID: "1000", GID: "1000", UUID: "1111-AAAA", FSType: "ext4", Opts: "rw,noatime,lazytime"}

	path, err := w.Write(instance, spec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "run/media/me/1111-AAAA.mount.env"), path)

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	env, err := envparse.Parse(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"RWUSER": "me",
		"RW_UID": "1000",
		"RW_GID": "1000",
		"UUID":   "1111-AAAA",
		"FSTYPE": "ext4",
		"OPTS":   "rw,noatime,lazytime",
	}, env)

	_, err = w.Write(instance, spec)
	require.NoError(t, err)

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, w.Remove(instance))
	assert.NoFileExists(t, path)
	require.NoError(t, w.Remove(instance))
}

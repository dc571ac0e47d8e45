// Package mount derives mount options and configures the per-partition
// systemd mount helper.
package mount

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nace/automount/internal/system"
)

const (
	baseOptions  = "rw,noatime,lazytime"
	f2fsOptions  = "compress_algorithm=zstd,compress_chksum,atgc,gc_merge"
	btrfsOptions = "compress-force=zstd,space_cache=v2,autodefrag,ssd_spread"

	btrfsRootSubvolume = "@"
	btrfsProbePattern  = ".btrfs_probe_"
)

// Target describes the partition options are computed for.
type Target struct {
	DevicePath string
	FSType     string
	User       string
	UID        string
	GID        string
}

// Synthesizer derives the filesystem driver and mount option string for a
// partition.
type Synthesizer struct {
	mounter         ProbeMounter
	mediaRoot       string
	filesystemsFile string
	logger          *zap.Logger
}

// NewSynthesizer creates a new synthesizer.
func NewSynthesizer(mounter ProbeMounter, mediaRoot, filesystemsFile string, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Synthesizer{
		mounter:         mounter,
		mediaRoot:       mediaRoot,
		filesystemsFile: filesystemsFile,
		logger:          logger,
	}
}

// Options returns the driver name and option string for t. Probe failures
// only drop the optional parts; Options never fails.
func (s *Synthesizer) Options(ctx context.Context, t Target) (string, string) {
	fstype := strings.ToLower(t.FSType)
	opts := []string{baseOptions}

	switch fstype {
	case "f2fs":
		opts = append(opts, f2fsOptions)
		if err := s.registerFilesystem("f2fs"); err != nil {
			s.logger.Warn("failed to register f2fs", zap.String("file", s.filesystemsFile), zap.Error(err))
		}

	case "btrfs":
		opts = append(opts, btrfsOptions)
		if s.hasRootSubvolume(ctx, t) {
			opts = append(opts, "subvol="+btrfsRootSubvolume)
		}

	case "vfat", "fat", "fat32":
		opts = append(opts, "uid="+t.UID, "gid="+t.GID, "utf8=1")

	case "exfat":
		opts = append(opts, "uid="+t.UID, "gid="+t.GID)

	case "ntfs":
		return "ntfs-3g", strings.Join(append(opts, "uid="+t.UID, "gid="+t.GID, "big_writes", "umask=0022"), ",")
	}

	return fstype, strings.Join(opts, ",")
}

// hasRootSubvolume mounts the volume read-only in a scratch directory and
// checks for a top-level "@" subvolume. The scratch mount and directory are
// always removed.
func (s *Synthesizer) hasRootSubvolume(ctx context.Context, t Target) bool {
	base := filepath.Join(s.mediaRoot, t.User)
	if err := os.MkdirAll(base, 0o755); err != nil {
		s.logger.Debug("btrfs probe skipped", zap.Error(err))
		return false
	}

	dir, err := os.MkdirTemp(base, btrfsProbePattern)
	if err != nil {
		s.logger.Debug("btrfs probe skipped", zap.Error(err))
		return false
	}

	cleanup := system.NewCleanupStack()
	defer func() {
		if err := cleanup.Execute(); err != nil {
			s.logger.Warn("btrfs probe cleanup failed", zap.String("dir", dir), zap.Error(err))
		}
	}()

	cleanup.Add(func() error { return os.Remove(dir) })

	if err := s.mounter.MountReadOnly(ctx, t.DevicePath, dir, "btrfs"); err != nil {
		s.logger.Debug("btrfs probe mount failed", zap.String("device", t.DevicePath), zap.Error(err))
		return false
	}

	cleanup.Add(func() error { return s.mounter.UnmountLazy(dir) })

	subvol := filepath.Join(dir, btrfsRootSubvolume)
	if info, err := os.Stat(subvol); err != nil || !info.IsDir() {
		return false
	}

	return s.mounter.IsSubvolume(ctx, subvol)
}

// registerFilesystem appends name to the filesystems registry when missing.
func (s *Synthesizer) registerFilesystem(name string) error {
	if s.filesystemsFile == "" {
		return nil
	}

	data, err := os.ReadFile(s.filesystemsFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == name {
			return nil
		}
	}

	f, err := os.OpenFile(s.filesystemsFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		name = "\n" + name
	}

	_, err = fmt.Fprintln(f, name)
	return err
}

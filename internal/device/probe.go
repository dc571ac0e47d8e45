package device

import (
	"context"

	"github.com/siderolabs/go-blockdevice/v2/blkid"
	"go.uber.org/zap"

	"github.com/nace/automount/internal/system"
)

// Identity holds the probed UUID and filesystem type of a device.
type Identity struct {
	UUID   string
	FSType string
}

func (id Identity) complete() bool {
	return id.UUID != "" && id.FSType != ""
}

// merge fills empty fields from other.
func (id Identity) merge(other Identity) Identity {
	if id.UUID == "" {
		id.UUID = other.UUID
	}
	if id.FSType == "" {
		id.FSType = other.FSType
	}
	return id
}

// Prober fills in identity details lsblk did not report.
type Prober interface {
	Probe(ctx context.Context, devPath string) Identity
}

// ChainProber tries the in-process blkid probe first, then `blkid -o export`,
// then udev properties. Every step is best effort.
type ChainProber struct {
	runner system.Runner
	logger *zap.Logger
}

// NewChainProber creates the default prober.
func NewChainProber(runner system.Runner, logger *zap.Logger) *ChainProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainProber{runner: runner, logger: logger}
}

// Probe returns whatever identity details can be found for devPath.
func (p *ChainProber) Probe(ctx context.Context, devPath string) Identity {
	var id Identity

	info, err := blkid.ProbePath(devPath, blkid.WithSkipLocking(true))
	if err != nil {
		p.logger.Debug("blkid probe failed", zap.String("device", devPath), zap.Error(err))
	} else if info != nil {
		if info.UUID != nil {
			id.UUID = info.UUID.String()
		}
		id.FSType = normalizeFSType(info.Name)
	}

	if id.complete() {
		return id
	}

	if out, err := p.runner.RunOutput(ctx, "blkid", "-o", "export", devPath); err == nil {
		values := system.ParseExport(out)
		id = id.merge(Identity{UUID: values["UUID"], FSType: values["TYPE"]})
	}

	if id.complete() {
		return id
	}

	if out, err := p.runner.RunOutput(ctx, "udevadm", "info", "--query=property", "--name="+devPath); err == nil {
		values := system.ParseExport(out)
		id = id.merge(Identity{UUID: values["ID_FS_UUID"], FSType: values["ID_FS_TYPE"]})
	}

	return id
}

// normalizeFSType maps in-process probe names onto the names lsblk uses.
func normalizeFSType(name string) string {
	switch name {
	case "luks":
		return fsLUKS
	case "":
		return ""
	default:
		return name
	}
}

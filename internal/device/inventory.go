package device

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"
)

// maxParentDepth bounds the walk up the PKNAME chain when inheriting a model.
const maxParentDepth = 4

// Inventory classifies block devices into mountable partitions and locked
// LUKS containers.
type Inventory struct {
	lister Lister
	prober Prober
	mounts MountTable
	logger *zap.Logger
	header HeaderChecker

	resolve func(string) (string, error)
}

// HeaderChecker tests a device for a LUKS header. It backs up the probe chain
// when neither lsblk nor blkid reports a filesystem type.
type HeaderChecker interface {
	IsLUKS(ctx context.Context, device string) bool
}

// NewInventory creates a new inventory.
func NewInventory(lister Lister, prober Prober, mounts MountTable, logger *zap.Logger) *Inventory {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Inventory{
		lister:  lister,
		prober:  prober,
		mounts:  mounts,
		logger:  logger,
		resolve: filepath.EvalSymlinks,
	}
}

// WithHeaderCheck sets the LUKS header test used for rows whose type stays
// unknown after probing.
func (inv *Inventory) WithHeaderCheck(h HeaderChecker) *Inventory {
	inv.header = h
	return inv
}

// devices is one lsblk read with parent/child indexes.
type devices struct {
	rows     []Row
	byName   map[string]int
	children map[string][]int
}

func index(rows []Row) *devices {
	d := &devices{
		rows:     rows,
		byName:   make(map[string]int, len(rows)),
		children: make(map[string][]int),
	}

	for i, row := range rows {
		d.byName[row.Name] = i
		if row.PKName != "" {
			d.children[row.PKName] = append(d.children[row.PKName], i)
		}
	}

	return d
}

// cryptChild returns the crypt mapping opened on top of name, if any.
func (d *devices) cryptChild(name string) (Row, bool) {
	for _, i := range d.children[name] {
		if d.rows[i].Type == typeCrypt {
			return d.rows[i], true
		}
	}
	return Row{}, false
}

// model returns the row's model, inherited from its ancestors when empty.
func (d *devices) model(row Row) string {
	for depth := 0; depth < maxParentDepth; depth++ {
		if row.Model != "" {
			return row.Model
		}

		i, ok := d.byName[row.PKName]
		if !ok {
			break
		}
		row = d.rows[i]
	}

	return unknown
}

// list reads lsblk and fills in missing identities.
func (inv *Inventory) list(ctx context.Context) (*devices, error) {
	rows, err := inv.lister.List(ctx)
	if err != nil {
		return nil, err
	}

	d := index(rows)
	for i := range d.rows {
		row := &d.rows[i]

		if row.UUID != "" && row.FSType != "" {
			continue
		}

		if row.Type == typeCrypt {
			id := inv.prober.Probe(ctx, filepath.Join("/dev/mapper", row.Name))
			if id.UUID == "" || id.FSType == "" {
				id = id.merge(inv.prober.Probe(ctx, filepath.Join("/dev", row.Name)))
			}
			row.UUID, row.FSType = pick(row.UUID, id.UUID), pick(row.FSType, id.FSType)

			continue
		}

		// Disks carrying a partition table have nothing to probe.
		if !partitionName(row.Name) || len(d.children[row.Name]) > 0 && row.Type == "disk" {
			continue
		}

		dev := filepath.Join("/dev", row.Name)
		id := inv.prober.Probe(ctx, dev)
		row.UUID, row.FSType = pick(row.UUID, id.UUID), pick(row.FSType, id.FSType)

		if row.FSType == "" && inv.header != nil && inv.header.IsLUKS(ctx, dev) {
			row.FSType = fsLUKS
		}
	}

	return d, nil
}

func pick(current, probed string) string {
	if current != "" {
		return current
	}
	return probed
}

// Scan enumerates block devices. A failed enumeration yields an empty
// snapshot; it never returns an error.
func (inv *Inventory) Scan(ctx context.Context) Snapshot {
	var snap Snapshot

	d, err := inv.list(ctx)
	if err != nil {
		inv.logger.Warn("device enumeration failed", zap.Error(err))
		return snap
	}

	locked := make(map[string]struct{})

	for _, row := range d.rows {
		if row.Type == typeCrypt || row.FSType != fsLUKS || !partitionName(row.Name) {
			continue
		}

		if _, unlocked := d.cryptChild(row.Name); unlocked {
			continue
		}

		locked[row.Name] = struct{}{}

		if row.UUID == "" {
			inv.logger.Debug("skipping LUKS container without UUID", zap.String("name", row.Name))
			continue
		}

		snap.Locked = append(snap.Locked, LockedLuks{
			OuterDevicePath: ByUUIDPath(row.UUID),
			OuterUUID:       row.UUID,
			SizeBytes:       row.Size,
			Model:           d.model(row),
		})
	}

	for _, row := range d.rows {
		if _, ok := locked[row.PKName]; ok {
			continue
		}

		if row.Type != typeCrypt && !partitionName(row.Name) {
			continue
		}

		if row.UUID == "" || !AllowedFilesystem(row.FSType) {
			continue
		}

		p := Partition{
			DevicePath: ByUUIDPath(row.UUID),
			FSType:     row.FSType,
			UUID:       row.UUID,
			SizeBytes:  row.Size,
			Model:      d.model(row),
			Mountpoint: row.Mountpoint,
		}

		if p.Mounted() {
			snap.Mounted = append(snap.Mounted, p)
		} else {
			snap.Unmounted = append(snap.Unmounted, p)
		}
	}

	return snap
}

// ResolveOuter finds the LUKS container holding the filesystem innerUUID,
// walking up through any layers between the filesystem and the crypt
// mapping. It reads device state afresh.
func (inv *Inventory) ResolveOuter(ctx context.Context, innerUUID string) (Outer, bool) {
	d, err := inv.list(ctx)
	if err != nil {
		inv.logger.Warn("device enumeration failed", zap.Error(err))
		return Outer{}, false
	}

	for _, row := range d.rows {
		if row.UUID != innerUUID || row.FSType == fsLUKS {
			continue
		}

		for depth := 0; depth < maxParentDepth; depth++ {
			i, ok := d.byName[row.PKName]
			if !ok {
				break
			}

			parent := d.rows[i]
			if row.Type == typeCrypt {
				if parent.UUID == "" {
					return Outer{}, false
				}

				return Outer{
					DevicePath: ByUUIDPath(parent.UUID),
					UUID:       parent.UUID,
					MapperName: row.Name,
				}, true
			}

			row = parent
		}
	}

	return Outer{}, false
}

// OuterUnlocked reports whether the container outerUUID has an active mapping.
func (inv *Inventory) OuterUnlocked(ctx context.Context, outerUUID string) bool {
	_, ok := inv.OuterMapping(ctx, outerUUID)
	return ok
}

// OuterMapping returns the name of the active mapping opened on the container
// outerUUID.
func (inv *Inventory) OuterMapping(ctx context.Context, outerUUID string) (string, bool) {
	d, err := inv.list(ctx)
	if err != nil {
		inv.logger.Warn("device enumeration failed", zap.Error(err))
		return "", false
	}

	for _, row := range d.rows {
		if row.Type == typeCrypt || row.UUID != outerUUID {
			continue
		}

		if child, ok := d.cryptChild(row.Name); ok {
			return child.Name, true
		}
	}

	return "", false
}

// Package device enumerates block devices that are candidates for
// automatic mounting.
package device

// ByUUIDPrefix is the stable device path prefix used for every partition.
const ByUUIDPrefix = "/dev/disk/by-uuid/"

// Partition is a mountable filesystem, either a plain partition or the
// filesystem inside an unlocked LUKS container.
type Partition struct {
	DevicePath string `json:"device_path"`
	FSType     string `json:"fstype"`
	UUID       string `json:"uuid"`
	SizeBytes  uint64 `json:"size_bytes"`
	Model      string `json:"model"`
	Mountpoint string `json:"mountpoint,omitempty"`
}

// Mounted reports whether the partition currently has a mountpoint.
func (p Partition) Mounted() bool {
	return p.Mountpoint != ""
}

// LockedLuks is a LUKS container with no active mapping.
type LockedLuks struct {
	OuterDevicePath string `json:"outer_device_path"`
	OuterUUID       string `json:"outer_uuid"`
	SizeBytes       uint64 `json:"size_bytes"`
	Model           string `json:"model"`
}

// Snapshot is the result of a single scan.
type Snapshot struct {
	Unmounted []Partition  `json:"unmounted"`
	Mounted   []Partition  `json:"mounted"`
	Locked    []LockedLuks `json:"locked"`
}

// Partitions returns mounted and unmounted partitions together.
func (s Snapshot) Partitions() []Partition {
	out := make([]Partition, 0, len(s.Unmounted)+len(s.Mounted))
	out = append(out, s.Unmounted...)
	return append(out, s.Mounted...)
}

// Find looks up a partition by UUID.
func (s Snapshot) Find(uuid string) (Partition, bool) {
	for _, p := range s.Partitions() {
		if p.UUID == uuid {
			return p, true
		}
	}
	return Partition{}, false
}

// Outer identifies the LUKS container holding an unlocked partition.
type Outer struct {
	DevicePath string
	UUID       string
	MapperName string
}

// Row is one line of lsblk output.
type Row struct {
	Name       string
	Type       string
	PKName     string
	UUID       string
	FSType     string
	Size       uint64
	Model      string
	Mountpoint string
}

// ByUUIDPath returns the stable device path for uuid.
func ByUUIDPath(uuid string) string {
	return ByUUIDPrefix + uuid
}

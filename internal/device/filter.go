package device

import "strings"

const (
	fsLUKS    = "crypto_LUKS"
	typeCrypt = "crypt"
	unknown   = "Unknown"
)

var allowedFilesystems = map[string]struct{}{
	"ext2":  {},
	"ext3":  {},
	"ext4":  {},
	"xfs":   {},
	"btrfs": {},
	"ntfs":  {},
	"ntfs3": {},
	"f2fs":  {},
	"vfat":  {},
	"fat":   {},
	"fat32": {},
	"exfat": {},
}

var partitionPrefixes = []string{"sd", "nvme", "mmcblk", "vd", "xvd", "hd"}

// AllowedFilesystem reports whether fstype may be auto-mounted.
func AllowedFilesystem(fstype string) bool {
	_, ok := allowedFilesystems[strings.ToLower(fstype)]
	return ok
}

// partitionName reports whether a kernel device name looks like a disk
// partition rather than a loop or device-mapper node.
func partitionName(name string) bool {
	if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "dm-") {
		return false
	}

	for _, prefix := range partitionPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}

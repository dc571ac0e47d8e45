package container

const mapperPrefix = "luks-"

// MapperName returns the device mapper name used for the container with the
// given LUKS UUID, e.g. luks-2222-BBBB.
func MapperName(outerUUID string) string {
	return mapperPrefix + outerUUID
}

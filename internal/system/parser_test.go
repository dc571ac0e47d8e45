package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValueRow(t *testing.T) {
	fields, err := ParseKeyValueRow(`NAME="sda1" TYPE="part" PKNAME="sda" UUID="1111-AAAA" FSTYPE="vfat" SIZE="536870912" MODEL="" MOUNTPOINT=""`)
	require.NoError(t, err)

	assert.Equal(t, "sda1", fields["NAME"])
	assert.Equal(t, "part", fields["TYPE"])
	assert.Equal(t, "sda", fields["PKNAME"])
	assert.Equal(t, "1111-AAAA", fields["UUID"])
	assert.Equal(t, "536870912", fields["SIZE"])
	assert.Equal(t, "", fields["MODEL"])
	assert.Contains(t, fields, "MOUNTPOINT")
}

func TestParseKeyValueRowKeepsSpaces(t *testing.T) {
	fields, err := ParseKeyValueRow(`NAME="sda" TYPE="disk" MODEL="Samsung SSD 870 EVO" MOUNTPOINT="/run/media/me/My Disk"`)
	require.NoError(t, err)

	assert.Equal(t, "Samsung SSD 870 EVO", fields["MODEL"])
	assert.Equal(t, "/run/media/me/My Disk", fields["MOUNTPOINT"])
}

func TestParseExport(t *testing.T) {
	out := "DEVNAME=/dev/sdb1\nUUID=2222-BBBB\nTYPE=crypto_LUKS\n\nnot a pair\n"

	values := ParseExport(out)

	assert.Equal(t, map[string]string{
		"DEVNAME": "/dev/sdb1",
		"UUID":    "2222-BBBB",
		"TYPE":    "crypto_LUKS",
	}, values)
}

package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDesktopShortcutName(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "games.desktop"), []byte(`[Desktop Entry]
# created by the file manager
Name=Games Drive #1
Name[de]=Spiele
Type=Link
URL=file:///run/media/me/1111-AAAA
Icon=drive-harddisk
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.desktop"), []byte(`[Desktop Action open]
URL=file:///run/media/me/2222-BBBB

[Desktop Entry]
Name=Browser
Exec=firefox
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("URL=file:///run/media/me/2222-BBBB\n"), 0o644))

	assert.Equal(t, "Games Drive #1", DesktopShortcutName(dir, "/run/media/me/1111-AAAA"))
	assert.Empty(t, DesktopShortcutName(dir, "/run/media/me/2222-BBBB"))
	assert.Empty(t, DesktopShortcutName(dir, ""))
	assert.Empty(t, DesktopShortcutName(filepath.Join(dir, "missing"), "/run/media/me/1111-AAAA"))
}

func TestPartitionPath(t *testing.T) {
	p, err := PartitionPath("1111-AAAA")
	require.NoError(t, err)
	assert.Equal(t, "/dev/disk/by-uuid/1111-AAAA", p)

	p, err = PartitionPath("/dev/disk/by-uuid/1111-AAAA")
	require.NoError(t, err)
	assert.Equal(t, "/dev/disk/by-uuid/1111-AAAA", p)

	_, err = PartitionPath("/dev/sdb1")
	assert.Error(t, err)

	_, err = PartitionPath("")
	assert.Error(t, err)
}

package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableRender(t *testing.T) {
	table := NewTable("PARTITION", "FS")
	table.AddRow("/dev/disk/by-uuid/1111-AAAA", "ext4")

	var buf bytes.Buffer
	table.Render(&buf)

	assert.Equal(t, 1, table.Len())
	assert.Contains(t, buf.String(), "PARTITION")
	assert.Contains(t, buf.String(), "/dev/disk/by-uuid/1111-AAAA")
}

func TestEmptyTableRendersNothing(t *testing.T) {
	var buf bytes.Buffer
	NewTable("A").Render(&buf)
	assert.Empty(t, buf.String())
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBufferedLogger(&buf)

	logger.Info("scanning %d devices", 3)
	logger.Debug("hidden")
	logger.Quiet = true
	logger.Success("hidden too")
	logger.Warning("stray keyslot on %s", "2222-BBBB")

	assert.Equal(t, "[INFO] scanning 3 devices\n[WARNING] stray keyslot on 2222-BBBB\n", buf.String())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.Empty(t, DefaultConfig().Validate())
}

func TestLoadFromMergesOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crypttab: /tmp/crypttab
cooldown: 2s
log:
  level: debug
`), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/crypttab", cfg.Crypttab)
	assert.Equal(t, 2*time.Second, cfg.Cooldown)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DefaultConfig().EnabledFile, cfg.EnabledFile)
	assert.Equal(t, 10*time.Minute, cfg.PassphraseTTL)
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("key_dir: relative/keys\nunit_template: automount\n"), 0o644))

	_, err := LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_dir")
	assert.Contains(t, err.Error(), "unit_template")
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("AUTOMOUNT_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidateReportsInFieldOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledFile = "enabled.conf"
	cfg.EnvDir = "env"
	cfg.KeyDir = "keys"
	cfg.Crypttab = "crypttab"
	cfg.MediaRoot = "media"
	cfg.Log.Level = "loud"

	for i := 0; i < 5; i++ {
		var got []string
		for _, e := range cfg.Validate() {
			got = append(got, e.Path)
		}
		assert.Equal(t, []string{"enabled_file", "env_dir", "key_dir", "crypttab", "media_root", "log.level"}, got)
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir = "/etc/nobara/automount"
	configFile       = "config.yaml"
)

// Dir resolves the configuration directory respecting AUTOMOUNT_CONFIG_DIR.
func Dir() string {
	if env := os.Getenv("AUTOMOUNT_CONFIG_DIR"); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
	}
	return defaultConfigDir
}

// Load loads the system config file on top of the defaults. A missing file
// is not an error.
func Load() (Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(Dir(), configFile)
	if err := mergeConfigFile(&cfg, path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", formatValidationErrors(errs))
	}

	return cfg, nil
}

// LoadFrom loads configuration from a specific file path
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := mergeConfigFile(&cfg, path); err != nil {
		return cfg, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", formatValidationErrors(errs))
	}

	return cfg, nil
}

// mergeConfigFile decodes the YAML file directly onto cfg, so keys absent
// from the file keep their current values.
func mergeConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// Validate checks the configuration and returns all problems found.
func (c Config) Validate() []ValidationError {
	var errs []ValidationError

	paths := []struct {
		path  string
		value string
	}{
		{"enabled_file", c.EnabledFile},
		{"env_dir", c.EnvDir},
		{"key_dir", c.KeyDir},
		{"crypttab", c.Crypttab},
		{"media_root", c.MediaRoot},
	}
	for _, p := range paths {
		if !filepath.IsAbs(p.value) {
			errs = append(errs, ValidationError{Path: p.path, Message: fmt.Sprintf("must be an absolute path, got %q", p.value)})
		}
	}

	if !strings.HasSuffix(c.UnitTemplate, "@") {
		errs = append(errs, ValidationError{Path: "unit_template", Message: "must end with '@'"})
	}

	if c.PassphraseTTL <= 0 {
		errs = append(errs, ValidationError{Path: "passphrase_ttl", Message: "must be positive"})
	}

	if c.Cooldown < 0 || c.MinBusy < 0 {
		errs = append(errs, ValidationError{Path: "cooldown", Message: "durations must not be negative"})
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{Path: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)})
	}

	return errs
}

func formatValidationErrors(errs []ValidationError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

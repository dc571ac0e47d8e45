package config

import "time"

// Config represents the complete automount configuration
type Config struct {
	EnabledFile     string        `yaml:"enabled_file"`
	EnvDir          string        `yaml:"env_dir"`
	KeyDir          string        `yaml:"key_dir"`
	Crypttab        string        `yaml:"crypttab"`
	MediaRoot       string        `yaml:"media_root"`
	UnitTemplate    string        `yaml:"unit_template"`
	FilesystemsFile string        `yaml:"filesystems_file"`
	PassphraseTTL   time.Duration `yaml:"passphrase_ttl"`
	Cooldown        time.Duration `yaml:"cooldown"`
	MinBusy         time.Duration `yaml:"min_busy"`
	Log             LogConfig     `yaml:"log"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

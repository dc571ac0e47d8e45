package config

import "time"

// DefaultConfig returns the built-in configuration. Paths match what the
// nobara-automount@.service template reads.
func DefaultConfig() Config {
	return Config{
		EnabledFile:     "/etc/nobara/automount/enabled.conf",
		EnvDir:          "/etc/nobara/automount",
		KeyDir:          "/etc/nobara/automount/keys",
		Crypttab:        "/etc/crypttab",
		MediaRoot:       "/run/media",
		UnitTemplate:    "nobara-automount@",
		FilesystemsFile: "/etc/filesystems",
		PassphraseTTL:   10 * time.Minute,
		Cooldown:        1500 * time.Millisecond,
		MinBusy:         400 * time.Millisecond,
		Log: LogConfig{
			Level: "info",
		},
	}
}

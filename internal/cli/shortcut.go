package cli

import (
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

const desktopEntryGroup = "Desktop Entry"

// DesktopShortcutName returns the Name= of a .desktop file in dir whose
// Desktop Entry URL= refers to mountpoint, or "" if there is none.
// Unreadable files are skipped.
func DesktopShortcutName(dir, mountpoint string) string {
	if mountpoint == "" {
		return ""
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.desktop"))
	if err != nil {
		return ""
	}

	for _, file := range files {
		cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, file)
		if err != nil {
			continue
		}

		entry, err := cfg.GetSection(desktopEntryGroup)
		if err != nil {
			continue
		}

		if url := entry.Key("URL").String(); url != "" && strings.Contains(url, mountpoint) {
			return entry.Key("Name").String()
		}
	}

	return ""
}

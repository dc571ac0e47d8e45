package container

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nace/automount/internal/system"
)

// crypttabOptions are the options written for every managed entry.
const crypttabOptions = "luks,discard"

// replacedPrefix marks a line for a managed container that was written by
// someone else. It is commented out while our entry is in place and restored
// when our entry is removed.
const replacedPrefix = "#automount-replaced: "

// CrypttabEntry is one line of the decrypt-at-boot table.
type CrypttabEntry struct {
	MapperName string
	UUID       string
	Keyfile    string
	Options    string
}

// String renders the entry as a tab separated crypttab line.
func (e CrypttabEntry) String() string {
	return strings.Join([]string{e.MapperName, "UUID=" + e.UUID, e.Keyfile, e.Options}, "\t")
}

// NewCrypttabEntry returns the managed entry for a container.
func NewCrypttabEntry(outerUUID, keyfile string) CrypttabEntry {
	return CrypttabEntry{
		MapperName: MapperName(outerUUID),
		UUID:       outerUUID,
		Keyfile:    keyfile,
		Options:    crypttabOptions,
	}
}

// parseCrypttabLine returns the entry on line, or false for comments, blank
// lines and entries not referencing a device by UUID.
func parseCrypttabLine(line string) (CrypttabEntry, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return CrypttabEntry{}, false
	}

	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return CrypttabEntry{}, false
	}

	entry := CrypttabEntry{MapperName: fields[0]}
	entry.UUID, _ = strings.CutPrefix(fields[1], "UUID=")
	if len(fields) > 2 {
		entry.Keyfile = fields[2]
	}
	if len(fields) > 3 {
		entry.Options = fields[3]
	}

	return entry, true
}

// matches reports whether e refers to the container outerUUID.
func (e CrypttabEntry) matches(outerUUID string) bool {
	return e.UUID == outerUUID || e.MapperName == MapperName(outerUUID)
}

// managed reports whether e is our entry for outerUUID, i.e. it unlocks the
// container with keyfile.
func (e CrypttabEntry) managed(outerUUID, keyfile string) bool {
	return e.matches(outerUUID) && e.Keyfile == keyfile
}

// replacedLine returns the original line hidden behind replacedPrefix if it
// refers to outerUUID.
func replacedLine(line, outerUUID string) (string, bool) {
	original, ok := strings.CutPrefix(line, replacedPrefix)
	if !ok {
		return "", false
	}

	entry, ok := parseCrypttabLine(original)
	if !ok || !entry.matches(outerUUID) {
		return "", false
	}

	return original, true
}

// Crypttab edits the decrypt-at-boot table. Unrelated lines are preserved.
type Crypttab struct {
	path string
}

// NewCrypttab creates an editor for path.
func NewCrypttab(path string) *Crypttab {
	return &Crypttab{path: path}
}

// Path returns the table location.
func (c *Crypttab) Path() string {
	return c.path
}

func (c *Crypttab) readLines() ([]string, os.FileMode, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0o600, nil
		}
		return nil, 0, fmt.Errorf("failed to read %s: %w", c.path, err)
	}
	defer f.Close() //nolint:errcheck

	mode := os.FileMode(0o600)
	if info, err := f.Stat(); err == nil {
		mode = info.Mode().Perm()
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", c.path, err)
	}

	return lines, mode, nil
}

func (c *Crypttab) writeLines(lines []string, mode os.FileMode) error {
	var data string
	if len(lines) > 0 {
		data = strings.Join(lines, "\n") + "\n"
	}

	if err := system.AtomicWriteFile(c.path, []byte(data), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.path, err)
	}
	return nil
}

func (c *Crypttab) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", c.path, err)
	}
	return system.WithFileLock(c.path, fn)
}

// Lookup returns the entry for outerUUID that unlocks it with keyfile. Lines
// for the same container using another key source are ignored.
func (c *Crypttab) Lookup(outerUUID, keyfile string) (CrypttabEntry, bool, error) {
	lines, _, err := c.readLines()
	if err != nil {
		return CrypttabEntry{}, false, err
	}

	for _, line := range lines {
		if entry, ok := parseCrypttabLine(line); ok && entry.managed(outerUUID, keyfile) {
			return entry, true, nil
		}
	}

	return CrypttabEntry{}, false, nil
}

// Upsert makes entry the only active line for its container. Earlier copies of
// entry are dropped; other lines for the same UUID or mapper name are
// commented out so that Remove can restore them.
func (c *Crypttab) Upsert(entry CrypttabEntry) error {
	return c.withLock(func() error {
		lines, mode, err := c.readLines()
		if err != nil {
			return err
		}

		kept := make([]string, 0, len(lines)+1)
		for _, line := range lines {
			parsed, ok := parseCrypttabLine(line)
			switch {
			case !ok || !parsed.matches(entry.UUID):
				kept = append(kept, line)
			case parsed.managed(entry.UUID, entry.Keyfile):
				// rewritten below
			default:
				kept = append(kept, replacedPrefix+line)
			}
		}
		kept = append(kept, entry.String())

		return c.writeLines(kept, mode)
	})
}

// Remove drops the entries unlocking outerUUID with keyfile and restores the
// lines Upsert commented out. It reports whether an entry was removed; the
// file is not rewritten otherwise.
func (c *Crypttab) Remove(outerUUID, keyfile string) (bool, error) {
	var removed bool

	err := c.withLock(func() error {
		lines, mode, err := c.readLines()
		if err != nil {
			return err
		}

		kept := make([]string, 0, len(lines))
		for _, line := range lines {
			if entry, ok := parseCrypttabLine(line); ok && entry.managed(outerUUID, keyfile) {
				removed = true
				continue
			}
			if original, ok := replacedLine(line, outerUUID); ok {
				line = original
			}
			kept = append(kept, line)
		}

		if !removed {
			return nil
		}

		return c.writeLines(kept, mode)
	})

	return removed, err
}

// Package enablement persists the set of partitions selected for automatic
// mounting.
package enablement

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nace/automount/internal/device"
	"github.com/nace/automount/internal/system"
)

// Set is the parsed content of the enablement file. Comments keep their
// original lines; Partitions keeps file order without duplicates.
type Set struct {
	Comments   []string
	Partitions []string
}

// Contains reports whether partition is enabled.
func (s Set) Contains(partition string) bool {
	return slices.Contains(s.Partitions, partition)
}

// Store reads and writes the enablement file.
type Store struct {
	path string
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Read parses the enablement file. A missing file is an empty set. Lines
// that are neither comments nor by-uuid paths are dropped.
func (s *Store) Read() (Set, error) {
	var set Set

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return set, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, "#"):
			set.Comments = append(set.Comments, line)
		case strings.HasPrefix(line, device.ByUUIDPrefix) && len(line) > len(device.ByUUIDPrefix):
			if !set.Contains(line) {
				set.Partitions = append(set.Partitions, line)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return Set{}, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	return set, nil
}

// Write replaces the file content with set: comments first, then one
// partition per line.
func (s *Store) Write(set Set) error {
	var b strings.Builder

	for _, c := range set.Comments {
		b.WriteString(c)
		b.WriteByte('\n')
	}
	for _, p := range set.Partitions {
		if !strings.HasPrefix(p, device.ByUUIDPrefix) {
			continue
		}
		b.WriteString(p)
		b.WriteByte('\n')
	}

	if err := system.AtomicWriteFile(s.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}

	return nil
}

// Set adds or removes partition under the file lock and returns the
// resulting set.
func (s *Store) Set(partition string, enabled bool) (Set, error) {
	var result Set

	err := s.withLock(func() error {
		set, err := s.Read()
		if err != nil {
			return err
		}

		idx := slices.Index(set.Partitions, partition)
		switch {
		case enabled && idx < 0:
			set.Partitions = append(set.Partitions, partition)
		case !enabled && idx >= 0:
			set.Partitions = slices.Delete(set.Partitions, idx, idx+1)
		}

		result = set

		return s.Write(set)
	})

	return result, err
}

// Snapshot reads the set under the file lock, so it never observes a
// concurrent rewrite half way.
func (s *Store) Snapshot() (Set, error) {
	var set Set

	err := s.withLock(func() error {
		var err error
		set, err = s.Read()
		return err
	})

	return set, err
}

func (s *Store) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", s.path, err)
	}

	return system.WithFileLock(s.path, fn)
}

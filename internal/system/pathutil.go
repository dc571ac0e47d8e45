package system

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to a temp file next to path and renames it
// into place, so readers never observe a partially written file. The final
// mode is applied after the rename.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", tmpPath, err)
	}

	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}

	return nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ValidateKeyfilePath checks that path is a regular file (not a symlink,
// directory or device) and tightens its permissions to owner-only when group
// or others can read it. Returns the cleaned path.
func ValidateKeyfilePath(path string) (string, error) {
	path = filepath.Clean(path)

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("keyfile not found: %s", path)
		}
		return "", fmt.Errorf("keyfile not accessible: %w", err)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("keyfile must be a regular file, not a symlink, directory or device: %s", path)
	}

	if info.Mode().Perm()&0o077 != 0 {
		if err := os.Chmod(path, 0o600); err != nil {
			return "", fmt.Errorf("failed to restrict keyfile permissions: %w", err)
		}
	}

	return path, nil
}

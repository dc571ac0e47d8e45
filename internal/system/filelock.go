package system

import (
	"fmt"

	"github.com/alexflint/go-filemutex"
)

// WithFileLock runs fn while holding an exclusive advisory lock on
// path + ".lock". flock(2) locks belong to the open file description, so this
// serializes goroutines of the same process as well as other processes.
func WithFileLock(path string, fn func() error) error {
	mu, err := filemutex.New(path + ".lock")
	if err != nil {
		return fmt.Errorf("failed to open lock for %s: %w", path, err)
	}
	defer mu.Close() //nolint:errcheck

	if err := mu.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	defer mu.Unlock() //nolint:errcheck

	return fn()
}

package system

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// CleanupStack collects undo steps for a multi-step operation. Steps run
// last-added first; a successful operation calls Clear instead.
type CleanupStack struct {
	mu    sync.Mutex
	steps []func() error
}

// NewCleanupStack creates an empty stack.
func NewCleanupStack() *CleanupStack {
	return &CleanupStack{}
}

// Add pushes an undo step.
func (s *CleanupStack) Add(step func() error) {
	s.mu.Lock()
	s.steps = append(s.steps, step)
	s.mu.Unlock()
}

// Len returns the number of pending steps.
func (s *CleanupStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.steps)
}

// Execute runs every pending step, newest first, and empties the stack. A
// failing step does not stop the ones after it; all failures are returned
// together.
func (s *CleanupStack) Execute() error {
	s.mu.Lock()
	steps := s.steps
	s.steps = nil
	s.mu.Unlock()

	var result *multierror.Error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := steps[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// Clear drops pending steps without running them.
func (s *CleanupStack) Clear() {
	s.mu.Lock()
	s.steps = nil
	s.mu.Unlock()
}

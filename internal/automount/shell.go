package automount

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Shell timing defaults.
const (
	DefaultMinBusy  = 400 * time.Millisecond
	DefaultCooldown = 1500 * time.Millisecond
)

// Shell runs toggles on worker goroutines and delivers each Result exactly
// once on Results. A partition's busy indicator stays up for at least the
// minimum busy duration; its in-flight mark is released after the cooldown.
type Shell struct {
	manager  *Manager
	prompter Prompter
	clock    clock.Clock
	minBusy  time.Duration
	cooldown time.Duration

	results chan Result

	mu   sync.Mutex
	busy map[string]struct{}
	wg   sync.WaitGroup
}

// NewShell creates a shell over manager.
func NewShell(manager *Manager, prompter Prompter, clk clock.Clock, minBusy, cooldown time.Duration) *Shell {
	if clk == nil {
		clk = clock.New()
	}

	return &Shell{
		manager:  manager,
		prompter: prompter,
		clock:    clk,
		minBusy:  minBusy,
		cooldown: cooldown,
		results:  make(chan Result, 16),
		busy:     make(map[string]struct{}),
	}
}

// Results delivers finished toggles.
func (s *Shell) Results() <-chan Result {
	return s.results
}

// Submit starts a toggle for req. It returns false, doing nothing, while a
// toggle for the same partition is in flight or cooling down.
func (s *Shell) Submit(ctx context.Context, req Request) bool {
	if !s.manager.Begin(req.Partition) {
		return false
	}

	s.setBusy(req.Partition, true)
	started := s.clock.Now()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		res := s.manager.apply(ctx, req, s.prompter)

		if wait := s.minBusy - s.clock.Since(started); wait > 0 {
			select {
			case <-s.clock.After(wait):
			case <-ctx.Done():
			}
		}

		s.setBusy(req.Partition, false)
		s.results <- res

		s.clock.AfterFunc(s.cooldown, func() {
			s.manager.Release(req.Partition)
		})
	}()

	return true
}

// Busy returns the partitions whose busy indicator is showing, sorted.
func (s *Shell) Busy() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.busy))
	for p := range s.busy {
		out = append(out, p)
	}
	slices.Sort(out)

	return out
}

// Wait blocks until every submitted toggle has delivered its result.
func (s *Shell) Wait() {
	s.wg.Wait()
}

func (s *Shell) setBusy(partition string, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if busy {
		s.busy[partition] = struct{}{}
	} else {
		delete(s.busy, partition)
	}
}

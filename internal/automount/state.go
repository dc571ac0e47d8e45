package automount

import (
	"errors"
	"sync"

	"github.com/nace/automount/internal/container"
)

// Sentinel errors reported in Result.Err.
var (
	ErrBusy            = errors.New("partition is already being changed")
	ErrPromptCancelled = errors.New("passphrase prompt cancelled")
	ErrWrongPassphrase = container.ErrWrongPassphrase
)

// State is the lifecycle position of one partition.
type State int

// Partition states. Idle and Active are the only states visible between
// actions.
const (
	StateIdle State = iota
	StateEnabling
	StateAwaitingPassphrase
	StateActive
	StateDisabling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnabling:
		return "enabling"
	case StateAwaitingPassphrase:
		return "awaiting-passphrase"
	case StateActive:
		return "active"
	case StateDisabling:
		return "disabling"
	default:
		return "unknown"
	}
}

// Outcome classifies how a toggle ended.
type Outcome int

// Toggle outcomes.
const (
	OutcomeEnabled Outcome = iota
	OutcomeDisabled
	OutcomeKeyKept
	OutcomeCancelled
	OutcomeFailed
	OutcomeBusy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEnabled:
		return "enabled"
	case OutcomeDisabled:
		return "disabled"
	case OutcomeKeyKept:
		return "key-kept"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	case OutcomeBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// InFlightSet tracks partitions with a toggle in progress.
type InFlightSet struct {
	mu      sync.Mutex
	members map[string]struct{}
}

// NewInFlightSet creates an empty set.
func NewInFlightSet() *InFlightSet {
	return &InFlightSet{members: make(map[string]struct{})}
}

// Add inserts partition and reports whether it was absent.
func (s *InFlightSet) Add(partition string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[partition]; ok {
		return false
	}
	s.members[partition] = struct{}{}

	return true
}

// Remove deletes partition.
func (s *InFlightSet) Remove(partition string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.members, partition)
}

// Contains reports whether partition is in flight.
func (s *InFlightSet) Contains(partition string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.members[partition]
	return ok
}

// Package automount applies enable and disable requests for partitions:
// mount helper configuration, enablement persistence and LUKS auto-unlock.
package automount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/nace/automount/internal/container"
	"github.com/nace/automount/internal/device"
	"github.com/nace/automount/internal/enablement"
	"github.com/nace/automount/internal/mount"
	"github.com/nace/automount/internal/system"
)

// Inventory is the device view the manager needs.
type Inventory interface {
	Scan(ctx context.Context) device.Snapshot
	ResolveOuter(ctx context.Context, innerUUID string) (device.Outer, bool)
	OuterMapping(ctx context.Context, outerUUID string) (string, bool)
	WaitMounted(ctx context.Context, uuid string) (string, error)
}

// Synthesizer derives mount options.
type Synthesizer interface {
	Options(ctx context.Context, t mount.Target) (string, string)
}

// EnvFiles maintains mount environment files.
type EnvFiles interface {
	Write(instance string, spec mount.EnvSpec) (string, error)
	Remove(instance string) error
}

// Units controls the mount helper service.
type Units interface {
	Activate(ctx context.Context, instance string) error
	Deactivate(ctx context.Context, instance string) error
	ActiveState(ctx context.Context, instance string) string
}

// Keys manages LUKS auto-unlock.
type Keys interface {
	EnsureAutoUnlock(ctx context.Context, outerUUID string, passphrase *system.SecureBytes) (bool, error)
	TeardownAutoUnlock(ctx context.Context, outerUUID string) error
	HasAutoUnlock(outerUUID string) bool
	Unlock(ctx context.Context, outerUUID string, passphrase *system.SecureBytes) error
	Lock(ctx context.Context, mapperName string) error
	// WithOuterLock serializes auto-unlock decisions for one container.
	WithOuterLock(outerUUID string, fn func() error) error
}

// Store persists the enablement set.
type Store interface {
	Set(partition string, enabled bool) (enablement.Set, error)
	Snapshot() (enablement.Set, error)
}

// Prompter asks the administrator for a container passphrase. Returning
// ErrPromptCancelled or an empty passphrase cancels the toggle.
type Prompter interface {
	Passphrase(ctx context.Context, outerUUID string) (*system.SecureBytes, error)
}

// Owner is the account partitions are mounted for.
type Owner struct {
	Name string
	UID  string
	GID  string
}

// Dependencies groups the collaborators of a Manager.
type Dependencies struct {
	Inventory   Inventory
	Synthesizer Synthesizer
	EnvFiles    EnvFiles
	Units       Units
	Keys        Keys
	Store       Store
	Logger      *zap.Logger
	Clock       clock.Clock
}

// Request asks for a partition to be enabled or disabled.
type Request struct {
	// Partition is the /dev/disk/by-uuid path.
	Partition string
	Enable    bool
	// FSType skips the inventory lookup when set.
	FSType string
}

// Result reports how a toggle ended.
type Result struct {
	Partition   string
	Requested   bool
	Outcome     Outcome
	State       State
	Enabled     bool
	Instance    string
	ActiveState string
	Mountpoint  string
	Message     string
	Err         error
}

// Manager runs the enable and disable paths. It owns the passphrase cache
// and the in-flight set; create one per process and Close it on exit.
type Manager struct {
	inventory Inventory
	synth     Synthesizer
	env       EnvFiles
	units     Units
	keys      Keys
	store     Store
	logger    *zap.Logger

	owner     Owner
	mediaRoot string

	cache    *PassphraseCache
	inFlight *InFlightSet

	mu     sync.Mutex
	states map[string]State
}

// NewManager creates a manager mounting partitions for owner under
// <mediaRoot>/<owner>/<uuid>.
func NewManager(deps Dependencies, owner Owner, mediaRoot string, passphraseTTL time.Duration) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		inventory: deps.Inventory,
		synth:     deps.Synthesizer,
		env:       deps.EnvFiles,
		units:     deps.Units,
		keys:      deps.Keys,
		store:     deps.Store,
		logger:    logger,
		owner:     owner,
		mediaRoot: mediaRoot,
		cache:     NewPassphraseCache(deps.Clock, passphraseTTL),
		inFlight:  NewInFlightSet(),
		states:    make(map[string]State),
	}
}

// Close drops every cached passphrase.
func (m *Manager) Close() {
	m.cache.Clear()
}

// Cache exposes the passphrase cache.
func (m *Manager) Cache() *PassphraseCache {
	return m.cache
}

// Begin marks partition as in flight. It returns false when a toggle for the
// same partition is already running.
func (m *Manager) Begin(partition string) bool {
	return m.inFlight.Add(partition)
}

// Release clears the in-flight mark for partition.
func (m *Manager) Release(partition string) {
	m.inFlight.Remove(partition)
}

// InFlight reports whether partition has a toggle in progress.
func (m *Manager) InFlight(partition string) bool {
	return m.inFlight.Contains(partition)
}

// State returns the current state of partition.
func (m *Manager) State(partition string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.states[partition]
}

func (m *Manager) setState(partition string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[partition] = s
}

// Toggle applies req synchronously. A partition already in flight yields
// OutcomeBusy without side effects.
func (m *Manager) Toggle(ctx context.Context, req Request, prompter Prompter) Result {
	if !m.Begin(req.Partition) {
		return m.busy(req)
	}
	defer m.Release(req.Partition)

	return m.apply(ctx, req, prompter)
}

func (m *Manager) busy(req Request) Result {
	return Result{
		Partition: req.Partition,
		Requested: req.Enable,
		Outcome:   OutcomeBusy,
		State:     m.State(req.Partition),
		Enabled:   !req.Enable,
		Message:   fmt.Sprintf("%s is busy, try again in a moment.", req.Partition),
		Err:       ErrBusy,
	}
}

// apply runs the enable or disable path. The caller holds the in-flight mark.
func (m *Manager) apply(ctx context.Context, req Request, prompter Prompter) Result {
	uuid, ok := strings.CutPrefix(req.Partition, device.ByUUIDPrefix)
	if !ok || uuid == "" {
		return Result{
			Partition: req.Partition,
			Requested: req.Enable,
			Outcome:   OutcomeFailed,
			State:     m.State(req.Partition),
			Message:   fmt.Sprintf("Error: %s is not a /dev/disk/by-uuid path.", req.Partition),
			Err:       fmt.Errorf("invalid partition path %q", req.Partition),
		}
	}

	res := Result{
		Partition: req.Partition,
		Requested: req.Enable,
		Instance:  mount.Instance(m.mediaRoot, m.owner.Name, uuid),
	}

	if req.Enable {
		m.enable(ctx, req, uuid, prompter, &res)
	} else {
		m.disable(ctx, req, uuid, &res)
	}

	res.State = m.State(req.Partition)

	logger := m.logger.With(zap.String("partition", req.Partition), zap.Stringer("outcome", res.Outcome))
	if res.Err != nil {
		logger.Warn("toggle finished", zap.Error(res.Err))
	} else {
		logger.Info("toggle finished")
	}

	return res
}

func (m *Manager) fail(res *Result, state State, err error) {
	m.setState(res.Partition, state)

	res.Outcome = OutcomeFailed
	res.Enabled = state == StateActive
	res.Err = err
	res.Message = describe(err)
}

func (m *Manager) enable(ctx context.Context, req Request, uuid string, prompter Prompter, res *Result) {
	prior := m.State(req.Partition)
	if prior != StateActive {
		prior = StateIdle
	}

	m.setState(req.Partition, StateEnabling)

	fstype := req.FSType
	if fstype == "" {
		p, ok := m.inventory.Scan(ctx).Find(uuid)
		if !ok {
			m.fail(res, prior, fmt.Errorf("partition %s not found", req.Partition))
			return
		}
		fstype = p.FSType
	}

	driver, opts := m.synth.Options(ctx, mount.Target{
		DevicePath: req.Partition,
		FSType:     fstype,
		User:       m.owner.Name,
		UID:        m.owner.UID,
		GID:        m.owner.GID,
	})

	envPath, err := m.env.Write(res.Instance, mount.EnvSpec{
		User:   m.owner.Name,
		UID:    m.owner.UID,
		GID:    m.owner.GID,
		UUID:   uuid,
		FSType: driver,
		Opts:   opts,
	})
	if err != nil {
		m.fail(res, prior, err)
		return
	}

	m.logger.Debug("environment file written", zap.String("path", envPath), zap.String("opts", opts))

	revert := func() {
		if err := m.env.Remove(res.Instance); err != nil {
			m.logger.Warn("failed to remove environment file", zap.Error(err))
		}
	}

	// The auto-unlock check and the enablement write happen under the
	// container lock, so a concurrent disable of a sibling either sees this
	// partition enabled or has finished its teardown before the check.
	outer, behind := m.inventory.ResolveOuter(ctx, uuid)

	persist := func() error {
		if behind && !m.keys.HasAutoUnlock(outer.UUID) {
			if err := m.ensureAutoUnlock(ctx, req.Partition, outer, prompter); err != nil {
				return err
			}
		}

		_, err := m.store.Set(req.Partition, true)
		return err
	}

	if behind {
		err = m.keys.WithOuterLock(outer.UUID, persist)
	} else {
		err = persist()
	}

	if err != nil {
		revert()

		if errors.Is(err, ErrPromptCancelled) {
			m.setState(req.Partition, prior)
			res.Outcome = OutcomeCancelled
			res.Enabled = prior == StateActive
			res.Err = err
			res.Message = fmt.Sprintf("Cancelled enabling %s.", req.Partition)
			return
		}

		m.fail(res, prior, err)
		return
	}

	if err := m.units.Activate(ctx, res.Instance); err != nil {
		if _, serr := m.store.Set(req.Partition, false); serr != nil {
			m.logger.Warn("failed to roll back enablement", zap.Error(serr))
		}
		if derr := m.units.Deactivate(ctx, res.Instance); derr != nil {
			m.logger.Debug("rollback deactivate", zap.Error(derr))
		}
		revert()
		m.fail(res, prior, err)
		return
	}

	if mp, err := m.inventory.WaitMounted(ctx, uuid); err == nil {
		res.Mountpoint = mp
	} else {
		m.logger.Debug("partition not mounted yet", zap.String("uuid", uuid), zap.Error(err))
	}

	res.ActiveState = m.units.ActiveState(ctx, res.Instance)

	m.setState(req.Partition, StateActive)
	res.Outcome = OutcomeEnabled
	res.Enabled = true
	res.Message = fmt.Sprintf("Enabled automount for %s.", req.Partition)
}

// ensureAutoUnlock enrolls a keyfile for outer, using a cached passphrase
// first and asking prompter otherwise.
func (m *Manager) ensureAutoUnlock(ctx context.Context, partition string, outer device.Outer, prompter Prompter) error {
	if cached := m.cache.Get(outer.UUID); cached != nil {
		ok, err := m.keys.EnsureAutoUnlock(ctx, outer.UUID, cached)
		cached.Zeroize()

		if ok {
			m.cache.Touch(outer.UUID)
			return nil
		}

		if !container.IsWrongPassphrase(err) {
			return err
		}

		m.cache.Forget(outer.UUID)
	}

	if prompter == nil {
		return ErrPromptCancelled
	}

	m.setState(partition, StateAwaitingPassphrase)

	passphrase, err := prompter.Passphrase(ctx, outer.UUID)
	if err != nil {
		if errors.Is(err, ErrPromptCancelled) || errors.Is(err, context.Canceled) {
			return ErrPromptCancelled
		}
		return err
	}
	defer passphrase.Zeroize()

	if passphrase.Len() == 0 {
		return ErrPromptCancelled
	}

	m.setState(partition, StateEnabling)

	ok, err := m.keys.EnsureAutoUnlock(ctx, outer.UUID, passphrase)
	if !ok {
		if err == nil {
			err = errors.New("auto-unlock could not be configured")
		}
		return err
	}

	m.cache.Put(outer.UUID, passphrase)

	return nil
}

func (m *Manager) disable(ctx context.Context, req Request, uuid string, res *Result) {
	prior := m.State(req.Partition)

	m.setState(req.Partition, StateDisabling)

	if _, err := m.store.Set(req.Partition, false); err != nil {
		if prior != StateIdle {
			prior = StateActive
		}
		m.fail(res, prior, err)
		return
	}

	if err := m.units.Deactivate(ctx, res.Instance); err != nil {
		m.logger.Warn("failed to deactivate mount helper", zap.String("instance", res.Instance), zap.Error(err))
	}

	if err := m.env.Remove(res.Instance); err != nil {
		m.logger.Warn("failed to remove environment file", zap.String("instance", res.Instance), zap.Error(err))
	}

	m.setState(req.Partition, StateIdle)
	res.Outcome = OutcomeDisabled
	res.Enabled = false
	res.Message = fmt.Sprintf("Disabled automount for %s.", req.Partition)

	outer, behind := m.inventory.ResolveOuter(ctx, uuid)
	if !behind {
		return
	}

	err := m.keys.WithOuterLock(outer.UUID, func() error {
		m.releaseOuter(ctx, req.Partition, outer.UUID, res)
		return nil
	})
	if err != nil {
		res.Err = err
		res.Message = fmt.Sprintf("Disabled automount for %s, but could not check auto-unlock for %s: %s", req.Partition, outer.UUID, err)
	}
}

// releaseOuter removes auto-unlock for outerUUID unless another enabled
// partition still lives in it. The caller holds the container lock.
func (m *Manager) releaseOuter(ctx context.Context, partition, outerUUID string, res *Result) {
	if !m.keys.HasAutoUnlock(outerUUID) {
		return
	}

	m.cache.Touch(outerUUID)

	shared, err := m.sharedOuter(ctx, partition, outerUUID)
	if err != nil {
		res.Err = err
		res.Message = fmt.Sprintf("Disabled automount for %s, but could not check other partitions: %s", partition, err)
		return
	}

	if shared != "" {
		res.Outcome = OutcomeKeyKept
		res.Message = fmt.Sprintf("Disabled automount for %s. Auto-unlock kept for %s, still used by %s.", partition, outerUUID, shared)
		return
	}

	if err := m.keys.TeardownAutoUnlock(ctx, outerUUID); err != nil {
		res.Err = err
		res.Message = fmt.Sprintf("Disabled automount for %s, but removing auto-unlock failed: %s", partition, err)
		return
	}

	res.Message = fmt.Sprintf("Disabled automount for %s and removed auto-unlock for %s.", partition, outerUUID)
}

// sharedOuter returns another enabled partition living in the container
// outerUUID, or "" if there is none.
func (m *Manager) sharedOuter(ctx context.Context, partition, outerUUID string) (string, error) {
	set, err := m.store.Snapshot()
	if err != nil {
		return "", err
	}

	for _, other := range set.Partitions {
		if other == partition {
			continue
		}

		otherOuter, ok := m.inventory.ResolveOuter(ctx, strings.TrimPrefix(other, device.ByUUIDPrefix))
		if ok && otherOuter.UUID == outerUUID {
			return other, nil
		}
	}

	return "", nil
}

// Unlock opens the locked container outerUUID and caches the passphrase for
// a following enable.
func (m *Manager) Unlock(ctx context.Context, outerUUID string, passphrase *system.SecureBytes) error {
	if err := m.keys.Unlock(ctx, outerUUID, passphrase); err != nil {
		return err
	}

	m.cache.Put(outerUUID, passphrase)

	return nil
}

// Lock closes the active mapping of the container outerUUID.
func (m *Manager) Lock(ctx context.Context, outerUUID string) error {
	mapper, ok := m.inventory.OuterMapping(ctx, outerUUID)
	if !ok {
		return fmt.Errorf("container %s is not unlocked", outerUUID)
	}

	return m.keys.Lock(ctx, mapper)
}

// describe turns an error into a status line.
func describe(err error) string {
	switch {
	case errors.Is(err, os.ErrPermission):
		return "Error: Permission denied. Run as administrator."
	case container.IsWrongPassphrase(err):
		return "Error: Wrong passphrase."
	case errors.Is(err, ErrBusy):
		return "Error: Partition is busy."
	default:
		return fmt.Sprintf("Command failed: %s", err)
	}
}

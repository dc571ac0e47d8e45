package automount

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nace/automount/internal/container"
	"github.com/nace/automount/internal/device"
	"github.com/nace/automount/internal/enablement"
	"github.com/nace/automount/internal/mount"
	"github.com/nace/automount/internal/system"
)

const correctPassphrase = "correct horse"

type fakeInventory struct {
	mu         sync.Mutex
	partitions map[string]device.Partition
	outers     map[string]device.Outer
}

func (f *fakeInventory) Scan(context.Context) device.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	var snap device.Snapshot
	for _, p := range f.partitions {
		snap.Unmounted = append(snap.Unmounted, p)
	}
	return snap
}

func (f *fakeInventory) ResolveOuter(_ context.Context, innerUUID string) (device.Outer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.outers[innerUUID]
	return o, ok
}

func (f *fakeInventory) OuterMapping(_ context.Context, outerUUID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, o := range f.outers {
		if o.UUID == outerUUID {
			return o.MapperName, true
		}
	}
	return "", false
}

func (f *fakeInventory) WaitMounted(_ context.Context, uuid string) (string, error) {
	return "/run/media/me/" + uuid, nil
}

type fakeUnits struct {
	mu          sync.Mutex
	active      map[string]bool
	activateErr error
}

func (f *fakeUnits) Activate(_ context.Context, instance string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.activateErr != nil {
		return f.activateErr
	}
	f.active[instance] = true
	return nil
}

func (f *fakeUnits) Deactivate(_ context.Context, instance string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.active, instance)
	return nil
}

func (f *fakeUnits) ActiveState(_ context.Context, instance string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.active[instance] {
		return "active"
	}
	return "inactive"
}

// fakeKeys models keyfile and crypttab state per outer UUID.
type fakeKeys struct {
	mu        sync.Mutex
	keyfiles  map[string]bool
	crypttab  map[string]bool
	attempts  int
	teardowns []string
	unlocked  map[string]bool
	locked    []string

	outerMu    sync.Mutex
	outerLocks map[string]*sync.Mutex
}

func (f *fakeKeys) WithOuterLock(outerUUID string, fn func() error) error {
	f.outerMu.Lock()
	if f.outerLocks == nil {
		f.outerLocks = map[string]*sync.Mutex{}
	}
	mu, ok := f.outerLocks[outerUUID]
	if !ok {
		mu = &sync.Mutex{}
		f.outerLocks[outerUUID] = mu
	}
	f.outerMu.Unlock()

	mu.Lock()
	defer mu.Unlock()

	return fn()
}

func (f *fakeKeys) EnsureAutoUnlock(_ context.Context, outerUUID string, passphrase *system.SecureBytes) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if string(passphrase.Bytes()) != correctPassphrase {
		return false, container.ErrWrongPassphrase
	}
	f.keyfiles[outerUUID] = true
	f.crypttab[outerUUID] = true
	return true, nil
}

func (f *fakeKeys) TeardownAutoUnlock(_ context.Context, outerUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.teardowns = append(f.teardowns, outerUUID)
	delete(f.crypttab, outerUUID)
	delete(f.keyfiles, outerUUID)
	return nil
}

func (f *fakeKeys) HasAutoUnlock(outerUUID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.crypttab[outerUUID]
}

func (f *fakeKeys) Unlock(_ context.Context, outerUUID string, passphrase *system.SecureBytes) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if string(passphrase.Bytes()) != correctPassphrase {
		return container.ErrWrongPassphrase
	}
	f.unlocked[outerUUID] = true
	return nil
}

func (f *fakeKeys) Lock(_ context.Context, mapperName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.locked = append(f.locked, mapperName)
	return nil
}

type noProbe struct{}

func (noProbe) MountReadOnly(context.Context, string, string, string) error {
	return errors.New("probe disabled")
}

func (noProbe) UnmountLazy(string) error { return nil }

func (noProbe) IsSubvolume(context.Context, string) bool { return false }

// scriptedPrompter answers with a fixed passphrase or error and records the
// manager state observed while asking.
type scriptedPrompter struct {
	manager    *Manager
	partition  string
	passphrase string
	err        error

	calls []string
	seen  []State
}

func (p *scriptedPrompter) Passphrase(_ context.Context, outerUUID string) (*system.SecureBytes, error) {
	p.calls = append(p.calls, outerUUID)
	if p.manager != nil {
		p.seen = append(p.seen, p.manager.State(p.partition))
	}
	if p.err != nil {
		return nil, p.err
	}
	return system.NewSecureString(p.passphrase), nil
}

// hookedStore runs onSnapshot once, right after the first Snapshot read.
type hookedStore struct {
	*enablement.Store
	once       sync.Once
	onSnapshot func()
}

func (s *hookedStore) Snapshot() (enablement.Set, error) {
	set, err := s.Store.Snapshot()
	if s.onSnapshot != nil {
		s.once.Do(s.onSnapshot)
	}
	return set, err
}

type fixture struct {
	manager   *Manager
	inventory *fakeInventory
	units     *fakeUnits
	keys      *fakeKeys
	store     *enablement.Store
	hooked    *hookedStore
	env       *mount.EnvWriter
	envRoot   string
	clock     *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	root := t.TempDir()

	fx := &fixture{
		inventory: &fakeInventory{
			partitions: map[string]device.Partition{},
			outers:     map[string]device.Outer{},
		},
		units: &fakeUnits{active: map[string]bool{}},
		keys: &fakeKeys{
			keyfiles: map[string]bool{},
			crypttab: map[string]bool{},
			unlocked: map[string]bool{},
		},
		store:   enablement.NewStore(filepath.Join(root, "enabled.conf")),
		envRoot: filepath.Join(root, "env"),
		clock:   clock.NewMock(),
	}
	fx.env = mount.NewEnvWriter(fx.envRoot)
	fx.hooked = &hookedStore{Store: fx.store}

	logger := zaptest.NewLogger(t)

	fx.manager = NewManager(Dependencies{
		Inventory:   fx.inventory,
		Synthesizer: mount.NewSynthesizer(noProbe{}, filepath.Join(root, "media"), "", logger),
		EnvFiles:    fx.env,
		Units:       fx.units,
		Keys:        fx.keys,
		Store:       fx.hooked,
		Logger:      logger,
		Clock:       fx.clock,
	}, Owner{Name: "me", UID: "1000", GID: "1000"}, "/run/media", DefaultPassphraseTTL)

	t.Cleanup(fx.manager.Close)

	return fx
}

func (fx *fixture) addPartition(uuid, fstype string) string {
	fx.inventory.partitions[uuid] = device.Partition{
		DevicePath: device.ByUUIDPath(uuid),
		FSType:     fstype,
		UUID:       uuid,
	}
	return device.ByUUIDPath(uuid)
}

func (fx *fixture) addLuksPartition(innerUUID, fstype, outerUUID string) string {
	fx.inventory.outers[innerUUID] = device.Outer{
		DevicePath: device.ByUUIDPath(outerUUID),
		UUID:       outerUUID,
		MapperName: container.MapperName(outerUUID),
	}
	return fx.addPartition(innerUUID, fstype)
}

func (fx *fixture) enabled(t *testing.T) []string {
	set, err := fx.store.Read()
	require.NoError(t, err)
	return set.Partitions
}

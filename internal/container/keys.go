package container

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/nace/automount/internal/device"
	"github.com/nace/automount/internal/system"
)

// keyfileSize is the amount of random key material per keyfile.
const keyfileSize = 256

// Reloader makes the service manager re-read the decrypt-at-boot table.
type Reloader interface {
	DaemonReload(ctx context.Context) error
}

// KeyManager enrolls and revokes the keyfiles that unlock containers at boot.
type KeyManager struct {
	luks     CryptSetup
	crypttab *Crypttab
	keyDir   string
	reloader Reloader
	logger   *zap.Logger
	random   io.Reader
}

// NewKeyManager creates a new key manager.
func NewKeyManager(luks CryptSetup, crypttab *Crypttab, keyDir string, reloader Reloader, logger *zap.Logger) *KeyManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KeyManager{
		luks:     luks,
		crypttab: crypttab,
		keyDir:   keyDir,
		reloader: reloader,
		logger:   logger,
		random:   rand.Reader,
	}
}

// KeyfilePath returns the keyfile location for a container.
func (m *KeyManager) KeyfilePath(outerUUID string) string {
	return filepath.Join(m.keyDir, outerUUID+".key")
}

// HasAutoUnlock reports whether the table unlocks outerUUID with our
// keyfile. Entries written by other tools do not count.
func (m *KeyManager) HasAutoUnlock(outerUUID string) bool {
	_, ok, err := m.crypttab.Lookup(outerUUID, m.KeyfilePath(outerUUID))
	if err != nil {
		m.logger.Warn("failed to read crypttab", zap.String("path", m.crypttab.Path()), zap.Error(err))
		return false
	}
	return ok
}

// EnsureAutoUnlock makes the container outerUUID unlock at boot with a
// keyfile. The passphrase authorizes enrolling the keyfile; it is only used
// when the keyfile does not already open the container. It returns true once
// both the keyslot and the table entry are in place. On failure nothing
// created by this call is left behind.
func (m *KeyManager) EnsureAutoUnlock(ctx context.Context, outerUUID string, passphrase *system.SecureBytes) (bool, error) {
	dev := device.ByUUIDPath(outerUUID)
	keyfile := m.KeyfilePath(outerUUID)

	cleanup := system.NewCleanupStack()
	rollback := func(err error) (bool, error) {
		if cerr := cleanup.Execute(); cerr != nil {
			m.logger.Warn("rollback incomplete", zap.String("uuid", outerUUID), zap.Error(cerr))
		}
		return false, err
	}

	created, err := m.ensureKeyfile(keyfile)
	if err != nil {
		return false, err
	}
	if created {
		cleanup.Add(func() error { return system.RemoveIfExists(keyfile) })
	}

	if err := m.luks.TestKey(ctx, dev, &KeyfileAuth{KeyfilePath: keyfile}); err != nil {
		m.logger.Debug("enrolling keyfile", zap.String("uuid", outerUUID))

		if err := m.luks.AddKey(ctx, dev, &PassphraseAuth{Passphrase: passphrase}, keyfile); err != nil {
			return rollback(err)
		}

		cleanup.Add(func() error { return m.luks.RemoveKey(context.WithoutCancel(ctx), dev, keyfile) })
	}

	if err := m.crypttab.Upsert(NewCrypttabEntry(outerUUID, keyfile)); err != nil {
		return rollback(err)
	}

	cleanup.Clear()

	if err := m.reloader.DaemonReload(ctx); err != nil {
		m.logger.Warn("service manager reload failed", zap.Error(err))
	}

	m.logger.Info("auto-unlock enabled", zap.String("uuid", outerUUID), zap.String("keyfile", keyfile))

	return true, nil
}

// ensureKeyfile creates keyfile with fresh random content if it does not
// exist. It reports whether the file was created.
func (m *KeyManager) ensureKeyfile(keyfile string) (bool, error) {
	if _, err := os.Lstat(keyfile); err == nil {
		if _, err := system.ValidateKeyfilePath(keyfile); err != nil {
			return false, err
		}
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("keyfile not accessible: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyfile), 0o700); err != nil {
		return false, fmt.Errorf("failed to create key directory: %w", err)
	}

	key := make([]byte, keyfileSize)
	defer system.NewSecureBytes(key).Zeroize()

	if _, err := io.ReadFull(m.random, key); err != nil {
		return false, fmt.Errorf("failed to generate key material: %w", err)
	}

	f, err := os.OpenFile(keyfile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return false, fmt.Errorf("failed to create keyfile: %w", err)
	}

	if _, err := f.Write(key); err != nil {
		f.Close()          //nolint:errcheck
		os.Remove(keyfile) //nolint:errcheck
		return false, fmt.Errorf("failed to write keyfile: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(keyfile) //nolint:errcheck
		return false, fmt.Errorf("failed to write keyfile: %w", err)
	}

	return true, nil
}

// WithOuterLock runs fn holding an exclusive lock for the container
// outerUUID, shared by every process using the same key directory.
func (m *KeyManager) WithOuterLock(outerUUID string, fn func() error) error {
	if err := os.MkdirAll(m.keyDir, 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	return system.WithFileLock(filepath.Join(m.keyDir, outerUUID), fn)
}

// TeardownAutoUnlock removes our table entry, then the keyslot, then the
// keyfile, and reloads the service manager. Lines for the container written
// by other tools are left alone. A keyslot that cannot be removed is
// reported as a warning and left in place.
func (m *KeyManager) TeardownAutoUnlock(ctx context.Context, outerUUID string) error {
	keyfile := m.KeyfilePath(outerUUID)

	removed, err := m.crypttab.Remove(outerUUID, keyfile)
	if err != nil {
		return err
	}

	var errs *multierror.Error

	if _, err := os.Lstat(keyfile); err == nil {
		if err := m.luks.RemoveKey(ctx, device.ByUUIDPath(outerUUID), keyfile); err != nil {
			m.logger.Warn("stray keyslot left on container",
				zap.String("uuid", outerUUID), zap.String("keyfile", keyfile), zap.Error(err))
		}

		if err := system.RemoveIfExists(keyfile); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to remove keyfile: %w", err))
		}
	}

	if err := m.reloader.DaemonReload(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	if removed {
		m.logger.Info("auto-unlock removed", zap.String("uuid", outerUUID))
	} else {
		m.logger.Debug("no auto-unlock entry to remove", zap.String("uuid", outerUUID))
	}

	return nil
}

// Unlock opens the container outerUUID as luks-<uuid>.
func (m *KeyManager) Unlock(ctx context.Context, outerUUID string, passphrase *system.SecureBytes) error {
	err := m.luks.Open(ctx, device.ByUUIDPath(outerUUID), MapperName(outerUUID), &PassphraseAuth{Passphrase: passphrase})
	if err != nil {
		return err
	}

	m.logger.Info("container unlocked", zap.String("uuid", outerUUID))

	return nil
}

// Lock closes the mapping mapperName.
func (m *KeyManager) Lock(ctx context.Context, mapperName string) error {
	if err := m.luks.Close(ctx, mapperName); err != nil {
		return err
	}

	m.logger.Info("container locked", zap.String("mapper", mapperName))

	return nil
}

// IsWrongPassphrase reports whether err means the passphrase was rejected.
func IsWrongPassphrase(err error) bool {
	return errors.Is(err, ErrWrongPassphrase)
}

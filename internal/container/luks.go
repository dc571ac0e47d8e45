package container

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nace/automount/internal/system"
)

// ErrWrongPassphrase is returned when cryptsetup rejects the supplied key.
var ErrWrongPassphrase = errors.New("no key available with this passphrase")

// cryptsetup exits with 2 when no keyslot matches.
const exitNoKey = 2

// AuthMethod represents a method to authenticate to a LUKS container
type AuthMethod interface {
	// Apply returns extra arguments and the stdin to feed cryptsetup.
	Apply(args []string) ([]string, []byte, error)
}

// PassphraseAuth authenticates using a passphrase read from stdin
type PassphraseAuth struct {
	Passphrase *system.SecureBytes
}

// Apply passes the passphrase on stdin. "--key-file -" makes cryptsetup
// read it verbatim instead of treating a newline as terminator.
func (a *PassphraseAuth) Apply(args []string) ([]string, []byte, error) {
	if a.Passphrase == nil || a.Passphrase.Len() == 0 {
		return nil, nil, fmt.Errorf("passphrase is empty")
	}
	return append(args, "--key-file", "-"), a.Passphrase.Bytes(), nil
}

// KeyfileAuth authenticates using a keyfile
type KeyfileAuth struct {
	KeyfilePath string
}

// Apply applies keyfile authentication to a command
func (a *KeyfileAuth) Apply(args []string) ([]string, []byte, error) {
	return append(args, "--key-file", a.KeyfilePath), nil, nil
}

// CryptSetup wraps the cryptsetup operations this module needs.
type CryptSetup interface {
	IsLUKS(ctx context.Context, device string) bool
	Open(ctx context.Context, device, mapperName string, auth AuthMethod) error
	Close(ctx context.Context, mapperName string) error
	TestKey(ctx context.Context, device string, auth AuthMethod) error
	AddKey(ctx context.Context, device string, auth AuthMethod, newKeyfile string) error
	RemoveKey(ctx context.Context, device, keyfile string) error
}

// LUKSManager handles LUKS operations
type LUKSManager struct {
	runner system.Runner
}

// NewLUKSManager creates a new LUKS manager
func NewLUKSManager(runner system.Runner) *LUKSManager {
	return &LUKSManager{runner: runner}
}

func (m *LUKSManager) run(ctx context.Context, auth AuthMethod, args ...string) error {
	var stdin []byte

	if auth != nil {
		var err error
		args, stdin, err = auth.Apply(args)
		if err != nil {
			return err
		}
	}

	if stdin != nil {
		_, err := m.runner.RunInput(ctx, stdin, "cryptsetup", args...)
		return classify(err)
	}

	return classify(m.runner.Run(ctx, "cryptsetup", args...))
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	if system.ExitCode(err) == exitNoKey || strings.Contains(err.Error(), "No key available") {
		return fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
	}

	return err
}

// IsLUKS checks if a device carries a LUKS header
func (m *LUKSManager) IsLUKS(ctx context.Context, device string) bool {
	return m.runner.Run(ctx, "cryptsetup", "isLuks", device) == nil
}

// Open opens a LUKS container
func (m *LUKSManager) Open(ctx context.Context, device, mapperName string, auth AuthMethod) error {
	if err := m.run(ctx, auth, "open", device, mapperName); err != nil {
		return fmt.Errorf("failed to open LUKS container: %w", err)
	}
	return nil
}

// Close closes a LUKS container
func (m *LUKSManager) Close(ctx context.Context, mapperName string) error {
	if err := m.runner.Run(ctx, "cryptsetup", "close", mapperName); err != nil {
		return fmt.Errorf("failed to close LUKS container %s: %w", mapperName, err)
	}
	return nil
}

// TestKey checks that auth unlocks device without creating a mapping.
func (m *LUKSManager) TestKey(ctx context.Context, device string, auth AuthMethod) error {
	return m.run(ctx, auth, "open", "--test-passphrase", device)
}

// AddKey enrolls newKeyfile into a free keyslot, authorized by auth.
func (m *LUKSManager) AddKey(ctx context.Context, device string, auth AuthMethod, newKeyfile string) error {
	if err := m.run(ctx, auth, "luksAddKey", device, newKeyfile); err != nil {
		return fmt.Errorf("failed to add LUKS key: %w", err)
	}
	return nil
}

// RemoveKey wipes the keyslot unlocked by keyfile.
func (m *LUKSManager) RemoveKey(ctx context.Context, device, keyfile string) error {
	if err := classify(m.runner.Run(ctx, "cryptsetup", "luksRemoveKey", device, keyfile)); err != nil {
		return fmt.Errorf("failed to remove LUKS key: %w", err)
	}
	return nil
}

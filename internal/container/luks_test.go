package container

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nace/automount/internal/system"
)

type capturedCall struct {
	argv  string
	stdin string
}

type captureRunner struct {
	calls []capturedCall
	err   error
}

func (r *captureRunner) add(stdin []byte, name string, args []string) error {
	r.calls = append(r.calls, capturedCall{argv: strings.Join(append([]string{name}, args...), " "), stdin: string(stdin)})
	return r.err
}

func (r *captureRunner) Run(_ context.Context, name string, args ...string) error {
	return r.add(nil, name, args)
}

func (r *captureRunner) RunOutput(_ context.Context, name string, args ...string) (string, error) {
	return "", r.add(nil, name, args)
}

func (r *captureRunner) RunInput(_ context.Context, stdin []byte, name string, args ...string) (string, error) {
	return "", r.add(stdin, name, args)
}

func (r *captureRunner) CommandExists(string) bool { return true }

func TestLUKSManagerCommands(t *testing.T) {
	runner := &captureRunner{}
	m := NewLUKSManager(runner)
	ctx := context.Background()
	pass := &PassphraseAuth{Passphrase: system.NewSecureString("secret")}

	require.NoError(t, m.Open(ctx, "/dev/sdb1", "luks-2222-BBBB", pass))
	require.NoError(t, m.AddKey(ctx, "/dev/sdb1", pass, "/keys/2222-BBBB.key"))
	require.NoError(t, m.TestKey(ctx, "/dev/sdb1", &KeyfileAuth{KeyfilePath: "/keys/2222-BBBB.key"}))
	require.NoError(t, m.RemoveKey(ctx, "/dev/sdb1", "/keys/2222-BBBB.key"))
	require.NoError(t, m.Close(ctx, "luks-2222-BBBB"))
	assert.True(t, m.IsLUKS(ctx, "/dev/sdb1"))

	assert.Equal(t, []capturedCall{
		{argv: "cryptsetup open /dev/sdb1 luks-2222-BBBB --key-file -", stdin: "secret"},
		{argv: "cryptsetup luksAddKey /dev/sdb1 /keys/2222-BBBB.key --key-file -", stdin: "secret"},
		{argv: "cryptsetup open --test-passphrase /dev/sdb1 --key-file /keys/2222-BBBB.key"},
		{argv: "cryptsetup luksRemoveKey /dev/sdb1 /keys/2222-BBBB.key"},
		{argv: "cryptsetup close luks-2222-BBBB"},
		{argv: "cryptsetup isLuks /dev/sdb1"},
	}, runner.calls)
}

func TestLUKSManagerWrongPassphrase(t *testing.T) {
	runner := &captureRunner{err: errors.New("cryptsetup failed: exit status 2\nStderr: No key available with this passphrase.")}
	m := NewLUKSManager(runner)

	err := m.Open(context.Background(), "/dev/sdb1", "luks-x", &PassphraseAuth{Passphrase: system.NewSecureString("bad")})
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	runner.err = errors.New("cryptsetup failed: Device /dev/sdb1 does not exist")
	err = m.Open(context.Background(), "/dev/sdb1", "luks-x", &PassphraseAuth{Passphrase: system.NewSecureString("bad")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWrongPassphrase)
}

func TestPassphraseAuthRejectsEmpty(t *testing.T) {
	_, _, err := (&PassphraseAuth{}).Apply(nil)
	assert.Error(t, err)
}

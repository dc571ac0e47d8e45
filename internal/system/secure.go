package system

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// SecureBytes holds a secret such as a container passphrase. The backing
// memory is locked against swapping when the process is allowed to, and is
// overwritten by Zeroize or, failing that, by the garbage collector.
type SecureBytes struct {
	data   []byte
	locked bool
}

// NewSecureBytes takes ownership of data; the caller must not keep using it.
func NewSecureBytes(data []byte) *SecureBytes {
	sb := &SecureBytes{data: data}
	if len(data) > 0 {
		sb.locked = unix.Mlock(data) == nil
	}

	runtime.SetFinalizer(sb, (*SecureBytes).Zeroize)

	return sb
}

// NewSecureString copies s into a new SecureBytes.
func NewSecureString(s string) *SecureBytes {
	return NewSecureBytes([]byte(s))
}

// Bytes exposes the secret. The slice is only valid until Zeroize.
func (s *SecureBytes) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.data
}

// Clone returns an independent copy, so that one owner may zeroize its copy
// without affecting the other.
func (s *SecureBytes) Clone() *SecureBytes {
	if s.Len() == 0 {
		return nil
	}
	return NewSecureBytes(append([]byte(nil), s.data...))
}

// Zeroize overwrites the secret and releases it. Safe to call repeatedly.
func (s *SecureBytes) Zeroize() {
	if s == nil || s.data == nil {
		return
	}

	clear(s.data)

	if s.locked {
		_ = unix.Munlock(s.data)
		s.locked = false
	}

	s.data = nil
}

// Len returns the secret length in bytes.
func (s *SecureBytes) Len() int {
	if s == nil {
		return 0
	}
	return len(s.data)
}

// String hides the content so a passphrase never reaches a log line.
func (s *SecureBytes) String() string {
	return "[redacted]"
}

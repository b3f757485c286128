package strarena

import (
	"runtime"
	"unsafe"
)

// SecureString holds a string value that must never outlive its usefulness
// in readable memory: a password taken from a connection string or a
// connect prompt. Wipe overwrites the backing bytes before the value is
// discarded.
type SecureString struct {
	data  []byte
	wiped bool
}

// NewSecureString copies s into a SecureString-owned buffer. The caller is
// responsible for not retaining s itself once ownership has transferred.
func NewSecureString(s string) *SecureString {
	data := make([]byte, len(s))
	copy(data, s)
	return &SecureString{data: data}
}

// String returns the held value, or "" after Wipe.
func (s *SecureString) String() string {
	if s.wiped {
		return ""
	}
	return string(s.data)
}

// Len reports the held value's byte length.
func (s *SecureString) Len() int { return len(s.data) }

// Wipe overwrites every byte with zero and marks the value unusable.
// runtime.KeepAlive pins the backing array through the zeroing loop so the
// compiler can't prove the writes are dead and elide them, the closest Go
// gets to the volatile-zero discipline a lower-level language would use
// here directly.
func (s *SecureString) Wipe() {
	for i := range s.data {
		s.data[i] = 0
	}
	runtime.KeepAlive(s.data)
	s.wiped = true
}

// Free is an alias for Wipe.
func (s *SecureString) Free() { s.Wipe() }

// WipeString zeroes the backing bytes of an existing string in place via
// unsafe.Slice over its data pointer. Go strings are normally immutable;
// this exists for the password fields that were already typed as plain
// string before anyone needed to wipe them (connstr.ConnString.Password,
// session.SavedConnection.Password) and can't be migrated to SecureString
// without changing their on-the-wire JSON shape. s must point at a string
// this process built at runtime (a JSON-decoded field, a conversion from
// []byte, an fmt.Sprintf result) and must not alias any other live
// reference to the same bytes, including anywhere else in a larger
// document: wiping a string literal or other compile-time constant corrupts
// the binary's read-only data and may crash the process outright.
func WipeString(s *string) {
	if len(*s) == 0 {
		return
	}
	b := unsafe.Slice(unsafe.StringData(*s), len(*s))
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
	*s = ""
}

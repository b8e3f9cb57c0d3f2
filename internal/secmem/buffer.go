package secmem

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"os"

	"github.com/awnumar/memguard"
)

const redacted = "[REDACTED]"

// noCopy makes go vet report Buffer values copied by assignment.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Buffer is a locked, zeroizable secret.
type Buffer struct {
	_  noCopy
	lb *memguard.LockedBuffer
}

// NewBuffer allocates a zero-filled secret of the given size.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		return &Buffer{}
	}
	return &Buffer{lb: memguard.NewBuffer(size)}
}

// NewBufferFromBytes moves b into locked memory and wipes b.
func NewBufferFromBytes(b []byte) *Buffer {
	if len(b) == 0 {
		return &Buffer{}
	}
	return &Buffer{lb: memguard.NewBufferFromBytes(b)}
}

// NewPassphrase copies s into locked memory. The string itself cannot be
// wiped, so callers holding passphrases as []byte should prefer
// NewBufferFromBytes.
func NewPassphrase(s string) *Buffer {
	b := []byte(s)
	return NewBufferFromBytes(b)
}

// Bytes returns the secret. The slice is only valid until Destroy.
func (b *Buffer) Bytes() []byte {
	if !b.IsAlive() {
		return nil
	}
	return b.lb.Bytes()
}

// Len returns the secret length, 0 once destroyed.
func (b *Buffer) Len() int {
	if !b.IsAlive() {
		return 0
	}
	return b.lb.Size()
}

// IsAlive reports whether the buffer still holds a secret.
func (b *Buffer) IsAlive() bool {
	return b != nil && b.lb != nil && b.lb.IsAlive()
}

// Equal compares two secrets in constant time.
func (b *Buffer) Equal(other *Buffer) bool {
	return ConstantTimeEqual(b.Bytes(), other.Bytes())
}

// EqualBytes compares the secret with p in constant time.
func (b *Buffer) EqualBytes(p []byte) bool {
	return ConstantTimeEqual(b.Bytes(), p)
}

// Clone copies the secret into a new locked buffer.
func (b *Buffer) Clone() *Buffer {
	if !b.IsAlive() {
		return &Buffer{}
	}
	c := memguard.NewBuffer(b.lb.Size())
	copy(c.Bytes(), b.lb.Bytes())
	return &Buffer{lb: c}
}

// Move transfers ownership of the secret to a new Buffer. b is left empty.
func (b *Buffer) Move() *Buffer {
	if b == nil {
		return &Buffer{}
	}
	moved := &Buffer{lb: b.lb}
	b.lb = nil
	return moved
}

// Wipe zero-fills the secret without releasing it.
func (b *Buffer) Wipe() {
	if b.IsAlive() {
		b.lb.Melt()
		b.lb.Wipe()
	}
}

// Destroy wipes and releases the secret. Safe to call more than once.
func (b *Buffer) Destroy() {
	if b == nil || b.lb == nil {
		return
	}
	b.lb.Destroy()
	b.lb = nil
}

func (b *Buffer) String() string   { return redacted }
func (b *Buffer) GoString() string { return "secmem.Buffer(" + redacted + ")" }

// Format keeps every fmt verb, including %x and %#v, from printing the secret.
func (b *Buffer) Format(f fmt.State, verb rune) {
	if verb == 'v' && f.Flag('#') {
		fmt.Fprint(f, b.GoString())
		return
	}
	fmt.Fprint(f, redacted)
}

func (b *Buffer) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// Wipe zero-fills a heap slice.
func Wipe(p []byte) {
	memguard.WipeBytes(p)
}

// ConstantTimeEqual compares a and b without leaking where they differ.
// Slices of different length compare unequal.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// CatchSignal runs f when one of signals arrives, then wipes all live
// buffers and exits with status 1.
func CatchSignal(f func(os.Signal), signals ...os.Signal) {
	memguard.CatchSignal(f, signals...)
}

// Purge wipes all live buffers. Meant for deferred use in main.
func Purge() {
	memguard.Purge()
}

package kdf

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/illarion/fincrypt/internal/secmem"
	"golang.org/x/crypto/argon2"
)

const (
	SaltSize = 16 // Salt size in bytes
	KeySize  = 32 // AES-256 key size

	DefaultMemoryKiB   = 64 * 1024
	DefaultTime        = 3
	DefaultParallelism = 4

	maxMemoryKiB = 4 * 1024 * 1024
)

var ErrKeyDerivation = errors.New("key derivation failed")

// Salt is the per-container KDF salt. It is not secret.
type Salt [SaltSize]byte

// Params are the Argon2id cost parameters.
type Params struct {
	MemoryKiB   uint32
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultParams returns the production cost parameters.
func DefaultParams() Params {
	return Params{
		MemoryKiB:   DefaultMemoryKiB,
		Time:        DefaultTime,
		Parallelism: DefaultParallelism,
		KeyLen:      KeySize,
	}
}

// Validate checks the parameters against Argon2id limits and the cipher key size.
func (p Params) Validate() error {
	switch {
	case p.Time < 1:
		return fmt.Errorf("%w: time cost must be at least 1", ErrKeyDerivation)
	case p.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be at least 1", ErrKeyDerivation)
	case p.MemoryKiB < 8*uint32(p.Parallelism):
		return fmt.Errorf("%w: memory cost must be at least %d KiB", ErrKeyDerivation, 8*uint32(p.Parallelism))
	case p.MemoryKiB > maxMemoryKiB:
		return fmt.Errorf("%w: memory cost above %d KiB", ErrKeyDerivation, maxMemoryKiB)
	case p.KeyLen != KeySize:
		return fmt.Errorf("%w: key length must be %d bytes", ErrKeyDerivation, KeySize)
	}
	return nil
}

// NewSalt generates a random salt.
func NewSalt() (Salt, error) {
	var salt Salt
	if _, err := rand.Read(salt[:]); err != nil {
		return Salt{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// Derive derives a key from passphrase and salt. The passphrase is destroyed
// whether or not derivation succeeds.
func Derive(passphrase *secmem.Buffer, salt Salt, params Params) (*secmem.Buffer, error) {
	defer passphrase.Destroy()

	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !passphrase.IsAlive() {
		return nil, fmt.Errorf("%w: empty passphrase", ErrKeyDerivation)
	}

	raw := argon2.IDKey(passphrase.Bytes(), salt[:], params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen)
	if len(raw) != int(params.KeyLen) {
		secmem.Wipe(raw)
		return nil, fmt.Errorf("%w: unexpected output length %d", ErrKeyDerivation, len(raw))
	}

	// NewBufferFromBytes wipes raw
	return secmem.NewBufferFromBytes(raw), nil
}

// Verify re-derives a key and compares it with expected in constant time.
// The passphrase is destroyed.
func Verify(passphrase *secmem.Buffer, salt Salt, params Params, expected *secmem.Buffer) (bool, error) {
	key, err := Derive(passphrase, salt, params)
	if err != nil {
		return false, err
	}
	defer key.Destroy()

	return key.Equal(expected), nil
}

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/illarion/fincrypt/internal/secmem"
)

const (
	KeySize   = 32 // AES-256 key size
	NonceSize = 12 // GCM nonce size
	TagSize   = 16 // GCM authentication tag size
)

var (
	ErrAuthentication = errors.New("wrong passphrase or corrupted file")
	ErrInvalidKey     = errors.New("invalid key")
)

// Nonce is a per-encryption GCM nonce.
type Nonce [NonceSize]byte

// AEAD encrypts and decrypts container payloads.
type AEAD interface {
	Encrypt(key *secmem.Buffer, plaintext []byte) (Nonce, []byte, error)
	Decrypt(key *secmem.Buffer, nonce Nonce, ciphertext []byte) (*secmem.Buffer, error)
}

// GCM is the AES-256-GCM AEAD.
type GCM struct {
	rand io.Reader
}

// NewGCM creates an AES-256-GCM AEAD drawing nonces from crypto/rand.
func NewGCM() *GCM {
	return &GCM{rand: rand.Reader}
}

func (g *GCM) aead(key *secmem.Buffer) (cipher.AEAD, error) {
	if key.Len() != KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKey, KeySize, key.Len())
	}

	// The expanded key is heap-allocated and not wiped. See the package doc.
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the nonce
// and ciphertext||tag. plaintext is wiped before returning.
func (g *GCM) Encrypt(key *secmem.Buffer, plaintext []byte) (Nonce, []byte, error) {
	defer secmem.Wipe(plaintext)

	gcm, err := g.aead(key)
	if err != nil {
		return Nonce{}, nil, err
	}

	var nonce Nonce
	if _, err := io.ReadFull(g.rand, nonce[:]); err != nil {
		return Nonce{}, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce[:], plaintext, nil)
	return nonce, ciphertext, nil
}

// Decrypt opens ciphertext||tag. Any authentication failure is ErrAuthentication.
func (g *GCM) Decrypt(key *secmem.Buffer, nonce Nonce, ciphertext []byte) (*secmem.Buffer, error) {
	gcm, err := g.aead(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < TagSize {
		return nil, ErrAuthentication
	}

	plaintext, err := gcm.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	if len(plaintext) == 0 {
		return secmem.NewBuffer(0), nil
	}
	return secmem.NewBufferFromBytes(plaintext), nil
}

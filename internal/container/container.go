package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/illarion/fincrypt/internal/crypto"
	"github.com/illarion/fincrypt/internal/kdf"
)

const (
	Version    = 1
	MagicSize  = 8
	HeaderSize = MagicSize + 1 + kdf.SaltSize + crypto.NonceSize // 37
)

// Magic identifies a container file.
var Magic = [MagicSize]byte{'F', 'I', 'N', 'C', 'R', 'Y', 'P', 'T'}

var ErrFormat = errors.New("invalid container format")

// Header is the unencrypted container prefix.
type Header struct {
	Version uint8
	Salt    kdf.Salt
	Nonce   crypto.Nonce
}

// Encode serializes the header followed by the ciphertext.
func Encode(h Header, ciphertext []byte) []byte {
	out := make([]byte, HeaderSize+len(ciphertext))
	copy(out, Magic[:])
	out[MagicSize] = h.Version
	copy(out[MagicSize+1:], h.Salt[:])
	copy(out[MagicSize+1+kdf.SaltSize:], h.Nonce[:])
	copy(out[HeaderSize:], ciphertext)
	return out
}

// Decode splits a container into its header and ciphertext. The returned
// ciphertext aliases b.
func Decode(b []byte) (Header, []byte, error) {
	h, err := parseHeader(b)
	if err != nil {
		return Header{}, nil, err
	}
	return h, b[HeaderSize:], nil
}

// ReadHeader reads and validates only the fixed-size header from r.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, fmt.Errorf("%w: truncated header", ErrFormat)
		}
		return Header{}, err
	}
	return parseHeader(buf)
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than the %d-byte header", ErrFormat, len(b), HeaderSize)
	}
	if !bytes.Equal(b[:MagicSize], Magic[:]) {
		return Header{}, fmt.Errorf("%w: bad magic", ErrFormat)
	}

	var h Header
	h.Version = b[MagicSize]
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrFormat, h.Version)
	}
	copy(h.Salt[:], b[MagicSize+1:])
	copy(h.Nonce[:], b[MagicSize+1+kdf.SaltSize:HeaderSize])
	return h, nil
}

package store

import (
	"errors"
	"fmt"

	"github.com/illarion/fincrypt/internal/container"
	"github.com/illarion/fincrypt/internal/crypto"
	"github.com/illarion/fincrypt/internal/kdf"
)

var (
	ErrAlreadyExists = errors.New("container already exists")
	ErrNotFound      = errors.New("container not found")
	ErrLocked        = errors.New("container is locked by another process")
	ErrNotOpen       = errors.New("store is not open")
	ErrAlreadyOpen   = errors.New("store is already open")
)

// IOError is a filesystem failure. Transient errors (interrupted calls,
// busy or temporarily unavailable resources) are retried by Save.
type IOError struct {
	Op        string
	Path      string
	Err       error
	Transient bool
}

func newIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err, Transient: isTransientErrno(err)}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsTransient reports whether err is an IOError worth retrying.
func IsTransient(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr) && ioErr.Transient
}

// UserMessage renders err for display. Wrong passphrases and corrupted
// ciphertext share one message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, crypto.ErrAuthentication):
		return crypto.ErrAuthentication.Error()
	case errors.Is(err, container.ErrFormat):
		return "not a fincrypt container or unsupported format version"
	case errors.Is(err, kdf.ErrKeyDerivation):
		return "key derivation failed"
	case errors.Is(err, ErrLocked):
		return "container is in use by another process"
	case errors.Is(err, ErrNotFound):
		return "container not found"
	case errors.Is(err, ErrAlreadyExists):
		return "container already exists"
	case errors.Is(err, ErrNotOpen):
		return "no open session"
	}

	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return fmt.Sprintf("I/O error during %s of %s: %v", ioErr.Op, ioErr.Path, ioErr.Err)
	}
	return err.Error()
}

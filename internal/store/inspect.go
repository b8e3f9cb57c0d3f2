package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/illarion/fincrypt/internal/container"
	"github.com/illarion/fincrypt/internal/crypto"
	"github.com/illarion/fincrypt/internal/kdf"
	"github.com/illarion/fincrypt/internal/secmem"
)

// Info describes a container without decrypting it.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
	Header  container.Header
	Locked  bool
}

// PayloadSize is the size of the encrypted payload without header and tag.
func (i Info) PayloadSize() int64 {
	n := i.Size - container.HeaderSize - crypto.TagSize
	if n < 0 {
		return 0
	}
	return n
}

// Inspect reads the container header and file metadata. No passphrase is
// needed and no key is derived.
func Inspect(path string) (Info, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to resolve path: %w", err)
	}

	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, ErrNotFound
		}
		return Info{}, newIOError("open", abs, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return Info{}, newIOError("stat", abs, err)
	}

	header, err := container.ReadHeader(f)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Path:    abs,
		Size:    stat.Size(),
		ModTime: stat.ModTime(),
		Header:  header,
	}

	lock, err := acquireLock(abs)
	switch {
	case errors.Is(err, ErrLocked):
		info.Locked = true
	case err != nil:
		return Info{}, err
	default:
		if err := lock.release(); err != nil {
			return Info{}, err
		}
	}
	return info, nil
}

// VerifyPassphrase checks passphrase against the container at path without
// opening a session. The plaintext is decrypted in memory only and the
// container lock is held for the duration of the check. The passphrase is
// consumed.
func VerifyPassphrase(ctx context.Context, path string, passphrase *secmem.Buffer, params kdf.Params) error {
	defer passphrase.Destroy()

	opts := DefaultOptions()
	opts.Params = params
	return New(opts).verify(ctx, path, passphrase)
}

func (s *Store) verify(ctx context.Context, path string, passphrase *secmem.Buffer) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	lock, err := lockExisting(abs)
	if err != nil {
		return err
	}
	defer lock.release()

	_, key, plaintext, err := s.unseal(ctx, abs, passphrase)
	if err != nil {
		return err
	}
	plaintext.Destroy()
	secmem.Release(key, "key", s.opts.Inspector)
	return nil
}

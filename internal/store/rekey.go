package store

import (
	"github.com/illarion/fincrypt/internal/kdf"
	"github.com/illarion/fincrypt/internal/secmem"
)

// Rekey re-encrypts the container under a new passphrase and a new salt.
// The working copy, including unsaved changes, is written out immediately.
// On failure the old key stays in use and the container is unchanged.
func (s *Store) Rekey(newPassphrase *secmem.Buffer) (err error) {
	defer newPassphrase.Destroy()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		return ErrNotOpen
	}
	defer func() { s.record("rekey", s.path, err) }()

	salt, err := kdf.NewSalt()
	if err != nil {
		return err
	}
	newKey, err := s.derive(newPassphrase, salt, s.opts.Params)
	if err != nil {
		return err
	}

	oldKey, oldHeader := s.key, s.header
	s.key = newKey
	s.header.Salt = salt

	if err := s.save(); err != nil {
		s.key, s.header = oldKey, oldHeader
		secmem.Release(newKey, "key", s.opts.Inspector)
		return err
	}

	secmem.Release(oldKey, "key", s.opts.Inspector)
	s.log.Infof("rekeyed %s", s.path)
	return nil
}

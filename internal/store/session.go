package store

import (
	"context"
	"errors"

	"github.com/illarion/fincrypt/internal/secmem"
)

// WithSession opens the container at path, runs fn and closes the store on
// every path out of fn, including a panic. Changes made by fn are saved on
// close even when fn returns an error.
func WithSession(ctx context.Context, path string, passphrase *secmem.Buffer, opts Options, fn func(*Store) error) (err error) {
	s := New(opts)
	if err := s.Open(ctx, path, passphrase); err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	return fn(s)
}

// WithNewSession is WithSession for a container that does not exist yet.
func WithNewSession(ctx context.Context, path string, passphrase *secmem.Buffer, opts Options, fn func(*Store) error) (err error) {
	s := New(opts)
	if err := s.Create(ctx, path, passphrase); err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	return fn(s)
}

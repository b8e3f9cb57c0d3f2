//go:build !unix

package store

import (
	"errors"
	"io/fs"
	"os"
)

type fileLock struct {
	path string
	f    *os.File
}

// acquireLock creates target+".lock" exclusively. A lock file left behind by
// a crashed process has to be removed by hand.
func acquireLock(target string) (*fileLock, error) {
	path := target + ".lock"
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrLocked
		}
		return nil, newIOError("create lock", path, err)
	}
	return &fileLock{path: path, f: f}, nil
}

func (l *fileLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	closeErr := l.f.Close()
	l.f = nil
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Join(closeErr, newIOError("remove lock", l.path, err))
	}
	return closeErr
}

func syncDir(string) error { return nil }

func isTransientErrno(error) bool { return false }

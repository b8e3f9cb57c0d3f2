//go:build unix

package store

import (
	"errors"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

const maxLockAttempts = 10

type fileLock struct {
	path string
	f    *os.File
}

// acquireLock takes a non-blocking exclusive flock on target+".lock".
func acquireLock(target string) (*fileLock, error) {
	path := target + ".lock"

	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
		if err != nil {
			return nil, newIOError("open lock", path, err)
		}

		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, ErrLocked
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, newIOError("lock", path, err)
		}

		// A previous holder unlinks the file on release. If that happened
		// between our open and flock, we hold a lock on an orphaned inode.
		held, err1 := f.Stat()
		current, err2 := os.Stat(path)
		if err1 == nil && err2 == nil && os.SameFile(held, current) {
			return &fileLock{path: path, f: f}, nil
		}
		f.Close()
		if err2 != nil && !errors.Is(err2, fs.ErrNotExist) {
			return nil, newIOError("stat lock", path, err2)
		}
	}
	return nil, ErrLocked
}

func (l *fileLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	var errs []error
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, newIOError("remove lock", l.path, err))
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		errs = append(errs, newIOError("unlock", l.path, err))
	}
	if err := l.f.Close(); err != nil {
		errs = append(errs, newIOError("close lock", l.path, err))
	}
	l.f = nil
	return errors.Join(errs...)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, unix.EINVAL) {
		return err
	}
	return nil
}

func isTransientErrno(err error) bool {
	return errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EBUSY) ||
		errors.Is(err, unix.ETIMEDOUT)
}

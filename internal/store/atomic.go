package store

import (
	"os"
	"path/filepath"
	"time"
)

// writeWithRetry replaces the container with data, retrying transient
// failures with linear backoff. The same bytes are written on each attempt.
func (s *Store) writeWithRetry(data []byte) error {
	var err error
	for attempt := 0; attempt <= s.opts.SaveRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * s.opts.RetryDelay
			s.log.Warnf("save of %s failed (%v), retry %d/%d in %s", s.path, err, attempt, s.opts.SaveRetries, delay)
			s.sleep(delay)
		}
		err = s.writeAtomic(data)
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}

// writeAtomic writes data to a temp file beside the container and renames it
// into place. Until the rename succeeds the old container is untouched. After
// the rename the new container is in place, so a failed directory sync is
// only logged.
func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return newIOError("create temp", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return newIOError("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return newIOError("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return newIOError("close", tmpName, err)
	}

	if err := s.rename(tmpName, s.path); err != nil {
		return newIOError("rename", s.path, err)
	}
	committed = true

	if err := s.syncDir(dir); err != nil {
		s.log.Warnf("%v", newIOError("sync dir", dir, err))
	}
	return nil
}

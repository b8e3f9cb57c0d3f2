package secmem

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const wipeChunkSize = 64 * 1024

// SecureDelete overwrites the file at path with zeros, flushes it to the
// storage layer and removes it. A missing file is not an error.
//
// This is best-effort. It gives no guarantee on copy-on-write filesystems,
// snapshotted volumes or flash storage with wear levelling.
func SecureDelete(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open %s for wiping: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := overwrite(f, info.Size()); err != nil {
		f.Close()
		return fmt.Errorf("failed to wipe %s: %w", path, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func overwrite(w io.WriterAt, size int64) error {
	zeros := make([]byte, wipeChunkSize)
	for off := int64(0); off < size; {
		n := int64(len(zeros))
		if size-off < n {
			n = size - off
		}
		written, err := w.WriteAt(zeros[:n], off)
		if err != nil {
			return err
		}
		off += int64(written)
	}
	return nil
}

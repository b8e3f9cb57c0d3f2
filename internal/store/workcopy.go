package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/illarion/fincrypt/internal/secmem"
)

const (
	dirPermSecure  = 0700
	filePermSecure = 0600
)

// workingCopy is the decrypted payload file inside a private session
// directory. All access goes through an os.Root so a symlink planted in the
// session directory cannot redirect reads or writes.
type workingCopy struct {
	dir  string
	name string
	root *os.Root
}

// newWorkingCopy creates a session directory under parent (the system temp
// directory when empty) holding an empty file called name.
func newWorkingCopy(parent, name string) (*workingCopy, error) {
	dir, err := os.MkdirTemp(parent, "fincrypt-")
	if err != nil {
		return nil, newIOError("create session dir", parent, err)
	}
	if err := os.Chmod(dir, dirPermSecure); err != nil {
		os.RemoveAll(dir)
		return nil, newIOError("chmod session dir", dir, err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, newIOError("open session dir", dir, err)
	}

	w := &workingCopy{dir: dir, name: name, root: root}
	if err := w.write(nil); err != nil {
		w.destroy()
		return nil, err
	}
	return w, nil
}

func (w *workingCopy) path() string {
	return filepath.Join(w.dir, w.name)
}

// read returns the payload in a heap slice the caller must wipe.
func (w *workingCopy) read() ([]byte, error) {
	f, err := w.root.Open(w.name)
	if err != nil {
		return nil, newIOError("open working copy", w.path(), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, newIOError("stat working copy", w.path(), err)
	}
	if !info.Mode().IsRegular() {
		return nil, newIOError("open working copy", w.path(), fmt.Errorf("not a regular file"))
	}

	// exact-size buffer so no partially filled copies are left behind
	data := make([]byte, info.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		secmem.Wipe(data)
		return nil, newIOError("read working copy", w.path(), err)
	}
	return data, nil
}

func (w *workingCopy) write(data []byte) error {
	f, err := w.root.OpenFile(w.name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePermSecure)
	if err != nil {
		return newIOError("open working copy", w.path(), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return newIOError("write working copy", w.path(), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return newIOError("sync working copy", w.path(), err)
	}
	if err := f.Close(); err != nil {
		return newIOError("close working copy", w.path(), err)
	}
	return nil
}

// destroy overwrites and unlinks every regular file in the session
// directory, then removes the directory. Storage engines may leave side
// files next to the payload; those are wiped too.
func (w *workingCopy) destroy() error {
	var errs []error

	entries, err := os.ReadDir(w.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, newIOError("list session dir", w.dir, err))
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		p := filepath.Join(w.dir, e.Name())
		if err := secmem.SecureDelete(p); err != nil {
			errs = append(errs, newIOError("secure delete", p, err))
		}
	}

	if w.root != nil {
		if err := w.root.Close(); err != nil {
			errs = append(errs, newIOError("close session dir", w.dir, err))
		}
		w.root = nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		errs = append(errs, newIOError("remove session dir", w.dir, err))
	}
	return errors.Join(errs...)
}

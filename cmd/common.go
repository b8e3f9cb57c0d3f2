package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/illarion/fincrypt/internal/crypto"
	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/passphrase"
	"github.com/illarion/fincrypt/internal/secmem"
	"github.com/illarion/fincrypt/internal/storage"
	"github.com/illarion/fincrypt/internal/store"
)

// HandleError prints err with a hint where one helps and returns the exit
// code.
func HandleError(w io.Writer, err error) int {
	fmt.Fprintf(w, "%s %s\n", logging.Error.Sprint("Error:"), store.UserMessage(err))

	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintf(w, "Run %s first\n", logging.Code.Sprint("fincrypt init"))
	case errors.Is(err, store.ErrAlreadyExists):
		fmt.Fprintf(w, "Use %s to inspect it\n", logging.Code.Sprint("fincrypt status"))
	case errors.Is(err, store.ErrLocked):
		fmt.Fprintln(w, "Another fincrypt session has the container open; try again when it finishes")
	case errors.Is(err, passphrase.ErrMismatch), errors.Is(err, passphrase.ErrEmpty):
		fmt.Fprintln(w, "No changes were made")
	}
	return 1
}

// startSpinner shows message with a spinner on terminals while a slow step
// runs. The returned stop function is safe to call more than once.
func (a *app) startSpinner(message string) func() {
	if a.verbose || a.debug {
		a.log.Infof("%s", message)
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriterFile(os.Stderr))
	s.Suffix = " " + message
	// Ignore color errors - continue without colored spinner if it fails.
	_ = s.Color("cyan")
	s.Start()

	var once sync.Once
	return func() { once.Do(s.Stop) }
}

// session opens the configured container, hands its record database to fn
// and closes both. The database is closed before the store so the final save
// sees a consistent file. A stale keyring passphrase falls back to the
// prompt once.
func (a *app) session(ctx context.Context, fn func(*store.Store, *storage.Storage) error) error {
	path := a.cfg.Store.Path

	pw, src, err := a.resolver.Resolve(path)
	if err != nil {
		return err
	}

	err = a.runSession(ctx, path, pw, fn)
	if errors.Is(err, crypto.ErrAuthentication) && src == passphrase.SourceKeyring {
		a.log.Warnf("passphrase stored in the keyring was rejected")
		if pw, err = a.resolver.Prompter.Prompt("Enter passphrase: "); err != nil {
			return err
		}
		err = a.runSession(ctx, path, pw, fn)
	}
	return err
}

func (a *app) runSession(ctx context.Context, path string, pw *secmem.Buffer, fn func(*store.Store, *storage.Storage) error) error {
	stop := a.startSpinner("Unlocking " + path)
	defer stop()

	return store.WithSession(ctx, path, pw, a.storeOptions(), func(s *store.Store) error {
		stop()
		return a.withDatabase(s, fn)
	})
}

func (a *app) withDatabase(s *store.Store, fn func(*store.Store, *storage.Storage) error) error {
	track(s)
	defer untrack(s)

	db, err := storage.OpenInitialized(s.WorkingPath())
	if err != nil {
		return err
	}
	err = fn(s, db)
	return errors.Join(err, db.Close())
}

// readInput reads a record value from path, or from in when path is "" or "-".
func readInput(in io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(in)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

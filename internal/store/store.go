package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/illarion/fincrypt/internal/audit"
	"github.com/illarion/fincrypt/internal/container"
	"github.com/illarion/fincrypt/internal/crypto"
	"github.com/illarion/fincrypt/internal/kdf"
	"github.com/illarion/fincrypt/internal/secmem"
)

const (
	DefaultSaveRetries = 3
	DefaultRetryDelay  = 100 * time.Millisecond
)

// State is the lifecycle state of a Store.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configure a Store.
type Options struct {
	// Params are the KDF costs used for Create, Open and Rekey. The
	// container does not record them, so Open must use the same values the
	// container was created with.
	Params kdf.Params

	// WorkDir holds session directories. Empty means the system temp dir.
	WorkDir string

	SaveRetries int
	RetryDelay  time.Duration

	Logger Logger
	Audit  audit.Logger

	// Inspector sees the wiped key just before it is released.
	Inspector secmem.Inspector
}

// DefaultOptions returns production options.
func DefaultOptions() Options {
	return Options{
		Params:      kdf.DefaultParams(),
		SaveRetries: DefaultSaveRetries,
		RetryDelay:  DefaultRetryDelay,
	}
}

type deriveFunc func(passphrase *secmem.Buffer, salt kdf.Salt, params kdf.Params) (*secmem.Buffer, error)

// Store is one encrypted container session. Methods are safe for concurrent
// use.
type Store struct {
	mu    sync.Mutex
	opts  Options
	log   Logger
	audit audit.Logger

	state  State
	path   string
	header container.Header
	key    *secmem.Buffer
	lock   *fileLock
	wc     *workingCopy

	dirty    bool
	lastHash [sha256.Size]byte

	derive  deriveFunc
	aead    crypto.AEAD
	rename  func(oldpath, newpath string) error
	syncDir func(dir string) error
	sleep   func(time.Duration)
}

// New returns a closed Store.
func New(opts Options) *Store {
	if opts.Params == (kdf.Params{}) {
		opts.Params = kdf.DefaultParams()
	}
	if opts.Params.KeyLen == 0 {
		opts.Params.KeyLen = kdf.KeySize
	}
	if opts.SaveRetries < 0 {
		opts.SaveRetries = 0
	}

	s := &Store{
		opts:    opts,
		log:     opts.Logger,
		audit:   opts.Audit,
		derive:  kdf.Derive,
		aead:    crypto.NewGCM(),
		rename:  os.Rename,
		syncDir: syncDir,
		sleep:   time.Sleep,
	}
	if s.log == nil {
		s.log = nopLogger{}
	}
	if s.audit == nil {
		s.audit = audit.NewNoOpLogger()
	}
	return s
}

// Create makes a new empty container at path and opens it. The passphrase
// is consumed.
func (s *Store) Create(ctx context.Context, path string, passphrase *secmem.Buffer) (err error) {
	defer passphrase.Destroy()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateClosed {
		return ErrAlreadyOpen
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	defer func() { s.record("create", abs, err) }()
	defer s.abortUnlessOpen(&err)

	s.path = abs
	if s.lock, err = acquireLock(abs); err != nil {
		return err
	}

	if _, statErr := os.Lstat(abs); statErr == nil {
		return ErrAlreadyExists
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return newIOError("stat", abs, statErr)
	}

	salt, err := kdf.NewSalt()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.log.Debugf("deriving key for %s", abs)
	if s.key, err = s.derive(passphrase, salt, s.opts.Params); err != nil {
		return err
	}

	if s.wc, err = newWorkingCopy(s.opts.WorkDir, filepath.Base(abs)); err != nil {
		return err
	}

	s.header = container.Header{Version: container.Version, Salt: salt}
	s.state = StateOpen
	if err := s.save(); err != nil {
		s.state = StateClosed
		return err
	}

	s.log.Infof("created %s", abs)
	return nil
}

// Open decrypts the container at path into a fresh working copy. The
// passphrase is consumed. A wrong passphrase and a corrupted container both
// fail with crypto.ErrAuthentication.
func (s *Store) Open(ctx context.Context, path string, passphrase *secmem.Buffer) (err error) {
	defer passphrase.Destroy()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateClosed {
		return ErrAlreadyOpen
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	defer func() { s.record("open", abs, err) }()
	defer s.abortUnlessOpen(&err)

	s.path = abs
	if s.lock, err = lockExisting(abs); err != nil {
		return err
	}

	header, key, plaintext, err := s.unseal(ctx, abs, passphrase)
	if err != nil {
		return err
	}
	defer plaintext.Destroy()
	s.header, s.key = header, key

	if s.wc, err = newWorkingCopy(s.opts.WorkDir, filepath.Base(abs)); err != nil {
		return err
	}
	if err := s.wc.write(plaintext.Bytes()); err != nil {
		return err
	}

	s.lastHash = sha256.Sum256(plaintext.Bytes())
	s.dirty = false
	s.state = StateOpen

	s.log.Infof("opened %s", abs)
	return nil
}

// lockExisting locks the container at abs for reading. A missing parent
// directory means the container does not exist.
func lockExisting(abs string) (*fileLock, error) {
	lock, err := acquireLock(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return lock, err
}

// unseal reads, decodes and decrypts the container at abs. Format errors are
// reported before any key derivation.
func (s *Store) unseal(ctx context.Context, abs string, passphrase *secmem.Buffer) (container.Header, *secmem.Buffer, *secmem.Buffer, error) {
	raw, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return container.Header{}, nil, nil, ErrNotFound
		}
		return container.Header{}, nil, nil, newIOError("read", abs, err)
	}

	header, ciphertext, err := container.Decode(raw)
	if err != nil {
		return container.Header{}, nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return container.Header{}, nil, nil, err
	}

	s.log.Debugf("deriving key for %s", abs)
	key, err := s.derive(passphrase, header.Salt, s.opts.Params)
	if err != nil {
		return container.Header{}, nil, nil, err
	}

	plaintext, err := s.aead.Decrypt(key, header.Nonce, ciphertext)
	if err != nil {
		secmem.Release(key, "key", s.opts.Inspector)
		return container.Header{}, nil, nil, err
	}
	return header, key, plaintext, nil
}

// Save encrypts the working copy and atomically replaces the container.
func (s *Store) Save() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		return ErrNotOpen
	}
	return s.save()
}

func (s *Store) save() (err error) {
	defer func() { s.record("save", s.path, err) }()

	data, err := s.wc.read()
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)

	// Encrypt wipes data
	nonce, ciphertext, err := s.aead.Encrypt(s.key, data)
	if err != nil {
		return err
	}

	header := container.Header{Version: container.Version, Salt: s.header.Salt, Nonce: nonce}
	if err := s.writeWithRetry(container.Encode(header, ciphertext)); err != nil {
		return err
	}

	s.header = header
	s.lastHash = sum
	s.dirty = false
	s.log.Debugf("saved %s (%d bytes)", s.path, container.HeaderSize+len(ciphertext))
	return nil
}

// Close saves pending changes and tears the session down. Every teardown
// step runs even if the save or an earlier step fails. Closing a closed
// Store is a no-op.
func (s *Store) Close() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}

	path := s.path
	defer func() { s.record("close", path, err) }()

	s.state = StateClosing

	var errs []error
	dirty, err := s.isDirty()
	if err != nil {
		errs = append(errs, err)
	} else if dirty {
		if err := s.save(); err != nil {
			errs = append(errs, fmt.Errorf("final save failed: %w", err))
		}
	}
	errs = append(errs, s.teardown())

	s.log.Infof("closed %s", path)
	return errors.Join(errs...)
}

// Abort tears the session down without saving. Unsaved changes are lost.
// Meant for signal handlers; aborting a closed Store is a no-op.
func (s *Store) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}

	path := s.path
	s.state = StateClosing
	err := s.teardown()
	s.record("abort", path, err)
	return err
}

func (s *Store) isDirty() (bool, error) {
	if s.dirty {
		return true, nil
	}
	data, err := s.wc.read()
	if err != nil {
		return false, err
	}
	defer secmem.Wipe(data)
	return sha256.Sum256(data) != s.lastHash, nil
}

// teardown destroys the working copy, releases the key and the lock, and
// resets the Store to Closed.
func (s *Store) teardown() error {
	var errs []error

	if s.wc != nil {
		if err := s.wc.destroy(); err != nil {
			errs = append(errs, err)
		}
		s.wc = nil
	}
	if s.key != nil {
		secmem.Release(s.key, "key", s.opts.Inspector)
		s.key = nil
	}
	if s.lock != nil {
		if err := s.lock.release(); err != nil {
			errs = append(errs, err)
		}
		s.lock = nil
	}

	s.state = StateClosed
	s.path = ""
	s.header = container.Header{}
	s.dirty = false
	s.lastHash = [sha256.Size]byte{}
	return errors.Join(errs...)
}

// abortUnlessOpen undoes a partial Create or Open.
func (s *Store) abortUnlessOpen(errp *error) {
	if *errp == nil && s.state == StateOpen {
		return
	}
	if err := s.teardown(); err != nil {
		s.log.Warnf("cleanup after failed open: %v", err)
	}
}

func (s *Store) record(action, path string, err error) {
	meta := map[string]any{"path": path}
	if err != nil {
		meta["error"] = UserMessage(err)
	}
	if logErr := s.audit.Log(action, err == nil, meta); logErr != nil {
		s.log.Warnf("audit log: %v", logErr)
	}
}

// WorkingPath is the decrypted working copy, or "" when not open.
func (s *Store) WorkingPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		return ""
	}
	return s.wc.path()
}

// ReadPayload returns the working copy contents.
func (s *Store) ReadPayload() (*secmem.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		return nil, ErrNotOpen
	}
	data, err := s.wc.read()
	if err != nil {
		return nil, err
	}
	return secmem.NewBufferFromBytes(data), nil
}

// WritePayload replaces the working copy contents and wipes data. The
// container is updated on the next Save or Close.
func (s *Store) WritePayload(data []byte) error {
	defer secmem.Wipe(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		return ErrNotOpen
	}
	if err := s.wc.write(data); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// MarkDirty forces the next Close to save.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Path is the absolute container path, or "" when closed.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Header is the header of the last container written or read.
func (s *Store) Header() container.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

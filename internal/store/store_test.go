package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illarion/fincrypt/internal/container"
	"github.com/illarion/fincrypt/internal/crypto"
	"github.com/illarion/fincrypt/internal/kdf"
	"github.com/illarion/fincrypt/internal/secmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = kdf.Params{MemoryKiB: 1024, Time: 1, Parallelism: 1, KeyLen: kdf.KeySize}

func testOptions(t *testing.T) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.Params = testParams
	opts.WorkDir = t.TempDir()
	opts.RetryDelay = time.Millisecond
	return opts
}

func pass(s string) *secmem.Buffer {
	return secmem.NewPassphrase(s)
}

// createWith makes a container holding payload and closes it.
func createWith(t *testing.T, path, passphrase, payload string) {
	t.Helper()
	s := New(testOptions(t))
	require.NoError(t, s.Create(context.Background(), path, pass(passphrase)))
	require.NoError(t, s.WritePayload([]byte(payload)))
	require.NoError(t, s.Close())
}

func readPayload(t *testing.T, path, passphrase string) string {
	t.Helper()
	var out string
	err := WithSession(context.Background(), path, pass(passphrase), testOptions(t), func(s *Store) error {
		buf, err := s.ReadPayload()
		if err != nil {
			return err
		}
		defer buf.Destroy()
		out = string(buf.Bytes())
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.db")
	opts := testOptions(t)
	ctx := context.Background()

	s := New(opts)
	assert.Equal(t, StateClosed, s.State())
	require.NoError(t, s.Create(ctx, path, pass("correct-horse")))
	assert.Equal(t, StateOpen, s.State())

	work := s.WorkingPath()
	assert.Equal(t, "a.db", filepath.Base(work))
	assert.Equal(t, opts.WorkDir, filepath.Dir(filepath.Dir(work)))

	require.NoError(t, os.WriteFile(work, []byte("hello"), 0600))
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	_, err := os.Stat(work)
	assert.True(t, os.IsNotExist(err), "working copy must not outlive the session")
	_, err = os.Stat(filepath.Dir(work))
	assert.True(t, os.IsNotExist(err), "session dir must be removed")
	_, err = os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err), "lock file must be removed")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("FINCRYPT")))
	assert.Equal(t, byte(container.Version), raw[container.MagicSize])
	assert.False(t, bytes.Contains(raw, []byte("hello")))
	assert.Len(t, raw, container.HeaderSize+len("hello")+crypto.TagSize)

	err = New(opts).Open(ctx, path, pass("wrong"))
	assert.ErrorIs(t, err, crypto.ErrAuthentication)
	assert.Equal(t, "wrong passphrase or corrupted file", UserMessage(err))

	assert.Equal(t, "hello", readPayload(t, path, "correct-horse"))
}

func TestCreateRejectsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	require.NoError(t, os.WriteFile(path, []byte("precious"), 0600))

	s := New(testOptions(t))
	err := s.Create(context.Background(), path, pass("pw"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, StateClosed, s.State())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "precious", string(raw))
	_, err = os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestOpenMissing(t *testing.T) {
	p := pass("pw")
	s := New(testOptions(t))
	err := s.Open(context.Background(), filepath.Join(t.TempDir(), "missing.db"), p)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, p.IsAlive(), "passphrase must be destroyed on failure")
	assert.Equal(t, StateClosed, s.State())

	t.Run("missing directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nodir", "a.db")

		err := New(testOptions(t)).Open(context.Background(), path, pass("pw"))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "container not found", UserMessage(err))

		err = VerifyPassphrase(context.Background(), path, pass("pw"), testParams)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTamperDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "pw", "some payload bytes")

	orig, err := os.ReadFile(path)
	require.NoError(t, err)

	positions := map[string]int{
		"salt":           container.MagicSize + 1,
		"nonce":          container.MagicSize + 1 + kdf.SaltSize,
		"ciphertext":     container.HeaderSize,
		"ciphertext end": len(orig) - crypto.TagSize - 1,
		"tag start":      len(orig) - crypto.TagSize,
		"tag end":        len(orig) - 1,
	}
	for name, pos := range positions {
		t.Run(name, func(t *testing.T) {
			tampered := bytes.Clone(orig)
			tampered[pos] ^= 0x01
			require.NoError(t, os.WriteFile(path, tampered, 0600))

			err := New(testOptions(t)).Open(context.Background(), path, pass("pw"))
			assert.ErrorIs(t, err, crypto.ErrAuthentication)
		})
	}

	t.Run("truncated tag", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, orig[:container.HeaderSize+4], 0600))
		err := New(testOptions(t)).Open(context.Background(), path, pass("pw"))
		assert.ErrorIs(t, err, crypto.ErrAuthentication)
	})
}

func TestFormatRejectedBeforeDerivation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "pw", "payload")

	orig, err := os.ReadFile(path)
	require.NoError(t, err)

	cases := map[string][]byte{
		"bad version": func() []byte {
			b := bytes.Clone(orig)
			b[container.MagicSize] = 2
			return b
		}(),
		"bad magic": func() []byte {
			b := bytes.Clone(orig)
			b[0] = 'X'
			return b
		}(),
		"truncated header": orig[:container.HeaderSize-1],
		"empty":            {},
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, data, 0600))

			var calls atomic.Int32
			s := New(testOptions(t))
			s.derive = func(p *secmem.Buffer, salt kdf.Salt, params kdf.Params) (*secmem.Buffer, error) {
				calls.Add(1)
				return kdf.Derive(p, salt, params)
			}

			err := s.Open(context.Background(), path, pass("pw"))
			assert.ErrorIs(t, err, container.ErrFormat)
			assert.Zero(t, calls.Load(), "no key derivation for a malformed container")
		})
	}
}

func TestNonceUniqueness(t *testing.T) {
	saves := 10000
	if testing.Short() {
		saves = 500
	}

	path := filepath.Join(t.TempDir(), "a.db")
	s := New(testOptions(t))
	require.NoError(t, s.Create(context.Background(), path, pass("pw")))
	defer s.Close()

	seen := make(map[crypto.Nonce]struct{}, saves+1)
	seen[s.Header().Nonce] = struct{}{}
	for i := 0; i < saves; i++ {
		require.NoError(t, s.Save())
		n := s.Header().Nonce
		_, dup := seen[n]
		require.False(t, dup, "nonce reused after %d saves", i+1)
		seen[n] = struct{}{}
	}
}

func TestCrashSafety(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.db")
	opts := testOptions(t)

	s := New(opts)
	require.NoError(t, s.Create(context.Background(), path, pass("pw")))
	require.NoError(t, s.WritePayload([]byte("v1")))
	require.NoError(t, s.Save())

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s.rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errors.New("simulated crash")}
	}
	require.NoError(t, s.WritePayload([]byte("v2")))

	err = s.Save()
	require.Error(t, err)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "rename", ioErr.Op)
	assert.False(t, IsTransient(err))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed save must leave the previous container intact")

	// final save fails too, but teardown still runs
	err = s.Close()
	assert.Error(t, err)
	assert.Equal(t, StateClosed, s.State())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, "a.db", e.Name(), "no temp or lock files may be left behind")
	}

	assert.Equal(t, "v1", readPayload(t, path, "pw"))
}

func TestKeyZeroizedOnClose(t *testing.T) {
	type seen struct {
		label string
		mem   []byte
	}
	var inspected []seen

	opts := testOptions(t)
	opts.Inspector = secmem.InspectorFunc(func(label string, mem []byte) {
		inspected = append(inspected, seen{label: label, mem: bytes.Clone(mem)})
	})

	path := filepath.Join(t.TempDir(), "a.db")
	s := New(opts)
	require.NoError(t, s.Create(context.Background(), path, pass("pw")))
	require.Empty(t, inspected)
	require.NoError(t, s.Close())

	require.Len(t, inspected, 1)
	assert.Equal(t, "key", inspected[0].label)
	assert.Len(t, inspected[0].mem, kdf.KeySize)
	assert.Equal(t, make([]byte, kdf.KeySize), inspected[0].mem)
}

func TestKeyZeroizedOnFailedOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "pw", "payload")

	var zeroed bool
	opts := testOptions(t)
	opts.Inspector = secmem.InspectorFunc(func(label string, mem []byte) {
		zeroed = bytes.Equal(mem, make([]byte, len(mem)))
	})

	err := New(opts).Open(context.Background(), path, pass("nope"))
	assert.ErrorIs(t, err, crypto.ErrAuthentication)
	assert.True(t, zeroed)
}

func TestLockContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	ctx := context.Background()

	s1 := New(testOptions(t))
	require.NoError(t, s1.Create(ctx, path, pass("pw")))

	s2 := New(testOptions(t))
	assert.ErrorIs(t, s2.Open(ctx, path, pass("pw")), ErrLocked)
	assert.Equal(t, StateClosed, s2.State())

	err := VerifyPassphrase(ctx, path, pass("pw"), testParams)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, s1.Close())
	require.NoError(t, s2.Open(ctx, path, pass("pw")))
	require.NoError(t, s2.Close())
}

func TestLifecycleErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	ctx := context.Background()
	s := New(testOptions(t))

	assert.ErrorIs(t, s.Save(), ErrNotOpen)
	assert.ErrorIs(t, s.WritePayload([]byte("x")), ErrNotOpen)
	_, err := s.ReadPayload()
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, s.Rekey(pass("x")), ErrNotOpen)
	assert.Empty(t, s.WorkingPath())
	assert.NoError(t, s.Close())

	require.NoError(t, s.Create(ctx, path, pass("pw")))
	assert.ErrorIs(t, s.Create(ctx, path+"2", pass("pw")), ErrAlreadyOpen)
	assert.ErrorIs(t, s.Open(ctx, path, pass("pw")), ErrAlreadyOpen)
	assert.Equal(t, path, s.Path())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Empty(t, s.Path())
}

func TestCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "pw", "payload")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	s := New(testOptions(t))
	s.derive = func(p *secmem.Buffer, salt kdf.Salt, params kdf.Params) (*secmem.Buffer, error) {
		calls++
		return kdf.Derive(p, salt, params)
	}

	assert.ErrorIs(t, s.Open(ctx, path, pass("pw")), context.Canceled)
	assert.ErrorIs(t, s.Create(ctx, path+".new", pass("pw")), context.Canceled)
	assert.Zero(t, calls)
	assert.Equal(t, StateClosed, s.State())

	_, err := os.Stat(path + ".new")
	assert.True(t, os.IsNotExist(err))
}

func TestDirtyDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "pw", "v1")
	opts := testOptions(t)
	ctx := context.Background()

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	t.Run("untouched close does not rewrite", func(t *testing.T) {
		s := New(opts)
		require.NoError(t, s.Open(ctx, path, pass("pw")))
		require.NoError(t, s.Close())

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("MarkDirty forces a save", func(t *testing.T) {
		s := New(opts)
		require.NoError(t, s.Open(ctx, path, pass("pw")))
		s.MarkDirty()
		require.NoError(t, s.Close())

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotEqual(t, before, after, "new nonce expected")
		assert.Equal(t, "v1", readPayload(t, path, "pw"))
	})

	t.Run("direct write to working copy is detected", func(t *testing.T) {
		s := New(opts)
		require.NoError(t, s.Open(ctx, path, pass("pw")))
		require.NoError(t, os.WriteFile(s.WorkingPath(), []byte("v2 written by an engine"), 0600))
		require.NoError(t, s.Close())

		assert.Equal(t, "v2 written by an engine", readPayload(t, path, "pw"))
	})
}

func TestRekey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "old", "payload")
	ctx := context.Background()

	s := New(testOptions(t))
	require.NoError(t, s.Open(ctx, path, pass("old")))
	oldSalt := s.Header().Salt
	require.NoError(t, s.WritePayload([]byte("payload v2")))
	require.NoError(t, s.Rekey(pass("new")))
	assert.NotEqual(t, oldSalt, s.Header().Salt)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, New(testOptions(t)).Open(ctx, path, pass("old")), crypto.ErrAuthentication)
	assert.Equal(t, "payload v2", readPayload(t, path, "new"))
}

func TestRekeyFailureKeepsOldKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "old", "payload")

	s := New(testOptions(t))
	require.NoError(t, s.Open(context.Background(), path, pass("old")))
	oldHeader := s.Header()

	s.rename = func(string, string) error { return errors.New("disk full") }
	assert.Error(t, s.Rekey(pass("new")))
	assert.Equal(t, oldHeader, s.Header())

	s.rename = os.Rename
	require.NoError(t, s.Close())
	assert.Equal(t, "payload", readPayload(t, path, "old"))
}

func TestRekeyKeepsNewKeyWhenDirSyncFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "old", "payload")
	ctx := context.Background()

	log := &recordingLogger{}
	opts := testOptions(t)
	opts.Logger = log
	s := New(opts)
	require.NoError(t, s.Open(ctx, path, pass("old")))
	oldSalt := s.Header().Salt

	s.syncDir = func(string) error { return errors.New("input/output error") }
	require.NoError(t, s.Rekey(pass("new")))
	assert.NotEqual(t, oldSalt, s.Header().Salt)
	require.NotEmpty(t, log.warnings)
	assert.Contains(t, log.warnings[0], "sync dir")

	require.NoError(t, s.Close())
	assert.ErrorIs(t, New(testOptions(t)).Open(ctx, path, pass("old")), crypto.ErrAuthentication)
	assert.Equal(t, "payload", readPayload(t, path, "new"))
}

func TestWithSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	opts := testOptions(t)
	ctx := context.Background()

	var captured *Store
	err := WithNewSession(ctx, path, pass("pw"), opts, func(s *Store) error {
		captured = s
		return s.WritePayload([]byte("scoped"))
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, captured.State())

	boom := errors.New("boom")
	err = WithSession(ctx, path, pass("pw"), opts, func(s *Store) error {
		captured = s
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateClosed, captured.State())

	assert.Panics(t, func() {
		_ = WithSession(ctx, path, pass("pw"), opts, func(s *Store) error {
			captured = s
			panic("fn panicked")
		})
	})
	assert.Equal(t, StateClosed, captured.State())

	assert.Equal(t, "scoped", readPayload(t, path, "pw"))

	err = WithSession(ctx, path, pass("wrong"), opts, func(*Store) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, crypto.ErrAuthentication)
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "pw", "12345")

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, uint8(container.Version), info.Header.Version)
	assert.Equal(t, int64(5), info.PayloadSize())
	assert.False(t, info.Locked)

	s := New(testOptions(t))
	require.NoError(t, s.Open(context.Background(), path, pass("pw")))
	info, err = Inspect(path)
	require.NoError(t, err)
	assert.True(t, info.Locked)
	require.NoError(t, s.Close())

	_, err = Inspect(filepath.Join(t.TempDir(), "nope.db"))
	assert.ErrorIs(t, err, ErrNotFound)

	junk := filepath.Join(t.TempDir(), "junk.db")
	require.NoError(t, os.WriteFile(junk, []byte("SQLite format 3\x00 and then some more bytes"), 0600))
	_, err = Inspect(junk)
	assert.ErrorIs(t, err, container.ErrFormat)
}

func TestVerifyPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "pw", "payload")
	ctx := context.Background()

	assert.NoError(t, VerifyPassphrase(ctx, path, pass("pw"), testParams))
	assert.ErrorIs(t, VerifyPassphrase(ctx, path, pass("bad"), testParams), crypto.ErrAuthentication)

	_, err := os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestAuditTrail(t *testing.T) {
	rec := &recordingAudit{}
	opts := testOptions(t)
	opts.Audit = rec
	path := filepath.Join(t.TempDir(), "a.db")
	ctx := context.Background()

	s := New(opts)
	require.NoError(t, s.Create(ctx, path, pass("pw")))
	require.NoError(t, s.Close())
	assert.Error(t, s.Open(ctx, path, pass("bad")))

	require.Equal(t, []string{"save", "create", "close", "open"}, rec.actions)
	assert.Equal(t, []bool{true, true, true, false}, rec.success)
	assert.Equal(t, "wrong passphrase or corrupted file", rec.meta[3]["error"])
}

func TestAbortDiscardsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	createWith(t, path, "pw", "kept")

	s := New(testOptions(t))
	require.NoError(t, s.Open(context.Background(), path, pass("pw")))
	work := s.WorkingPath()
	require.NoError(t, s.WritePayload([]byte("lost")))

	require.NoError(t, s.Abort())
	require.NoError(t, s.Abort())
	assert.Equal(t, StateClosed, s.State())

	_, err := os.Stat(work)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, "kept", readPayload(t, path, "pw"))
}

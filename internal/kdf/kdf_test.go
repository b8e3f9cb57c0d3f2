package kdf

import (
	"errors"
	"testing"

	"github.com/illarion/fincrypt/internal/secmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Params{MemoryKiB: 1024, Time: 1, Parallelism: 1, KeyLen: KeySize}

var testSalt = Salt{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, uint32(65536), p.MemoryKiB)
	assert.Equal(t, uint32(3), p.Time)
	assert.Equal(t, uint8(4), p.Parallelism)
	assert.Equal(t, uint32(32), p.KeyLen)
	assert.NoError(t, p.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"zero time", Params{MemoryKiB: 1024, Time: 0, Parallelism: 1, KeyLen: 32}},
		{"zero parallelism", Params{MemoryKiB: 1024, Time: 1, Parallelism: 0, KeyLen: 32}},
		{"memory below lanes", Params{MemoryKiB: 16, Time: 1, Parallelism: 4, KeyLen: 32}},
		{"memory too large", Params{MemoryKiB: maxMemoryKiB + 1, Time: 1, Parallelism: 1, KeyLen: 32}},
		{"short key", Params{MemoryKiB: 1024, Time: 1, Parallelism: 1, KeyLen: 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			assert.True(t, errors.Is(err, ErrKeyDerivation), "got %v", err)
		})
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	k1, err := Derive(secmem.NewPassphrase("test_password"), testSalt, testParams)
	require.NoError(t, err)
	defer k1.Destroy()

	k2, err := Derive(secmem.NewPassphrase("test_password"), testSalt, testParams)
	require.NoError(t, err)
	defer k2.Destroy()

	assert.Equal(t, KeySize, k1.Len())
	assert.True(t, k1.Equal(k2))
}

func TestDeriveDiffers(t *testing.T) {
	base, err := Derive(secmem.NewPassphrase("password1"), testSalt, testParams)
	require.NoError(t, err)
	defer base.Destroy()

	otherPass, err := Derive(secmem.NewPassphrase("password2"), testSalt, testParams)
	require.NoError(t, err)
	defer otherPass.Destroy()

	otherSalt := testSalt
	otherSalt[0] ^= 0xFF
	saltKey, err := Derive(secmem.NewPassphrase("password1"), otherSalt, testParams)
	require.NoError(t, err)
	defer saltKey.Destroy()

	assert.False(t, base.Equal(otherPass))
	assert.False(t, base.Equal(saltKey))
}

func TestDeriveConsumesPassphrase(t *testing.T) {
	pass := secmem.NewPassphrase("consumed")
	key, err := Derive(pass, testSalt, testParams)
	require.NoError(t, err)
	key.Destroy()
	assert.False(t, pass.IsAlive())

	pass = secmem.NewPassphrase("consumed-on-error")
	_, err = Derive(pass, testSalt, Params{})
	require.ErrorIs(t, err, ErrKeyDerivation)
	assert.False(t, pass.IsAlive())
}

func TestDeriveRejectsEmptyPassphrase(t *testing.T) {
	_, err := Derive(secmem.NewPassphrase(""), testSalt, testParams)
	assert.ErrorIs(t, err, ErrKeyDerivation)

	_, err = Derive(nil, testSalt, testParams)
	assert.ErrorIs(t, err, ErrKeyDerivation)
}

func TestVerify(t *testing.T) {
	key, err := Derive(secmem.NewPassphrase("correct-horse"), testSalt, testParams)
	require.NoError(t, err)
	defer key.Destroy()

	ok, err := Verify(secmem.NewPassphrase("correct-horse"), testSalt, testParams, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(secmem.NewPassphrase("wrong"), testSalt, testParams, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewSalt(t *testing.T) {
	s1, err := NewSalt()
	require.NoError(t, err)
	s2, err := NewSalt()
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}

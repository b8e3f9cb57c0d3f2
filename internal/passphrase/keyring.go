package passphrase

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/illarion/fincrypt/internal/secmem"
	"github.com/zalando/go-keyring"
)

const serviceName = "fincrypt"

var ErrNotInKeyring = errors.New("no passphrase stored in keyring")

var containerNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/illarion/fincrypt/container"))

// ContainerID is the stable keyring account name for the container at path.
func ContainerID(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	return uuid.NewSHA1(containerNamespace, []byte(abs)).String(), nil
}

// SaveToKeyring stores the passphrase for path in the OS keyring. The
// passphrase is not consumed.
func SaveToKeyring(path string, passphrase *secmem.Buffer) error {
	id, err := ContainerID(path)
	if err != nil {
		return err
	}
	if err := keyring.Set(serviceName, id, string(passphrase.Bytes())); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return nil
}

// FromKeyring retrieves the passphrase for path.
func FromKeyring(path string) (*secmem.Buffer, error) {
	id, err := ContainerID(path)
	if err != nil {
		return nil, err
	}
	password, err := keyring.Get(serviceName, id)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotInKeyring
		}
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	return secmem.NewPassphrase(password), nil
}

// DeleteFromKeyring removes the passphrase for path.
func DeleteFromKeyring(path string) error {
	id, err := ContainerID(path)
	if err != nil {
		return err
	}
	if err := keyring.Delete(serviceName, id); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotInKeyring
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// InKeyring checks if a passphrase for path is stored in the keyring.
func InKeyring(path string) bool {
	id, err := ContainerID(path)
	if err != nil {
		return false
	}
	_, err = keyring.Get(serviceName, id)
	return err == nil
}

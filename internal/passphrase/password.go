package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/illarion/fincrypt/internal/secmem"
	"golang.org/x/term"
)

const (
	// EnvVar holds a passphrase for non-interactive use.
	EnvVar = "FINCRYPT_PASSPHRASE"
	// NewEnvVar holds the replacement passphrase for a non-interactive rekey.
	NewEnvVar = "FINCRYPT_NEW_PASSPHRASE"
)

var (
	ErrEmpty    = errors.New("passphrase must not be empty")
	ErrMismatch = errors.New("passphrases do not match")
)

// Prompter reads passphrases from a terminal without echo.
type Prompter struct {
	In  int
	Out io.Writer

	read func(fd int) ([]byte, error)
}

// NewPrompter prompts on stderr and reads from stdin.
func NewPrompter() *Prompter {
	return &Prompter{In: int(os.Stdin.Fd()), Out: os.Stderr, read: term.ReadPassword}
}

// Prompt reads one passphrase.
func (p *Prompter) Prompt(prompt string) (*secmem.Buffer, error) {
	fmt.Fprint(p.Out, prompt)

	password, err := p.read(p.In)
	fmt.Fprintln(p.Out) // New line after password

	if err != nil {
		secmem.Wipe(password)
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(password) == 0 {
		return nil, ErrEmpty
	}

	// NewBufferFromBytes wipes password
	return secmem.NewBufferFromBytes(password), nil
}

// PromptConfirm reads a new passphrase twice and ensures they match.
func (p *Prompter) PromptConfirm() (*secmem.Buffer, error) {
	first, err := p.Prompt("Enter new passphrase: ")
	if err != nil {
		return nil, err
	}

	second, err := p.Prompt("Confirm passphrase: ")
	if err != nil {
		first.Destroy()
		return nil, err
	}
	defer second.Destroy()

	if !first.Equal(second) {
		first.Destroy()
		return nil, ErrMismatch
	}
	return first, nil
}

// FromEnv returns the passphrase in FINCRYPT_PASSPHRASE, or nil when unset
// or empty.
func FromEnv() *secmem.Buffer {
	return fromEnv(EnvVar)
}

func fromEnv(name string) *secmem.Buffer {
	password := os.Getenv(name)
	if password == "" {
		return nil
	}
	return secmem.NewPassphrase(password)
}

package passphrase

import (
	"github.com/illarion/fincrypt/internal/secmem"
)

// Source identifies where a passphrase came from.
type Source int

const (
	SourceEnv Source = iota + 1
	SourceKeyring
	SourcePrompt
)

func (s Source) String() string {
	switch s {
	case SourceEnv:
		return "environment"
	case SourceKeyring:
		return "keyring"
	case SourcePrompt:
		return "prompt"
	}
	return "unknown"
}

// Resolver picks the first available passphrase source.
type Resolver struct {
	UseKeyring bool
	Prompter   *Prompter
}

func NewResolver(useKeyring bool) *Resolver {
	return &Resolver{UseKeyring: useKeyring, Prompter: NewPrompter()}
}

// Resolve returns the passphrase for an existing container at path.
func (r *Resolver) Resolve(path string) (*secmem.Buffer, Source, error) {
	if p := FromEnv(); p != nil {
		return p, SourceEnv, nil
	}

	// a missing entry or an unavailable keyring backend falls through to
	// the prompt
	if r.UseKeyring {
		if p, err := FromKeyring(path); err == nil {
			return p, SourceKeyring, nil
		}
	}

	p, err := r.Prompter.Prompt("Enter passphrase: ")
	if err != nil {
		return nil, 0, err
	}
	return p, SourcePrompt, nil
}

// ResolveNew returns a passphrase for a new container or a rekey: the
// environment variable if set, otherwise a confirmed prompt. The keyring is
// never consulted.
func (r *Resolver) ResolveNew() (*secmem.Buffer, Source, error) {
	if p := FromEnv(); p != nil {
		return p, SourceEnv, nil
	}

	p, err := r.Prompter.PromptConfirm()
	if err != nil {
		return nil, 0, err
	}
	return p, SourcePrompt, nil
}

// ResolveReplacement returns the new passphrase for a rekey: FINCRYPT_NEW_PASSPHRASE
// if set, otherwise a confirmed prompt. FINCRYPT_PASSPHRASE is ignored since
// it holds the current passphrase.
func (r *Resolver) ResolveReplacement() (*secmem.Buffer, Source, error) {
	if p := fromEnv(NewEnvVar); p != nil {
		return p, SourceEnv, nil
	}

	p, err := r.Prompter.PromptConfirm()
	if err != nil {
		return nil, 0, err
	}
	return p, SourcePrompt, nil
}

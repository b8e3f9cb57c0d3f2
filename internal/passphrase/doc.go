// Package passphrase acquires container passphrases.
//
// Sources, in the order Resolve tries them:
//   - the FINCRYPT_PASSPHRASE environment variable
//   - the OS keyring, keyed by a container ID derived from the absolute
//     container path
//   - an interactive terminal prompt without echo
//
// Every passphrase is returned in a *secmem.Buffer. The environment and the
// keyring hand secrets over as Go strings, which cannot be wiped; the
// terminal prompt does not have that limitation.
package passphrase

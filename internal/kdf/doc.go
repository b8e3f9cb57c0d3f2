// Package kdf derives container keys from passphrases with Argon2id.
//
// Defaults are 64 MiB of memory, 3 passes, 4 lanes and a 32-byte output.
// Derivation is deliberately slow and is not interruptible; callers that
// need a responsive UI should run it on another goroutine.
package kdf

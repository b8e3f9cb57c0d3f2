// Package crypto provides the authenticated encryption used for containers.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived from the passphrase via Argon2id (see package kdf)
//   - 12-byte random nonce per encryption operation
//   - 16-byte authentication tag appended to the ciphertext
//
// There is exactly one construction. Every failure to open a ciphertext,
// whether the key is wrong or the bytes were tampered with, is reported as
// ErrAuthentication so callers cannot tell the two apart.
//
// Memory safety:
//   - Encrypt wipes the plaintext it was given
//   - Decrypt returns plaintext in a secmem.Buffer; callers must Destroy it
//   - the AES key schedule built by crypto/aes lives on the Go heap for the
//     duration of one call and cannot be wiped; for AES-256 its first two
//     round keys equal the key itself, so a copy of the key may persist in
//     freed heap memory until it is reused
package crypto

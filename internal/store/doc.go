// Package store manages the lifecycle of an encrypted container file.
//
// A Store moves through three states:
//   - Closed: no key, no working copy, no lock
//   - Open: the container is locked, the key is derived and a decrypted
//     working copy lives in a private session directory
//   - Closing: the final save and teardown are running
//
// Create and Open take the advisory lock `<path>.lock` before touching the
// container. Save encrypts the working copy under a fresh nonce and replaces
// the container atomically (temp file, fsync, rename, fsync directory), so
// the previous container survives any failed save. Close saves pending
// changes, securely deletes the working copy, wipes the key and releases the
// lock, running every step even when one of them fails.
//
// Payload bytes are opaque here; a storage engine opens WorkingPath() as an
// ordinary file and must be closed before the Store is.
package store

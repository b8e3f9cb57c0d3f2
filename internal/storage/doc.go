// Package storage is a key/value record engine on top of BBolt.
//
// The database file is the decrypted working copy of an encrypted
// container; storage itself knows nothing about encryption. Close the
// Storage before closing the owning store session so the final save sees
// a consistent file.
//
// Database structure uses three buckets:
//   - config: format version and timestamps
//   - records: record values by key
//   - index: record size, hash and modification time, for ls and status
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage

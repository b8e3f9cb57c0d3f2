package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"time"
	"unicode/utf8"
)

// RecordEntry describes a stored record without its value.
type RecordEntry struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Hash     string    `json:"hash"` // Content hash for change detection
}

// NewRecordEntry builds the index entry for value.
func NewRecordEntry(key string, value []byte) RecordEntry {
	return RecordEntry{
		Key:      key,
		Size:     int64(len(value)),
		Modified: time.Now().UTC(),
		Hash:     HashValue(value),
	}
}

// HashValue returns the hex SHA-256 of value.
func HashValue(value []byte) string {
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:])
}

// IsText reports whether data looks like text: valid UTF-8 without NUL bytes.
func IsText(data []byte) bool {
	return utf8.Valid(data) && !bytes.Contains(data, []byte{0})
}

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket  = []byte("config")  // Format version, timestamps
	RecordsBucket = []byte("records") // Record values
	IndexBucket   = []byte("index")   // Record sizes, hashes, mtimes
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
)

const (
	formatVersion = "1"
	openTimeout   = time.Second
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrInvalidKey     = errors.New("invalid record key")
	ErrNotInitialized = errors.New("database not initialized")
)

// Storage provides BBolt-based record storage
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a database at path
func Open(path string) (*Storage, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

func openDB(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
}

// OpenInitialized opens the database at path and creates the bucket
// structure if it is missing. The empty working copy of a fresh container is
// a zero-length file, which BBolt initializes on open.
func OpenInitialized(path string) (*Storage, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}

	initialized, err := s.IsInitialized()
	if err == nil && !initialized {
		err = s.Initialize()
	}
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure for a new database
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, RecordsBucket, IndexBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if err := config.Put(ConfigVersion, []byte(formatVersion)); err != nil {
			return err
		}

		created, _ := time.Now().UTC().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

func touch(tx *bolt.Tx) error {
	modified, _ := time.Now().UTC().MarshalBinary()
	return tx.Bucket(ConfigBucket).Put(ConfigModified, modified)
}

func getTime(key []byte) func(*Storage) (time.Time, error) {
	return func(s *Storage) (time.Time, error) {
		var t time.Time
		err := s.db.View(func(tx *bolt.Tx) error {
			config := tx.Bucket(ConfigBucket)
			if config == nil {
				return ErrNotInitialized
			}
			data := config.Get(key)
			if data == nil {
				return fmt.Errorf("%s time not found", key)
			}
			return t.UnmarshalBinary(data)
		})
		return t, err
	}
}

// GetCreated retrieves the creation timestamp
func (s *Storage) GetCreated() (time.Time, error) {
	return getTime(ConfigCreated)(s)
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	return getTime(ConfigModified)(s)
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if len(key) > bolt.MaxKeySize {
		return fmt.Errorf("%w: key longer than %d bytes", ErrInvalidKey, bolt.MaxKeySize)
	}
	return nil
}

func buckets(tx *bolt.Tx) (records, index *bolt.Bucket, err error) {
	records = tx.Bucket(RecordsBucket)
	index = tx.Bucket(IndexBucket)
	if records == nil || index == nil {
		return nil, nil, ErrNotInitialized
	}
	return records, index, nil
}

// Put stores value under key and updates the index
func (s *Storage) Put(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		records, index, err := buckets(tx)
		if err != nil {
			return err
		}

		entry, err := json.Marshal(NewRecordEntry(key, value))
		if err != nil {
			return err
		}
		if err := records.Put([]byte(key), value); err != nil {
			return fmt.Errorf("failed to store record: %w", err)
		}
		if err := index.Put([]byte(key), entry); err != nil {
			return fmt.Errorf("failed to update index: %w", err)
		}
		return touch(tx)
	})
}

// Get retrieves the value stored under key
func (s *Storage) Get(key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		records, _, err := buckets(tx)
		if err != nil {
			return err
		}
		v := records.Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, key)
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// Delete removes key from records and index
func (s *Storage) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		records, index, err := buckets(tx)
		if err != nil {
			return err
		}
		if records.Get([]byte(key)) == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, key)
		}
		if err := records.Delete([]byte(key)); err != nil {
			return err
		}
		if err := index.Delete([]byte(key)); err != nil {
			return err
		}
		return touch(tx)
	})
}

// Entry returns the index entry for key
func (s *Storage) Entry(key string) (*RecordEntry, error) {
	var entry *RecordEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		_, index, err := buckets(tx)
		if err != nil {
			return err
		}
		data := index.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, key)
		}
		entry = &RecordEntry{}
		return json.Unmarshal(data, entry)
	})
	return entry, err
}

// List returns all index entries ordered by key
func (s *Storage) List() ([]RecordEntry, error) {
	var entries []RecordEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		_, index, err := buckets(tx)
		if err != nil {
			return err
		}
		return index.ForEach(func(k, v []byte) error {
			var entry RecordEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt index entry %q: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after deleting records to reclaim space before the
// container is re-encrypted.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := openDB(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// bbolt has no open handle now; rename is atomic on the same filesystem
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Remove(tmpPath)
		if s.db, err = openDB(srcPath); err != nil {
			return fmt.Errorf("failed to reopen database: %w", err)
		}
		return fmt.Errorf("failed to replace database: %w", err)
	}

	s.db, err = openDB(srcPath)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	return nil
}

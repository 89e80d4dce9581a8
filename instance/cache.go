package instance

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDirectory = []byte("directory")
	keyData         = []byte("data")
	keyFetchedAt    = []byte("fetched_at")
)

// Cache persists the fetched instance directory so restarts within the
// TTL window do not hit the directory endpoint again.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration
}

// OpenCache opens (creating if needed) the on-disk cache at path.
func OpenCache(path string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open instance cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDirectory)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached directory document if it is still fresh.
func (c *Cache) Get() ([]byte, bool) {
	var data []byte
	var fresh bool
	c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDirectory)
		raw := b.Get(keyData)
		stamp := b.Get(keyFetchedAt)
		if raw == nil || stamp == nil {
			return nil
		}
		fetchedAt, err := time.Parse(time.RFC3339, string(stamp))
		if err != nil {
			return nil
		}
		if time.Since(fetchedAt) > c.ttl {
			return nil
		}
		data = make([]byte, len(raw))
		copy(data, raw)
		fresh = true
		return nil
	})
	return data, fresh
}

// Put stores the directory document with the current timestamp.
func (c *Cache) Put(data []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDirectory)
		if err := b.Put(keyData, data); err != nil {
			return err
		}
		return b.Put(keyFetchedAt, []byte(time.Now().Format(time.RFC3339)))
	})
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Package cache provides key-value storage with expiration for computed
// analysis results. Values are msgpack-encoded blobs in a SQLite table.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// Cache provides simple key-value storage with expiration.
type Cache struct {
	db *sql.DB
}

// New creates a cache instance and ensures its table exists.
func New(db *sql.DB) (*Cache, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Set stores a value under a key for the given TTL.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}

	expiresAt := time.Now().Add(ttl).Unix()
	_, err = c.db.Exec(`
		INSERT INTO cache (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, key, data, expiresAt)
	return err
}

// Get retrieves a value into dest. Returns sql.ErrNoRows when the key is
// absent or expired; expired rows are deleted lazily on read.
func (c *Cache) Get(key string, dest interface{}) error {
	var data []byte
	var expiresAt int64
	err := c.db.QueryRow("SELECT value, expires_at FROM cache WHERE key = ?", key).Scan(&data, &expiresAt)
	if err != nil {
		return err
	}

	if time.Now().Unix() >= expiresAt {
		_, _ = c.db.Exec("DELETE FROM cache WHERE key = ?", key)
		return sql.ErrNoRows
	}

	if err := msgpack.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode cache value for %s: %w", key, err)
	}
	return nil
}

// GetExpiresAt returns the expiration timestamp for a key.
// Returns 0 if key doesn't exist.
// Does not check if expired - callers should compare with time.Now().Unix().
func (c *Cache) GetExpiresAt(key string) int64 {
	var expiresAt int64
	err := c.db.QueryRow("SELECT expires_at FROM cache WHERE key = ?", key).Scan(&expiresAt)
	if err != nil {
		return 0
	}
	return expiresAt
}

// Delete removes a cache entry.
func (c *Cache) Delete(key string) error {
	_, err := c.db.Exec("DELETE FROM cache WHERE key = ?", key)
	return err
}

// DeleteByPrefix removes all cache entries matching a prefix.
func (c *Cache) DeleteByPrefix(prefix string) error {
	_, err := c.db.Exec("DELETE FROM cache WHERE key LIKE ?", prefix+"%")
	return err
}

// CleanupExpired removes every expired entry and reports how many went away.
func (c *Cache) CleanupExpired() (int64, error) {
	result, err := c.db.Exec("DELETE FROM cache WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

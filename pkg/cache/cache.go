// Package cache implements a content-addressed, TTL-bound result
// cache backed by SQLite. Keys derive deterministically from the
// query type and parameters, order-independent over the parameters.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	key        TEXT PRIMARY KEY,
	query_type TEXT NOT NULL,
	value      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
`

// Stats reports cache contents and hit/miss counters.
type Stats struct {
	Entries        int `json:"entries"`
	Hits           int `json:"hits"`
	Misses         int `json:"misses"`
	ExpiredRemoved int `json:"expired_removed"`
}

// Cache is a TTL-bound key-value store. Expiry is lazy: Get treats
// an expired entry as absent and evicts it; ClearExpired is the
// explicit maintenance operation.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	hits    int
	misses  int
	expired int
}

// Open creates or opens a cache database at path.
func Open(path string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be > 0, got %v", ttl)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Key derives the stable cache key for a query. Parameters are
// hashed in sorted order so insertion order never matters; the
// digest is truncated to 16 hex chars, which is plenty at this
// system's scale.
func Key(queryType string, params map[string]string) string {
	h := sha256.New()
	h.Write([]byte(queryType))

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte{0})
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(params[name]))
	}

	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Get returns the cached value for a query, or ok=false when absent
// or expired. Expired entries are evicted as a side effect.
func (c *Cache) Get(queryType string, params map[string]string) (string, bool, error) {
	key := Key(queryType, params)

	var value string
	var createdAt int64
	err := c.db.QueryRow(`SELECT value, created_at FROM entries WHERE key = ?`, key).
		Scan(&value, &createdAt)
	if err == sql.ErrNoRows {
		c.count(func() { c.misses++ })
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache read failed: %w", err)
	}

	if c.isExpired(createdAt) {
		if _, err := c.db.Exec(`DELETE FROM entries WHERE key = ?`, key); err != nil {
			return "", false, fmt.Errorf("cache eviction failed: %w", err)
		}
		c.count(func() { c.misses++; c.expired++ })
		return "", false, nil
	}

	c.count(func() { c.hits++ })
	return value, true, nil
}

// Set stores a value, replacing any previous entry for the same
// query.
func (c *Cache) Set(queryType string, params map[string]string, value string) error {
	key := Key(queryType, params)
	_, err := c.db.Exec(
		`INSERT INTO entries (key, query_type, value, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		key, queryType, value, c.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// ClearExpired removes all expired entries and returns the count
// removed.
func (c *Cache) ClearExpired() (int, error) {
	cutoff := c.now().Add(-c.ttl).Unix()
	res, err := c.db.Exec(`DELETE FROM entries WHERE created_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache sweep failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	c.count(func() { c.expired += int(n) })
	return int(n), nil
}

// GetStats returns entry count and hit/miss counters.
func (c *Cache) GetStats() (Stats, error) {
	var entries int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&entries); err != nil {
		return Stats{}, fmt.Errorf("cache stats failed: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:        entries,
		Hits:           c.hits,
		Misses:         c.misses,
		ExpiredRemoved: c.expired,
	}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) isExpired(createdAtUnix int64) bool {
	return c.now().Sub(time.Unix(createdAtUnix, 0)) > c.ttl
}

func (c *Cache) count(fn func()) {
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}

// Package cache stores checker results keyed by file content, checker name
// and checker configuration, so unchanged files are not re-checked.
//
// Entries live in an embedded BadgerDB. Every entry is written with a badger
// TTL and also carries its creation time, which is checked on read.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ludo-technologies/pyqc/domain"
)

// keyVersion prefixes every key; bump it when Entry's encoding changes
const keyVersion = "v1/"

// Entry is one cached (file content, checker) result
type Entry struct {
	CreatedAt time.Time      `json:"created_at"`
	Issues    []domain.Issue `json:"issues"`
}

// Expired reports whether the entry is older than ttl at now
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(e.CreatedAt) > ttl
}

// Stats describes the cache contents
type Stats struct {
	Entries   int   `json:"entries"`
	Expired   int   `json:"expired"`
	Corrupt   int   `json:"corrupt"`
	SizeBytes int64 `json:"size_bytes"`
	Enabled   bool  `json:"enabled"`
}

// Store is the result cache used by the orchestrator
type Store interface {
	// Get returns the entry for key. Corrupt or expired entries are misses.
	Get(key string) (Entry, bool)
	// Put records issues under key
	Put(key string, issues []domain.Issue) error
	// Sweep deletes expired and corrupt entries, returning how many went
	Sweep(now time.Time) (int, error)
	// Clear removes every entry
	Clear() error
	Stats() (Stats, error)
	Close() error
}

// Key derives the cache key for a file's content checked by one checker
// configured as fingerprint. Equal inputs give equal keys.
func Key(content []byte, checker, fingerprint string) string {
	h := sha256.New()
	h.Write([]byte(checker))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write(content)
	return keyVersion + hex.EncodeToString(h.Sum(nil))
}

// Noop is the store used when caching is disabled or unavailable
type Noop struct{}

func (Noop) Get(string) (Entry, bool) { return Entry{}, false }
func (Noop) Put(string, []domain.Issue) error { return nil }
func (Noop) Sweep(time.Time) (int, error) { return 0, nil }
func (Noop) Clear() error { return nil }
func (Noop) Stats() (Stats, error) { return Stats{}, nil }
func (Noop) Close() error { return nil }

package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/ludo-technologies/pyqc/domain"
)

// gcDiscardRatio is the garbage ratio above which Sweep rewrites a value log file
const gcDiscardRatio = 0.5

// Badger is the BadgerDB-backed store. Safe for concurrent use.
type Badger struct {
	db       *badger.DB
	ttl      time.Duration
	logger   *zap.Logger
	inMemory bool
	now      func() time.Time
}

// badgerLogger adapts zap to BadgerDB's Logger interface
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Badger is chatty at info level; its info lines go to debug.
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Open opens (creating if needed) the store under dir/db
func Open(dir string, ttl time.Duration, logger *zap.Logger) (*Badger, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	path := filepath.Join(dir, "db")
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", path, err)
	}
	return open(badger.DefaultOptions(path).WithSyncWrites(false), ttl, logger, false)
}

// OpenInMemory opens a store that keeps nothing on disk
func OpenInMemory(ttl time.Duration, logger *zap.Logger) (*Badger, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), ttl, logger, true)
}

func open(opts badger.Options, ttl time.Duration, logger *zap.Logger, inMemory bool) (*Badger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{sugar: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	return &Badger{db: db, ttl: ttl, logger: logger, inMemory: inMemory, now: time.Now}, nil
}

// OpenOrNoop opens the on-disk store, falling back to Noop with a warning
// when the database is unavailable, typically locked by another process.
func OpenOrNoop(dir string, ttl time.Duration, logger *zap.Logger) Store {
	store, err := Open(dir, ttl, logger)
	if err != nil {
		if logger != nil {
			logger.Warn("cache unavailable, continuing without it", zap.String("dir", dir), zap.Error(err))
		}
		return Noop{}
	}
	return store
}

// Get reads the entry for key
func (b *Badger) Get(key string) (Entry, bool) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false
	}
	if err != nil {
		b.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		b.logger.Warn("dropping cache entry",
			zap.Error(domain.NewCacheCorruptionError(key, err)))
		b.delete(key)
		return Entry{}, false
	}
	if entry.Expired(b.now(), b.ttl) {
		b.delete(key)
		return Entry{}, false
	}
	return entry, true
}

// Put stores issues under key with the configured TTL
func (b *Badger) Put(key string, issues []domain.Issue) error {
	if issues == nil {
		issues = []domain.Issue{}
	}
	raw, err := json.Marshal(Entry{CreatedAt: b.now(), Issues: issues})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), raw)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		return txn.SetEntry(e)
	})
}

func (b *Badger) delete(key string) {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		b.logger.Debug("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// scan visits every entry; decoded is nil for corrupt values
func (b *Badger) scan(visit func(key []byte, decoded *Entry)) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyVersion)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var entry Entry
			if json.Unmarshal(raw, &entry) != nil {
				visit(item.KeyCopy(nil), nil)
				continue
			}
			visit(item.KeyCopy(nil), &entry)
		}
		return nil
	})
}

// Sweep deletes expired and corrupt entries, then compacts the value log
func (b *Badger) Sweep(now time.Time) (int, error) {
	var stale [][]byte
	err := b.scan(func(key []byte, e *Entry) {
		if e == nil || e.Expired(now, b.ttl) {
			stale = append(stale, key)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("scan cache: %w", err)
	}

	if len(stale) > 0 {
		wb := b.db.NewWriteBatch()
		for _, k := range stale {
			if err := wb.Delete(k); err != nil {
				wb.Cancel()
				return 0, fmt.Errorf("delete cache entry: %w", err)
			}
		}
		if err := wb.Flush(); err != nil {
			return 0, fmt.Errorf("flush cache deletes: %w", err)
		}
	}

	b.gc()
	return len(stale), nil
}

// gc runs value log GC until there is nothing left to rewrite
func (b *Badger) gc() {
	if b.inMemory {
		return
	}
	for {
		err := b.db.RunValueLogGC(gcDiscardRatio)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			b.logger.Debug("value log GC stopped", zap.Error(err))
		}
		return
	}
}

// Clear drops every entry
func (b *Badger) Clear() error {
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Stats counts entries and reports on-disk size
func (b *Badger) Stats() (Stats, error) {
	stats := Stats{Enabled: true}
	now := b.now()
	err := b.scan(func(_ []byte, e *Entry) {
		switch {
		case e == nil:
			stats.Corrupt++
		case e.Expired(now, b.ttl):
			stats.Expired++
		default:
			stats.Entries++
		}
	})
	if err != nil {
		return stats, fmt.Errorf("scan cache: %w", err)
	}
	lsm, vlog := b.db.Size()
	stats.SizeBytes = lsm + vlog
	return stats, nil
}

// Close releases the database and its directory lock
func (b *Badger) Close() error {
	return b.db.Close()
}


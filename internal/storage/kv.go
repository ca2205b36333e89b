package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrKeyNotFound = errors.New("storage: key not found")
	ErrClosed      = errors.New("storage: closed")
)

// KV is the embedded key-value store behind BadgerStoreFactory.
// Implementations must be safe for concurrent use.
type KV interface {
	// Get returns ErrKeyNotFound when key is absent.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Update passes the current value of key (nil when absent) to fn and
	// stores the result in the same transaction. If fn fails nothing is
	// written.
	Update(ctx context.Context, key []byte, fn func(old []byte) ([]byte, error)) error

	// Scan calls fn for every key with prefix until fn returns false.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	Close() error
}

// BadgerConfig configures a Badger database.
type BadgerConfig struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir string
	// InMemory keeps everything in RAM.
	InMemory bool
	// SyncWrites fsyncs every commit. Sequence numbers must survive a
	// crash, so this defaults to true.
	SyncWrites bool
	// GCInterval is the period of value log GC (default: 10m).
	GCInterval time.Duration
	// GCDiscardRatio is passed to RunValueLogGC (default: 0.5).
	GCDiscardRatio float64
	// ValueLogFileSize caps one value log file (default: 16MB). Session
	// records are small, so the Badger default of 1GB is wasted space.
	ValueLogFileSize int64
}

// DefaultBadgerConfig returns the defaults for a database in dir.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:              dir,
		SyncWrites:       true,
		GCInterval:       10 * time.Minute,
		GCDiscardRatio:   0.5,
		ValueLogFileSize: 16 << 20,
	}
}

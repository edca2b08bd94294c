// =============================================================================
// pkg/interfaces/interfaces.go - Core Interfaces
// =============================================================================
//
// This package defines the interfaces the chainstore components are wired
// through. By coding to interfaces, higher layers (block store, predecessor
// index, action log) do not care which indexed-store backend is underneath:
//
//   1. TESTABILITY: the memory backend runs the full test suite without cgo
//   2. FLEXIBILITY: RocksDB and MDBX backends are interchangeable
//   3. SEPARATION OF CONCERNS: record bytes vs structured index records
//
// =============================================================================

package interfaces

import "time"

// =============================================================================
// Logger Interface
// =============================================================================

// Logger is the printf-style logging interface used across the store.
type Logger interface {
	// Info logs an informational message to the log file.
	Info(format string, args ...interface{})

	// Error logs an error message to both the error file and log file.
	Error(format string, args ...interface{})

	// Separator logs a visual separator line.
	Separator()

	// WithScope returns a child logger that prefixes messages with scope.
	WithScope(scope string) Logger

	// Sync forces a flush of buffered log data.
	Sync()

	// Close closes the logger's files.
	Close()
}

// =============================================================================
// Iterator Interface
// =============================================================================

// Iterator traverses an ordered, bounded key range of one column family.
// The sequence is lazy and restartable: SeekToFirst rewinds to the start of
// the range.
//
// USAGE PATTERN:
//
//	iter := store.NewIterator(cf.Blocks, start, limit)
//	defer iter.Close()
//
//	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
//	    key, value := iter.Key(), iter.Value()
//	}
//	if err := iter.Error(); err != nil {
//	    // handle error
//	}
type Iterator interface {
	// SeekToFirst positions the iterator at the first key of its range.
	SeekToFirst()

	// Valid returns true if positioned at a key-value pair inside the range.
	Valid() bool

	// Next advances the iterator.
	Next()

	// Key returns the key at the current position. Valid until Next.
	Key() []byte

	// Value returns the value at the current position. Valid until Next.
	Value() []byte

	// Error returns any error encountered during iteration.
	Error() error

	// Close releases resources associated with the iterator.
	Close()
}

// =============================================================================
// IndexedStore Interface
// =============================================================================

// Batch is an ordered set of upserts applied atomically by
// IndexedStore.Write: all entries become visible together or none do.
type Batch struct {
	entries []BatchEntry
}

// BatchEntry is one (column family, key, value) upsert.
type BatchEntry struct {
	CF    string
	Key   []byte
	Value []byte
}

// Put appends an upsert to the batch.
func (b *Batch) Put(cfName string, key, value []byte) {
	b.entries = append(b.entries, BatchEntry{CF: cfName, Key: key, Value: value})
}

// Len returns the number of entries in the batch.
func (b *Batch) Len() int { return len(b.entries) }

// Entries returns the accumulated entries in insertion order.
func (b *Batch) Entries() []BatchEntry { return b.entries }

// Reset empties the batch for reuse.
func (b *Batch) Reset() { b.entries = b.entries[:0] }

// IndexedStore is the sorted transactional KV substrate holding the small
// structured records: metadata, locators, index entries.
//
// Readers observe consistent snapshots; a partially applied batch is never
// visible. Concurrent Get/NewIterator calls are safe alongside one writer.
type IndexedStore interface {
	// Get reads the value for key in the named column family. Absence is
	// reported through found, not through err.
	Get(cfName string, key []byte) (value []byte, found bool, err error)

	// NewIterator returns an iterator over [start, limit) of the named
	// column family. A nil limit means "to the end"; a nil start means
	// "from the beginning".
	NewIterator(cfName string, start, limit []byte) Iterator

	// Write applies the batch atomically and durably. On error nothing is
	// applied and the error wraps types.ErrIOFailure.
	Write(batch *Batch) error

	// Flush forces memtable/page contents to disk.
	Flush() error

	// Compact runs a manual compaction of every column family. Safe to run
	// concurrently with readers and the writer.
	Compact() time.Duration

	// Path returns the filesystem path of the store.
	Path() string

	// Close releases all resources.
	Close()
}

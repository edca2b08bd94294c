// =============================================================================
// pkg/store/memory.go - In-Memory Indexed Store
// =============================================================================
//
// Map-backed implementation of the IndexedStore interface. Used by the test
// suites of the higher layers (block store, predecessor index, action log)
// so they run without cgo, and useful as a scratch store.
//
// Batches are applied under the write lock, so readers never observe a
// partially applied batch; iterators copy their bounded range under the
// read lock, giving the same snapshot semantics as the durable backends.
//
// =============================================================================

package store

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/karthikiyer56/chainstore/pkg/cf"
	"github.com/karthikiyer56/chainstore/pkg/interfaces"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

// MemoryStore implements interfaces.IndexedStore on Go maps.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store with the standard column
// families.
func NewMemoryStore() *MemoryStore {
	tables := make(map[string]map[string][]byte, len(cf.Names))
	for _, name := range cf.Names {
		tables[name] = make(map[string][]byte)
	}
	return &MemoryStore{tables: tables}
}

// Get retrieves the value for key in the named column family.
func (s *MemoryStore) Get(cfName string, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, errors.Wrap(types.ErrIOFailure, "store is closed")
	}
	table, ok := s.tables[cfName]
	if !ok {
		return nil, false, nil
	}
	v, ok := table[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Write applies the batch atomically under the write lock.
func (s *MemoryStore) Write(batch *interfaces.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Wrap(types.ErrIOFailure, "store is closed")
	}
	for _, e := range batch.Entries() {
		table, ok := s.tables[e.CF]
		if !ok {
			table = make(map[string][]byte)
			s.tables[e.CF] = table
		}
		v := make([]byte, len(e.Value))
		copy(v, e.Value)
		table[string(e.Key)] = v
	}
	return nil
}

// NewIterator returns a bounded iterator over [start, limit) of cfName,
// snapshotted at creation.
func (s *MemoryStore) NewIterator(cfName string, start, limit []byte) interfaces.Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it := &snapshotIterator{pos: -1}
	if s.closed {
		it.err = errors.Wrap(types.ErrIOFailure, "store is closed")
		return it
	}

	table := s.tables[cfName]
	keys := make([]string, 0, len(table))
	for k := range table {
		if start != nil && k < string(start) {
			continue
		}
		if limit != nil && k >= string(limit) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	it.keys = make([][]byte, len(keys))
	it.values = make([][]byte, len(keys))
	for i, k := range keys {
		it.keys[i] = []byte(k)
		it.values[i] = append([]byte(nil), table[k]...)
	}
	return it
}

// Flush is a no-op for the memory store.
func (s *MemoryStore) Flush() error { return nil }

// Compact is a no-op for the memory store.
func (s *MemoryStore) Compact() time.Duration { return 0 }

// Path returns an empty path; the store has no filesystem presence.
func (s *MemoryStore) Path() string { return "" }

// Close drops all tables.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tables = nil
}

// =============================================================================
// Snapshot Iterator (shared by memory and MDBX backends)
// =============================================================================

// snapshotIterator walks a range copied out at creation time.
type snapshotIterator struct {
	keys   [][]byte
	values [][]byte
	pos    int
	err    error
}

func (it *snapshotIterator) SeekToFirst() { it.pos = 0 }

func (it *snapshotIterator) Valid() bool {
	return it.err == nil && it.pos >= 0 && it.pos < len(it.keys)
}

func (it *snapshotIterator) Next() {
	if it.pos >= 0 {
		it.pos++
	}
}

func (it *snapshotIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.keys[it.pos]
}

func (it *snapshotIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.values[it.pos]
}

func (it *snapshotIterator) Error() error { return it.err }

func (it *snapshotIterator) Close() {}

// Compile-Time Interface Checks
var _ interfaces.IndexedStore = (*MemoryStore)(nil)
var _ interfaces.Iterator = (*snapshotIterator)(nil)

// Package kv defines the byte-addressable key/value backend contract
// the trie store is polymorphic over (spec.md §4.A). Any backend
// meeting this interface is pluggable; the lvldb package provides the
// default implementation.
package kv

// Getter reads single keys.
type Getter interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// Putter writes single keys.
type Putter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Pair is a single (key, value) scan result.
type Pair struct {
	Key   []byte
	Value []byte
}

// Iterator lazily yields key/value pairs in key order. Next must be
// called before the first Pair/Error access, following the standard
// Go sql.Rows-style cursor convention.
type Iterator interface {
	Next() bool
	Pair() Pair
	Error() error
	Release()
}

// Op is a single write-batch operation.
type Op struct {
	Delete bool
	Key    []byte
	Value  []byte
}

// Batch collects an ordered list of puts/removes applied atomically by
// WriteBatch. Partial application is forbidden.
type Batch struct {
	Ops []Op
}

// Put appends a put operation.
func (b *Batch) Put(key, value []byte) {
	b.Ops = append(b.Ops, Op{Key: key, Value: value})
}

// Delete appends a remove operation.
func (b *Batch) Delete(key []byte) {
	b.Ops = append(b.Ops, Op{Delete: true, Key: key})
}

// Len reports the number of queued operations.
func (b *Batch) Len() int { return len(b.Ops) }

// Snapshot is a read-only view of the backend pinned at the moment it
// was taken. A scan taken from a snapshot only ever observes that
// snapshot's state.
type Snapshot interface {
	Getter
	ScanPrefix(prefix []byte) Iterator
	Release()
}

// Store is the full backend contract: point reads/writes, prefix
// scans, atomic write batches and point-in-time snapshots.
type Store interface {
	Getter
	Putter
	ScanPrefix(prefix []byte) Iterator
	WriteBatch(batch *Batch) error
	Snapshot() Snapshot
	// IsNotFound reports whether err is the backend's not-found
	// sentinel, mirroring the teacher's lvldb.IsNotFound.
	IsNotFound(err error) bool
	Close() error
}

// Package lvldb adapts github.com/syndtr/goleveldb into the kv.Store
// contract, generalized from the teacher's lvldb package (New, NewMem,
// Put/Get/Has/Delete, NewBatch, IsNotFound) with the prefix-scan and
// snapshot operations spec.md §4.A requires.
package lvldb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/vechain/bpmt/kv"
	"github.com/vechain/bpmt/trieerr"
)

// Options configures the underlying leveldb instance, mirroring the
// teacher's lvldb.Options shape.
type Options struct {
	CacheSizeMB            int
	OpenFilesCacheCapacity int
}

func (o Options) toOpt() *opt.Options {
	lo := &opt.Options{}
	if o.CacheSizeMB > 0 {
		lo.BlockCacheCapacity = o.CacheSizeMB * 1024 * 1024
	}
	if o.OpenFilesCacheCapacity > 0 {
		lo.OpenFilesCacheCapacity = o.OpenFilesCacheCapacity
	}
	return lo
}

// Store is a disk or in-memory leveldb-backed kv.Store.
type Store struct {
	db *leveldb.DB
}

var _ kv.Store = (*Store)(nil)

// New opens (or creates) a leveldb database at path.
func New(path string, opts Options) (*Store, error) {
	db, err := leveldb.OpenFile(path, opts.toOpt())
	if err != nil {
		return nil, trieerr.WrapBackend("open", err)
	}
	return &Store{db: db}, nil
}

// NewMem opens an in-memory leveldb database, used for tests and
// ephemeral tries.
func NewMem() *Store {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		// MemStorage never fails to open.
		panic(err)
	}
	return &Store{db: db}
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return trieerr.WrapBackend("close", s.db.Close())
}

// Get implements kv.Getter.
func (s *Store) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, err
		}
		return nil, trieerr.WrapBackend("get", err)
	}
	return v, nil
}

// Has implements kv.Getter.
func (s *Store) Has(key []byte) (bool, error) {
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return false, trieerr.WrapBackend("has", err)
	}
	return ok, nil
}

// Put implements kv.Putter.
func (s *Store) Put(key, value []byte) error {
	return trieerr.WrapBackend("put", s.db.Put(key, value, nil))
}

// Delete implements kv.Putter.
func (s *Store) Delete(key []byte) error {
	return trieerr.WrapBackend("delete", s.db.Delete(key, nil))
}

// IsNotFound implements kv.Store.
func (s *Store) IsNotFound(err error) bool {
	return err == leveldb.ErrNotFound
}

// ScanPrefix implements kv.Store.
func (s *Store) ScanPrefix(prefix []byte) kv.Iterator {
	return &iter{it: s.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

// WriteBatch implements kv.Store, applying ops as one atomic batch.
func (s *Store) WriteBatch(batch *kv.Batch) error {
	b := new(leveldb.Batch)
	for _, op := range batch.Ops {
		if op.Delete {
			b.Delete(op.Key)
		} else {
			b.Put(op.Key, op.Value)
		}
	}
	return trieerr.WrapBackend("write_batch", s.db.Write(b, nil))
}

// Snapshot implements kv.Store.
func (s *Store) Snapshot() kv.Snapshot {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		// A healthy, open db never fails to snapshot; surface a
		// degenerate empty snapshot rather than panicking the caller.
		return &deadSnapshot{err: trieerr.WrapBackend("snapshot", err)}
	}
	return &snapshot{snap: snap}
}

type snapshot struct {
	snap *leveldb.Snapshot
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	v, err := s.snap.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, err
		}
		return nil, trieerr.WrapBackend("get", err)
	}
	return v, nil
}

func (s *snapshot) Has(key []byte) (bool, error) {
	ok, err := s.snap.Has(key, nil)
	if err != nil {
		return false, trieerr.WrapBackend("has", err)
	}
	return ok, nil
}

func (s *snapshot) ScanPrefix(prefix []byte) kv.Iterator {
	return &iter{it: s.snap.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (s *snapshot) Release() {
	s.snap.Release()
}

// deadSnapshot is returned only if the backend fails to produce a
// snapshot at all; Get and Has surface the original backend error,
// while ScanPrefix yields an empty iterator whose Error is nil.
type deadSnapshot struct {
	err error
}

func (d *deadSnapshot) Get(key []byte) ([]byte, error)  { return nil, d.err }
func (d *deadSnapshot) Has(key []byte) (bool, error)    { return false, d.err }
func (d *deadSnapshot) ScanPrefix(_ []byte) kv.Iterator { return &iter{} }
func (d *deadSnapshot) Release()                        {}

type iter struct {
	it iterator.Iterator
}

func (i *iter) Next() bool {
	if i.it == nil {
		return false
	}
	return i.it.Next()
}

func (i *iter) Pair() kv.Pair {
	if i.it == nil {
		return kv.Pair{}
	}
	k := append([]byte(nil), i.it.Key()...)
	v := append([]byte(nil), i.it.Value()...)
	return kv.Pair{Key: k, Value: v}
}

func (i *iter) Error() error {
	if i.it == nil {
		return nil
	}
	return trieerr.WrapBackend("iterate", i.it.Error())
}

func (i *iter) Release() {
	if i.it != nil {
		i.it.Release()
	}
}

package lvldb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vechain/bpmt/kv"
	"github.com/vechain/bpmt/lvldb"
)

func TestStorePutGetDeleteHas(t *testing.T) {
	s := lvldb.NewMem()
	defer s.Close()

	key, value := []byte("k"), []byte("v")

	assert.NoError(t, s.Put(key, value))

	got, err := s.Get(key)
	assert.NoError(t, err)
	assert.Equal(t, value, got)

	ok, err := s.Has(key)
	assert.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, s.Delete(key))

	_, err = s.Get(key)
	assert.True(t, s.IsNotFound(err))
}

func TestStoreWriteBatchAtomic(t *testing.T) {
	s := lvldb.NewMem()
	defer s.Close()

	batch := new(kv.Batch)
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	assert.NoError(t, s.WriteBatch(batch))

	for _, kvp := range [][2]string{{"a", "1"}, {"b", "2"}} {
		v, err := s.Get([]byte(kvp[0]))
		assert.NoError(t, err)
		assert.Equal(t, kvp[1], string(v))
	}
}

func TestScanPrefix(t *testing.T) {
	s := lvldb.NewMem()
	defer s.Close()

	assert.NoError(t, s.Put([]byte("p/1"), []byte("a")))
	assert.NoError(t, s.Put([]byte("p/2"), []byte("b")))
	assert.NoError(t, s.Put([]byte("q/1"), []byte("c")))

	it := s.ScanPrefix([]byte("p/"))
	defer it.Release()

	count := 0
	for it.Next() {
		count++
	}
	assert.NoError(t, it.Error())
	assert.Equal(t, 2, count)
}

func TestSnapshotIsolation(t *testing.T) {
	s := lvldb.NewMem()
	defer s.Close()

	assert.NoError(t, s.Put([]byte("k"), []byte("v1")))
	snap := s.Snapshot()
	defer snap.Release()

	assert.NoError(t, s.Put([]byte("k"), []byte("v2")))

	v, err := snap.Get([]byte("k"))
	assert.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	v, err = s.Get([]byte("k"))
	assert.NoError(t, err)
	assert.Equal(t, "v2", string(v))
}

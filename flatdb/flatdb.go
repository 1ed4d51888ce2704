// Package flatdb implements the direct (identifier, key) -> value index
// of spec.md §4.G: an O(1) read path that bypasses trie traversal,
// updated in lockstep with every commit so it never drifts from the
// trie's own view of "current" values.
//
// It is grounded on the teacher's muxdb leaf bank (a secondary index
// trading write amplification for fast point reads) and reuses the
// teacher's own caching idioms: a weighted read-through cache
// (w8cache, adapted from cache.W8) in front of the backend, with
// cache.Stats tracking the hit rate for telemetry.
package flatdb

import (
	"github.com/vechain/bpmt/cache"
	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/kv"
	"github.com/vechain/bpmt/overlay"
	"github.com/vechain/bpmt/storekeys"
	"github.com/vechain/bpmt/trie"
	"github.com/vechain/bpmt/trieerr"
	"github.com/vechain/bpmt/w8cache"
)

// entryWeight is the weight every flat entry is cached with: a felt is
// fixed-size, so the cache is bounded by entry count (weight 1 per
// entry). With all weights equal, the entry evicted on overflow is
// whichever sits at the top of w8cache's heap; eviction does not follow
// recency of use.
const entryWeight = 1

// DB is the flat index over one backend. It is not safe for concurrent
// use: Get fills the read-through cache on a miss, and the cache has no
// locking. Writes are serialized by the Commit Manager.
type DB struct {
	store kv.Store
	cache *w8cache.Cache
	stats cache.Stats
}

// Open wraps store with a read-through cache holding up to
// cacheCapacity entries.
func Open(store kv.Store, cacheCapacity int) *DB {
	return &DB{
		store: store,
		cache: w8cache.New(cacheCapacity, nil),
	}
}

func cacheKey(identifier, keyBits []byte) string {
	return string(storekeys.Flat(identifier, keyBits))
}

// Get returns the value stored for (identifier, keyBits), consulting
// the cache before the backend.
func (d *DB) Get(identifier, keyBits []byte) (felt.Felt, bool, error) {
	ck := cacheKey(identifier, keyBits)
	if v, ok := d.cache.Get(ck); ok {
		d.stats.Hit()
		if v == nil {
			return felt.Zero, false, nil
		}
		return v.(felt.Felt), true, nil
	}
	d.stats.Miss()

	raw, err := d.store.Get(storekeys.Flat(identifier, keyBits))
	if err != nil {
		if d.store.IsNotFound(err) {
			d.cache.Set(ck, nil, entryWeight)
			return felt.Zero, false, nil
		}
		return felt.Zero, false, trieerr.WrapBackend("flatdb.Get", err)
	}
	f, err := felt.FromBytes(raw)
	if err != nil {
		return felt.Zero, false, &trieerr.CorruptionError{Reason: "flatdb: malformed value"}
	}
	d.cache.Set(ck, f, entryWeight)
	return f, true, nil
}

// ApplyOverlay stages the overlay's touched keys as put/delete
// operations on batch, keyed under identifier's flat namespace, and
// mirrors the outcome into the read-through cache so the very next
// read observes the new generation without a backend round trip. It
// does not submit the batch; the Commit Manager owns that.
func (d *DB) ApplyOverlay(batch *kv.Batch, identifier []byte, ov *overlay.Overlay) {
	ov.Journal(func(flatKey string, _ overlay.PriorEntry, pending overlay.PendingEntry, hasPending bool) bool {
		if !hasPending {
			return true
		}
		keyBits := trie.DecodeOverlayKey(flatKey)
		backendKey := storekeys.Flat(identifier, keyBits)
		ck := string(backendKey)
		if pending.Tombstone {
			batch.Delete(backendKey)
			d.cache.Set(ck, nil, entryWeight)
			return true
		}
		vb := pending.Value.Bytes()
		batch.Put(backendKey, vb[:])
		d.cache.Set(ck, pending.Value, entryWeight)
		return true
	})
}

// Stats exposes the cache's hit/miss counters for telemetry.
func (d *DB) Stats() *cache.Stats { return &d.stats }

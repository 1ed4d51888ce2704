// Package store implements the top-level, multi-identifier entry
// point of spec.md §5: one backend shared by every identifier's trunk
// trie, the Commit Manager that drives their commits, and retention
// policy over trie logs and historical roots.
//
// It is grounded on the teacher's muxdb package (Open/NewMem/NewStore/
// NewTrie, an Options struct configuring cache sizes and history
// partitioning) generalized from muxdb's single global trie keyed by
// (partition, block) to this engine's set of independently identified
// tries, each with its own commit/revert history.
package store

import (
	"bytes"
	"sort"
	"sync"

	"github.com/vechain/bpmt/bhash"
	"github.com/vechain/bpmt/cache"
	"github.com/vechain/bpmt/commit"
	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/flatdb"
	"github.com/vechain/bpmt/kv"
	"github.com/vechain/bpmt/lvldb"
	"github.com/vechain/bpmt/storekeys"
	"github.com/vechain/bpmt/trie"
	"github.com/vechain/bpmt/trieerr"
	"github.com/vechain/bpmt/txstate"
)

// defaultNodeCacheSize bounds the number of decoded trie nodes kept
// warm per Store, across every identifier's trunk trie.
const defaultNodeCacheSize = 4096

// Config mirrors the teacher's muxdb.Options shape, scoped to this
// engine's retention knobs (spec.md §4.I/§9 decision 3) instead of
// muxdb's block-partitioning parameters.
type Config struct {
	// FlatCacheCapacity bounds the flat DB's read-through cache
	// (entries), independent of retention.
	FlatCacheCapacity int
	// MaxSavedTrieLogs bounds how many of an identifier's newest trie
	// logs Compact keeps outright.
	MaxSavedTrieLogs int
	// MaxSavedSnapshots bounds how many of an identifier's newest
	// historical roots Compact keeps outright.
	MaxSavedSnapshots int
	// SnapshotInterval additionally retains every Nth historical root
	// and trie log beyond the outright window, so a transactional
	// state can still be opened at an old, periodically-sampled
	// commit even after the sliding window has passed it.
	SnapshotInterval int
}

func (c Config) normalized() Config {
	if c.FlatCacheCapacity <= 0 {
		c.FlatCacheCapacity = 4096
	}
	if c.MaxSavedTrieLogs <= 0 {
		c.MaxSavedTrieLogs = 1
	}
	if c.MaxSavedSnapshots <= 0 {
		c.MaxSavedSnapshots = 1
	}
	return c
}

// liveSource resolves trie nodes directly against the live backend,
// for trunk tries (as opposed to txstate's snapshot-pinned source),
// caching decoded nodes by backend key so a hot trunk trie doesn't
// re-read and re-decode the same persisted node on every traversal.
type liveSource struct {
	store kv.Store
	nodes *cache.LRU
}

// cachedNode wraps a resolved *trie.Node so a confirmed absence (nil,
// nil) can be cached too, distinguishing "not yet looked up" from
// "looked up and doesn't exist" the same way flatdb's read-through
// cache distinguishes a miss from a cached absence.
type cachedNode struct{ node *trie.Node }

func (s liveSource) LoadNode(identifier []byte, hash felt.Felt) (*trie.Node, error) {
	key := string(storekeys.Node(identifier, hash.Slice()))
	v, err := s.nodes.GetOrLoad(key, func(interface{}) (interface{}, error) {
		enc, err := s.store.Get([]byte(key))
		if err != nil {
			if s.store.IsNotFound(err) {
				return cachedNode{}, nil
			}
			return nil, trieerr.WrapBackend("store.LoadNode", err)
		}
		n, err := trie.Decode(enc)
		if err != nil {
			return nil, err
		}
		return cachedNode{node: n}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(cachedNode).node, nil
}

// Store owns one backend and every identifier's trunk trie handle.
type Store struct {
	backend   kv.Store
	flat      *flatdb.DB
	manager   *commit.Manager
	cfg       Config
	nodeCache *cache.LRU

	mu    sync.Mutex
	tries map[string]*trie.Trie
}

// Open opens (or creates) a disk-backed Store at path.
func Open(path string, opts lvldb.Options, cfg Config) (*Store, error) {
	backend, err := lvldb.New(path, opts)
	if err != nil {
		return nil, err
	}
	return newStore(backend, cfg), nil
}

// NewMem opens an in-memory Store, used for tests and ephemeral use.
func NewMem(cfg Config) *Store {
	return newStore(lvldb.NewMem(), cfg)
}

func newStore(backend kv.Store, cfg Config) *Store {
	cfg = cfg.normalized()
	flat := flatdb.Open(backend, cfg.FlatCacheCapacity)
	return &Store{
		backend:   backend,
		flat:      flat,
		manager:   commit.NewManager(backend, flat),
		cfg:       cfg,
		nodeCache: cache.NewLRU(defaultNodeCacheSize),
		tries:     make(map[string]*trie.Trie),
	}
}

// Close releases the underlying backend.
func (s *Store) Close() error { return s.backend.Close() }

// IsNotFound reports whether err is the backend's not-found sentinel.
func (s *Store) IsNotFound(err error) bool { return s.backend.IsNotFound(err) }

// NewTrie returns identifier's trunk trie handle, opened at its
// current persisted root on first use and cached for the life of the
// Store afterward so every caller shares one in-memory working tree.
func (s *Store) NewTrie(identifier []byte) (*trie.Trie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(identifier)
	if tr, ok := s.tries[key]; ok {
		return tr, nil
	}

	root := trie.ChildRef{}
	raw, err := s.backend.Get(storekeys.Root(identifier))
	if err != nil {
		if !s.backend.IsNotFound(err) {
			return nil, trieerr.WrapBackend("store.NewTrie: read root", err)
		}
	} else {
		f, ferr := felt.FromBytes(raw)
		if ferr != nil {
			return nil, &trieerr.CorruptionError{Reason: "store: malformed root pointer"}
		}
		root = trie.RefHash(f)
	}

	tr := trie.New(identifier, bhash.Keccak{}, liveSource{store: s.backend, nodes: s.nodeCache}, root)
	s.tries[key] = tr
	return tr, nil
}

// NewTransactionalState opens an isolated snapshot view of identifier
// pinned to id (spec.md §4.J).
func (s *Store) NewTransactionalState(identifier []byte, id commit.ID) (*txstate.State, error) {
	return txstate.New(s.backend, identifier, id)
}

// Commit commits the named identifiers' trunk tries (or every trunk
// trie opened so far, if identifiers is empty) as one atomic batch
// tagged id (spec.md §4.I).
func (s *Store) Commit(id commit.ID, identifiers ...[]byte) (map[string]felt.Felt, error) {
	s.mu.Lock()
	set := make(map[string]*trie.Trie)
	if len(identifiers) == 0 {
		for k, tr := range s.tries {
			set[k] = tr
		}
	} else {
		for _, ident := range identifiers {
			tr, ok := s.tries[string(ident)]
			if !ok {
				s.mu.Unlock()
				return nil, &trieerr.InconsistentCommitIDError{Reason: "commit: unknown identifier " + string(ident)}
			}
			set[string(ident)] = tr
		}
	}
	s.mu.Unlock()

	return s.manager.Commit(id, set)
}

// RevertTo undoes every commit to identifier newer than target
// (spec.md §4.I revert_to), operating on the identifier's cached
// trunk trie handle.
func (s *Store) RevertTo(identifier []byte, target commit.ID) error {
	tr, err := s.NewTrie(identifier)
	if err != nil {
		return err
	}
	return s.manager.RevertTo(tr, target)
}

// Compact enforces the retention config over one identifier's trie
// logs and historical roots: the newest MaxSavedTrieLogs/
// MaxSavedSnapshots entries are always kept outright; older entries
// survive only if their rank-from-newest falls on a SnapshotInterval
// boundary. It never touches trie nodes themselves, which are never
// garbage collected by this engine.
func (s *Store) Compact(identifier []byte) error {
	batch := &kv.Batch{}

	logKeys, err := s.scanDescending(storekeys.LogPrefix(), identifier, storekeys.ParseLogKey)
	if err != nil {
		return err
	}
	s.stageEvictions(batch, logKeys, s.cfg.MaxSavedTrieLogs)

	rootKeys, err := s.scanDescending(storekeys.HistoricalRootPrefix(), identifier, storekeys.ParseHistoricalRootKey)
	if err != nil {
		return err
	}
	s.stageEvictions(batch, rootKeys, s.cfg.MaxSavedSnapshots)

	if batch.Len() == 0 {
		return nil
	}
	return trieerr.WrapBackend("store.Compact", s.backend.WriteBatch(batch))
}

func (s *Store) scanDescending(prefix, identifier []byte, parse func([]byte) ([]byte, []byte, bool)) ([][]byte, error) {
	it := s.backend.ScanPrefix(prefix)
	defer it.Release()

	var keys [][]byte
	var commitIDs [][]byte
	for it.Next() {
		pair := it.Pair()
		cid, ident, ok := parse(pair.Key)
		if !ok || !bytes.Equal(ident, identifier) {
			continue
		}
		keys = append(keys, append([]byte(nil), pair.Key...))
		commitIDs = append(commitIDs, cid)
	}
	if err := it.Error(); err != nil {
		return nil, trieerr.WrapBackend("store.Compact: scan", err)
	}

	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return bytes.Compare(commitIDs[order[a]], commitIDs[order[b]]) > 0
	})
	sorted := make([][]byte, len(keys))
	for i, idx := range order {
		sorted[i] = keys[idx]
	}
	return sorted, nil
}

func (s *Store) stageEvictions(batch *kv.Batch, keysNewestFirst [][]byte, keepOutright int) {
	for rank, key := range keysNewestFirst {
		if rank < keepOutright {
			continue
		}
		if s.cfg.SnapshotInterval > 0 && rank%s.cfg.SnapshotInterval == 0 {
			continue
		}
		batch.Delete(key)
	}
}

package commit

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/flatdb"
	"github.com/vechain/bpmt/kv"
	"github.com/vechain/bpmt/metrics"
	"github.com/vechain/bpmt/storekeys"
	"github.com/vechain/bpmt/trie"
	"github.com/vechain/bpmt/trieerr"
	"github.com/vechain/bpmt/trielog"
)

var (
	commitsTotal     = metrics.LazyLoadCounter("commits_total")
	revertsTotal     = metrics.LazyLoadCounter("reverts_total")
	commitDuration   = metrics.LazyLoadHistogram("commit_duration_ms", nil)
	hashPassDuration = metrics.LazyLoadHistogram("hash_pass_duration_ms", nil)
)

// preparedCommit is the already-assembled write for a given commit id,
// kept around so a failed WriteBatch can be retried without calling
// Trie.Commit a second time. Commit's lazy hashing only emits a NodePut
// for a ref it still finds inline; once a node has been hashed it
// becomes a plain hash reference, so a second Trie.Commit call after a
// partially-failed batch would silently skip re-emitting those puts.
type preparedCommit struct {
	batch *kv.Batch
	roots map[string]felt.Felt
	tries map[string]*trie.Trie
}

// Manager implements the Commit Manager of spec.md §4.I: the five-step
// ordered commit (assert monotonicity, drive lazy hashing per
// identifier, build the inverse trie log, assemble one atomic batch,
// submit) and revert_to.
//
// It is grounded on the teacher's muxdb trie commit path
// (`tr.Commit(ver, false)` persisting and clearing dirty state as one
// step against a single backend) and go-ethereum's trie-committer.go
// bulk-hash-then-store ordering, generalized to this engine's
// caller-supplied commit id and multi-identifier batch.
type Manager struct {
	store kv.Store
	flat  *flatdb.DB

	mu      sync.Mutex
	pending map[string]*preparedCommit
}

// NewManager opens a Commit Manager over store, mirroring every commit
// into flat's cache as it is assembled.
func NewManager(store kv.Store, flat *flatdb.DB) *Manager {
	return &Manager{
		store:   store,
		flat:    flat,
		pending: make(map[string]*preparedCommit),
	}
}

func identifierKeys(tries map[string]*trie.Trie) []string {
	keys := make([]string, 0, len(tries))
	for k := range tries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Commit runs spec.md §4.I's five steps over every trie in tries,
// keyed by identifier, and returns the new root hash per identifier.
// Every identifier commits atomically in one backend batch: either all
// of them reach the new commit id or none do.
func (m *Manager) Commit(id ID, tries map[string]*trie.Trie) (map[string]felt.Felt, error) {
	start := time.Now()
	defer func() { commitDuration().Observe(int64(time.Since(start).Milliseconds())) }()

	idBytes := id.Bytes()
	idKey := string(storekeys.CommitIDBytes(idBytes))

	m.mu.Lock()
	if pc, ok := m.pending[idKey]; ok {
		m.mu.Unlock()
		return m.submit(idKey, pc)
	}
	m.mu.Unlock()

	keys := identifierKeys(tries)

	// Step 1: assert strict monotonicity per identifier.
	for _, identifier := range keys {
		last, err := m.store.Get(storekeys.LastCommit([]byte(identifier)))
		if err != nil {
			if !m.store.IsNotFound(err) {
				return nil, trieerr.WrapBackend("commit.Manager: read last commit", err)
			}
			continue
		}
		if bytes.Compare(storekeys.CommitIDBytes(idBytes), last) <= 0 {
			return nil, &trieerr.InconsistentCommitIDError{
				Reason: "commit id does not exceed identifier " + identifier + "'s last committed id",
			}
		}
	}

	batch := &kv.Batch{}
	roots := make(map[string]felt.Felt, len(keys))

	// Steps 2-4: drive lazy hashing, build the inverse log, stage one
	// batch covering every identifier.
	hashStart := time.Now()
	for _, identifier := range keys {
		tr := tries[identifier]
		idBytesID := []byte(identifier)

		priorRoot := tr.PersistedRoot().Hash

		root, puts, err := tr.Commit()
		if err != nil {
			return nil, err
		}

		rec := trielog.Build(idBytesID, priorRoot, tr.Overlay(), puts)

		for _, p := range puts {
			batch.Put(storekeys.Node(idBytesID, p.Hash.Slice()), p.Encoded)
		}
		m.flat.ApplyOverlay(batch, idBytesID, tr.Overlay())

		batch.Put(storekeys.Log(idBytes, idBytesID), trielog.Encode(rec))
		rootBytes := root.Bytes()
		batch.Put(storekeys.Root(idBytesID), rootBytes[:])
		batch.Put(storekeys.HistoricalRoot(idBytes, idBytesID), rootBytes[:])
		batch.Put(storekeys.LastCommit(idBytesID), storekeys.CommitIDBytes(idBytes))

		roots[identifier] = root
	}
	hashPassDuration().Observe(int64(time.Since(hashStart).Milliseconds()))

	pc := &preparedCommit{batch: batch, roots: roots, tries: tries}
	m.mu.Lock()
	m.pending[idKey] = pc
	m.mu.Unlock()

	return m.submit(idKey, pc)
}

func (m *Manager) submit(idKey string, pc *preparedCommit) (map[string]felt.Felt, error) {
	if err := m.store.WriteBatch(pc.batch); err != nil {
		return nil, trieerr.WrapBackend("commit.Manager: write batch", err)
	}

	m.mu.Lock()
	delete(m.pending, idKey)
	m.mu.Unlock()

	for _, tr := range pc.tries {
		tr.Overlay().Reset()
	}
	commitsTotal().Add(1)
	return pc.roots, nil
}

// RevertTo undoes every commit to tr's identifier newer than target,
// replaying each commit's trielog record newest-first, rewriting the
// identifier's flat-DB entries to their prior values and deleting the
// consumed log entries, so tr ends up positioned at the state
// immediately after target (spec.md §4.I revert_to). target must name
// a commit that was actually reached; reverting past the oldest
// retained log returns InconsistentCommitIDError.
func (m *Manager) RevertTo(tr *trie.Trie, target ID) error {
	identifier := tr.Identifier()
	targetBytes := storekeys.CommitIDBytes(target.Bytes())

	type logEntry struct {
		commitID []byte
		key      []byte
	}
	var entries []logEntry

	it := m.store.ScanPrefix(storekeys.LogPrefix())
	defer it.Release()
	for it.Next() {
		pair := it.Pair()
		cid, ident, ok := storekeys.ParseLogKey(pair.Key)
		if !ok || !bytes.Equal(ident, identifier) {
			continue
		}
		if bytes.Compare(cid, targetBytes) <= 0 {
			continue
		}
		key := append([]byte(nil), pair.Key...)
		entries = append(entries, logEntry{commitID: cid, key: key})
	}
	if err := it.Error(); err != nil {
		return trieerr.WrapBackend("commit.Manager: scan trie log", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].commitID, entries[j].commitID) > 0
	})

	batch := &kv.Batch{}
	for _, e := range entries {
		raw, err := m.store.Get(e.key)
		if err != nil {
			return trieerr.WrapBackend("commit.Manager: read trie log", err)
		}
		rec, err := trielog.Decode(identifier, raw)
		if err != nil {
			return err
		}
		if err := trielog.Apply(tr, rec); err != nil {
			return err
		}
		m.flat.ApplyOverlay(batch, identifier, tr.Overlay())
		tr.Overlay().Reset()
		batch.Delete(e.key)
	}

	root, err := tr.RootHash()
	if err != nil {
		return err
	}
	rootBytes := root.Bytes()
	batch.Put(storekeys.Root(identifier), rootBytes[:])
	batch.Put(storekeys.LastCommit(identifier), targetBytes)

	if err := m.store.WriteBatch(batch); err != nil {
		return trieerr.WrapBackend("commit.Manager: write revert batch", err)
	}
	revertsTotal().Add(1)
	return nil
}

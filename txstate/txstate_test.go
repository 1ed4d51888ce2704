package txstate_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vechain/bpmt/bhash"
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

type liveSource struct{ store kv.Store }

func (s *liveSource) LoadNode(identifier []byte, hash felt.Felt) (*trie.Node, error) {
	enc, err := s.store.Get(storekeys.Node(identifier, hash.Slice()))
	if err != nil {
		if s.store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return trie.Decode(enc)
}

func setup(t *testing.T) (kv.Store, *commit.Manager, *trie.Trie, []byte) {
	t.Helper()
	store := lvldb.NewMem()
	flat := flatdb.Open(store, 64)
	mgr := commit.NewManager(store, flat)
	identifier := []byte("accounts")
	trunk := trie.New(identifier, bhash.Keccak{}, &liveSource{store: store}, trie.ChildRef{})
	return store, mgr, trunk, identifier
}

func TestTransactionalStateIsIsolatedFromLaterTrunkCommits(t *testing.T) {
	store, mgr, trunk, identifier := setup(t)

	require.NoError(t, trunk.Insert([]byte{0x01}, felt.FromUint64(1)))
	require.NoError(t, trunk.Insert([]byte{0x02}, felt.FromUint64(2)))
	_, err := mgr.Commit(commit.Uint64ID(1), map[string]*trie.Trie{"accounts": trunk})
	require.NoError(t, err)

	snap, err := txstate.New(store, identifier, commit.Uint64ID(1))
	require.NoError(t, err)
	defer snap.Close()

	require.NoError(t, trunk.Insert([]byte{0x01}, felt.FromUint64(99)))
	_, err = mgr.Commit(commit.Uint64ID(2), map[string]*trie.Trie{"accounts": trunk})
	require.NoError(t, err)

	v, ok, err := snap.Trie().Get([]byte{0x01})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v.Equal(felt.FromUint64(1)))

	v, ok, err = trunk.Get([]byte{0x01})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v.Equal(felt.FromUint64(99)))
}

func TestMergeAppliesNonConflictingWrites(t *testing.T) {
	store, mgr, trunk, identifier := setup(t)

	require.NoError(t, trunk.Insert([]byte{0x01}, felt.FromUint64(1)))
	_, err := mgr.Commit(commit.Uint64ID(1), map[string]*trie.Trie{"accounts": trunk})
	require.NoError(t, err)

	snap, err := txstate.New(store, identifier, commit.Uint64ID(1))
	require.NoError(t, err)
	defer snap.Close()

	require.NoError(t, snap.Trie().Insert([]byte{0x03}, felt.FromUint64(30)))

	require.NoError(t, txstate.Merge(snap, trunk))

	v, ok, err := trunk.Get([]byte{0x03})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v.Equal(felt.FromUint64(30)))

	_, err = mgr.Commit(commit.Uint64ID(2), map[string]*trie.Trie{"accounts": trunk})
	require.NoError(t, err)
}

func TestMergeDetectsConflict(t *testing.T) {
	store, mgr, trunk, identifier := setup(t)

	require.NoError(t, trunk.Insert([]byte{0x01}, felt.FromUint64(1)))
	_, err := mgr.Commit(commit.Uint64ID(1), map[string]*trie.Trie{"accounts": trunk})
	require.NoError(t, err)

	snap, err := txstate.New(store, identifier, commit.Uint64ID(1))
	require.NoError(t, err)
	defer snap.Close()

	require.NoError(t, snap.Trie().Insert([]byte{0x01}, felt.FromUint64(7)))

	require.NoError(t, trunk.Insert([]byte{0x01}, felt.FromUint64(2)))
	_, err = mgr.Commit(commit.Uint64ID(2), map[string]*trie.Trie{"accounts": trunk})
	require.NoError(t, err)

	err = txstate.Merge(snap, trunk)
	require.Error(t, err)
	var conflict *trieerr.MergeConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 1, len(conflict.Keys))
}

func TestNewRejectsUnknownCommitID(t *testing.T) {
	store := lvldb.NewMem()
	_, err := txstate.New(store, []byte("accounts"), commit.Uint64ID(99))
	assert.Error(t, err)
}

package trie_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vechain/bpmt/bhash"
	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/trie"
)

// memSource is a minimal NodeSource backed by an in-memory map,
// round-tripping every node through trie.Encode/Decode so the codec
// is exercised by every trie test.
type memSource struct {
	nodes map[string][]byte
}

func newMemSource() *memSource {
	return &memSource{nodes: make(map[string][]byte)}
}

func (s *memSource) LoadNode(_ []byte, hash felt.Felt) (*trie.Node, error) {
	enc, ok := s.nodes[string(hash.Slice())]
	if !ok {
		return nil, nil
	}
	return trie.Decode(enc)
}

func (s *memSource) store(puts []trie.NodePut) {
	for _, p := range puts {
		s.nodes[string(p.Hash.Slice())] = p.Encoded
	}
}

func newTestTrie(src *memSource) *trie.Trie {
	return trie.New([]byte("id"), bhash.Keccak{}, src, trie.ChildRef{})
}

func commit(t *testing.T, tr *trie.Trie, src *memSource) felt.Felt {
	t.Helper()
	root, puts, err := tr.Commit()
	require.NoError(t, err)
	src.store(puts)
	tr.Overlay().Reset()
	return root
}

func TestEmptyTrieRootIsZero(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)
	root := commit(t, tr, src)
	assert.True(t, root.IsZero())
}

func TestInsertAndGet(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)

	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(7)))
	require.NoError(t, tr.Insert([]byte{0x01}, felt.FromUint64(8)))
	commit(t, tr, src)

	v, ok, err := tr.Get([]byte{0x00})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.Equal(felt.FromUint64(7)))

	v, ok, err = tr.Get([]byte{0x01})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.Equal(felt.FromUint64(8)))
}

func TestGetMissingKey(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)
	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(1)))
	commit(t, tr, src)

	_, ok, err := tr.Get([]byte{0x02})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveIsIdempotent(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)
	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(1)))
	commit(t, tr, src)

	require.NoError(t, tr.Remove([]byte{0x00}))
	require.NoError(t, tr.Remove([]byte{0x00}))
	root := commit(t, tr, src)
	assert.True(t, root.IsZero())

	_, ok, err := tr.Get([]byte{0x00})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertZeroValueActsAsRemove(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)
	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(1)))
	commit(t, tr, src)

	require.NoError(t, tr.Insert([]byte{0x00}, felt.Zero))
	commit(t, tr, src)

	_, ok, err := tr.Get([]byte{0x00})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderIndependentRootHash(t *testing.T) {
	src1 := newMemSource()
	tr1 := newTestTrie(src1)
	require.NoError(t, tr1.Insert([]byte{0x00}, felt.FromUint64(1)))
	require.NoError(t, tr1.Insert([]byte{0x01}, felt.FromUint64(2)))
	require.NoError(t, tr1.Insert([]byte{0x02}, felt.FromUint64(3)))
	root1 := commit(t, tr1, src1)

	src2 := newMemSource()
	tr2 := newTestTrie(src2)
	require.NoError(t, tr2.Insert([]byte{0x02}, felt.FromUint64(3)))
	require.NoError(t, tr2.Insert([]byte{0x00}, felt.FromUint64(1)))
	require.NoError(t, tr2.Insert([]byte{0x01}, felt.FromUint64(2)))
	root2 := commit(t, tr2, src2)

	assert.True(t, root1.Equal(root2))
}

func TestInsertThenRemoveMatchesNeverInserted(t *testing.T) {
	src1 := newMemSource()
	tr1 := newTestTrie(src1)
	require.NoError(t, tr1.Insert([]byte{0x00}, felt.FromUint64(1)))
	require.NoError(t, tr1.Insert([]byte{0x01}, felt.FromUint64(2)))
	require.NoError(t, tr1.Insert([]byte{0x02}, felt.FromUint64(3)))
	commit(t, tr1, src1)
	require.NoError(t, tr1.Remove([]byte{0x01}))
	root1 := commit(t, tr1, src1)

	src2 := newMemSource()
	tr2 := newTestTrie(src2)
	require.NoError(t, tr2.Insert([]byte{0x00}, felt.FromUint64(1)))
	require.NoError(t, tr2.Insert([]byte{0x02}, felt.FromUint64(3)))
	root2 := commit(t, tr2, src2)

	assert.True(t, root1.Equal(root2))
}

func TestInconsistentKeyLength(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)
	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(1)))
	err := tr.Insert([]byte{0x00, 0x01}, felt.FromUint64(2))
	assert.Error(t, err)
}

func TestRootHashRequiresCleanOverlay(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)
	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(1)))
	_, err := tr.RootHash()
	assert.Error(t, err)

	commit(t, tr, src)
	_, err = tr.RootHash()
	assert.NoError(t, err)
}

func TestProofMembershipAndNonMembership(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)
	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(7)))
	require.NoError(t, tr.Insert([]byte{0x01}, felt.FromUint64(8)))
	root := commit(t, tr, src)

	hasher := bhash.Keccak{}

	proof, err := tr.GetProof([]byte{0x00})
	require.NoError(t, err)
	v, ok, err := tr.Get([]byte{0x00})
	require.NoError(t, err)
	require.True(t, ok)
	verdict := trie.VerifyProof(hasher, root, []byte{0x00}, v, true, proof)
	assert.Equal(t, trie.Member, verdict)

	nonProof, err := tr.GetProof([]byte{0x02})
	require.NoError(t, err)
	verdict = trie.VerifyProof(hasher, root, []byte{0x02}, felt.Zero, false, nonProof)
	assert.Equal(t, trie.NonMember, verdict)
}

func TestProofTamperedByteIsInvalid(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)
	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(7)))
	require.NoError(t, tr.Insert([]byte{0x01}, felt.FromUint64(8)))
	root := commit(t, tr, src)

	hasher := bhash.Keccak{}
	proof, err := tr.GetProof([]byte{0x00})
	require.NoError(t, err)
	require.NotEmpty(t, proof.Nodes)

	// Flip the sibling hash carried by the first binary step so the
	// recomputed root no longer matches.
	tampered := false
	for i := range proof.Nodes {
		if !proof.Nodes[i].IsEdge {
			b := proof.Nodes[i].SiblingHash.Bytes()
			b[0] ^= 0xFF
			nv, ferr := felt.FromBytes(b[:])
			require.NoError(t, ferr)
			proof.Nodes[i].SiblingHash = nv
			tampered = true
			break
		}
	}
	require.True(t, tampered, "expected at least one binary step in the proof")

	v, ok, err := tr.Get([]byte{0x00})
	require.NoError(t, err)
	require.True(t, ok)
	verdict := trie.VerifyProof(hasher, root, []byte{0x00}, v, true, proof)
	assert.Equal(t, trie.Invalid, verdict)
}

func TestProofEncodeDecodeRoundTrips(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)
	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(7)))
	require.NoError(t, tr.Insert([]byte{0x01}, felt.FromUint64(8)))
	root := commit(t, tr, src)

	proof, err := tr.GetProof([]byte{0x00})
	require.NoError(t, err)
	require.NotEmpty(t, proof.Nodes)

	encoded := trie.EncodeProof(proof)
	decoded, err := trie.DecodeProof(encoded)
	require.NoError(t, err)
	assert.Equal(t, proof, decoded)

	v, ok, err := tr.Get([]byte{0x00})
	require.NoError(t, err)
	require.True(t, ok)
	verdict := trie.VerifyProof(bhash.Keccak{}, root, []byte{0x00}, v, true, decoded)
	assert.Equal(t, trie.Member, verdict)
}

func TestDecodeProofRejectsTruncatedInput(t *testing.T) {
	_, err := trie.DecodeProof([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestEdgeSplitAndRemoveFusion(t *testing.T) {
	src := newMemSource()
	tr := newTestTrie(src)
	// Two keys sharing a long common prefix to force an Edge, then
	// split it, then remove one side to force re-fusion.
	require.NoError(t, tr.Insert([]byte{0x10}, felt.FromUint64(1)))
	require.NoError(t, tr.Insert([]byte{0x11}, felt.FromUint64(2)))
	require.NoError(t, tr.Insert([]byte{0x20}, felt.FromUint64(3)))
	root1 := commit(t, tr, src)
	assert.False(t, root1.IsZero())

	require.NoError(t, tr.Remove([]byte{0x11}))
	root2 := commit(t, tr, src)
	assert.False(t, root2.IsZero())
	assert.False(t, root1.Equal(root2))

	v, ok, err := tr.Get([]byte{0x10})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.Equal(felt.FromUint64(1)))

	_, ok, err = tr.Get([]byte{0x11})
	require.NoError(t, err)
	assert.False(t, ok)
}

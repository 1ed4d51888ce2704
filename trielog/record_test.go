package trielog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vechain/bpmt/bhash"
	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/overlay"
	"github.com/vechain/bpmt/trie"
	"github.com/vechain/bpmt/trielog"
)

type memSource struct {
	nodes map[string][]byte
}

func newMemSource() *memSource { return &memSource{nodes: make(map[string][]byte)} }

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

func TestBuildAndApplyRevertsToPriorRoot(t *testing.T) {
	src := newMemSource()
	tr := trie.New([]byte("id"), bhash.Keccak{}, src, trie.ChildRef{})

	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(1)))
	require.NoError(t, tr.Insert([]byte{0x01}, felt.FromUint64(2)))
	root0, puts, err := tr.Commit()
	require.NoError(t, err)
	src.store(puts)
	tr.Overlay().Reset()

	require.NoError(t, tr.Insert([]byte{0x00}, felt.FromUint64(99)))
	require.NoError(t, tr.Remove([]byte{0x01}))
	require.NoError(t, tr.Insert([]byte{0x02}, felt.FromUint64(3)))

	root1, puts2, err := tr.Commit()
	require.NoError(t, err)
	rec := trielog.Build([]byte("id"), root0, tr.Overlay(), puts2)
	src.store(puts2)
	tr.Overlay().Reset()
	assert.False(t, root1.Equal(root0))

	require.NoError(t, trielog.Apply(tr, rec))
	tr.Overlay().Reset()

	root2, err := tr.RootHash()
	require.NoError(t, err)
	assert.True(t, root2.Equal(root0))

	v, ok, err := tr.Get([]byte{0x00})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v.Equal(felt.FromUint64(1)))

	_, ok, err = tr.Get([]byte{0x01})
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = tr.Get([]byte{0x02})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rec := trielog.Record{
		Identifier: []byte("id"),
		PriorRoot:  felt.FromUint64(7),
		Entries: []trielog.Entry{
			{KeyBits: trie.BytesToBits([]byte{0x01}), PriorValue: felt.FromUint64(5), PriorAbsent: false},
			{KeyBits: trie.BytesToBits([]byte{0x02}), PriorAbsent: true},
		},
		NewlyReachable:   []felt.Felt{felt.FromUint64(11), felt.FromUint64(12)},
		NewlyUnreachable: []felt.Felt{felt.FromUint64(13)},
	}
	enc := trielog.Encode(rec)
	dec, err := trielog.Decode([]byte("id"), enc)
	require.NoError(t, err)
	assert.Equal(t, rec.PriorRoot, dec.PriorRoot)
	assert.Equal(t, len(rec.Entries), len(dec.Entries))
	for i := range rec.Entries {
		assert.Equal(t, rec.Entries[i].KeyBits, dec.Entries[i].KeyBits)
		assert.Equal(t, rec.Entries[i].PriorAbsent, dec.Entries[i].PriorAbsent)
		assert.True(t, rec.Entries[i].PriorValue.Equal(dec.Entries[i].PriorValue))
	}
	assert.Equal(t, len(rec.NewlyReachable), len(dec.NewlyReachable))
	assert.Equal(t, len(rec.NewlyUnreachable), len(dec.NewlyUnreachable))
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	rec := trielog.Record{PriorRoot: felt.Zero}
	enc := trielog.Encode(rec)
	enc = append(enc, 0xFF)
	_, err := trielog.Decode([]byte("id"), enc)
	assert.Error(t, err)
}

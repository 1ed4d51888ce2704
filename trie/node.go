// Package trie implements the binary Patricia-Merkle trie engine of
// spec.md §3/§4.D/§4.E: node model, codec, insert/remove/get,
// lazy-hash commit, and proofs.
//
// Node layout and the lazy-hash-on-commit discipline are grounded on
// the teacher's trie/node_test.go and trie/encoding_test.go (tagged
// node encoding) and on other_examples' go-ethereum trie-committer.go
// (post-order "collapse dirty subtree to hash node" pattern); the
// binary (2-ary) rewrite rules are this engine's own, following
// spec.md's traversal/removal algorithm.
package trie

import (
	"github.com/vechain/bpmt/bhash"
	"github.com/vechain/bpmt/felt"
)

// Kind tags the three node variants.
type Kind byte

const (
	KindBinary Kind = 1
	KindEdge   Kind = 2
	KindLeaf   Kind = 3
)

// ChildRef is a tagged reference to a child subtree: either a
// persisted hash (load on demand) or an inline, owned, not-yet-hashed
// subtree. The zero value represents a missing child ("null").
type ChildRef struct {
	Hash   felt.Felt
	Inline *Node
}

// RefHash builds a reference to a persisted, already-hashed child.
func RefHash(h felt.Felt) ChildRef { return ChildRef{Hash: h} }

// RefInline builds a reference to a dirty, owned subtree.
func RefInline(n *Node) ChildRef { return ChildRef{Inline: n} }

// IsNull reports whether the reference denotes a missing child.
func (r ChildRef) IsNull() bool {
	return r.Inline == nil && r.Hash.IsZero()
}

// IsInline reports whether the reference is a dirty, not-yet-hashed subtree.
func (r ChildRef) IsInline() bool {
	return r.Inline != nil
}

// Node is the in-memory representation of one trie node.
type Node struct {
	Kind Kind

	// Binary
	Left, Right ChildRef

	// Edge
	Path  []byte // one byte per bit, each 0 or 1
	Child ChildRef

	// Leaf
	Value felt.Felt
}

// NewBinary builds a Binary node. Both children must be non-null.
func NewBinary(left, right ChildRef) *Node {
	return &Node{Kind: KindBinary, Left: left, Right: right}
}

// NewEdge builds an Edge node. path must be non-empty.
func NewEdge(path []byte, child ChildRef) *Node {
	cp := append([]byte(nil), path...)
	return &Node{Kind: KindEdge, Path: cp, Child: child}
}

// NewLeaf builds a Leaf node carrying value.
func NewLeaf(value felt.Felt) *Node {
	return &Node{Kind: KindLeaf, Value: value}
}

// cloneShallow copies the node's scalar/slice-header fields; callers
// that intend to mutate a child reference must not alias the original.
func (n *Node) cloneShallow() *Node {
	cp := *n
	return &cp
}

// pathFelt packs the path's bits, read most-significant-bit first, as
// a plain binary integer. This is the felt used by hash_edge; see
// DESIGN.md's Open Question #1 resolution.
func pathFelt(path []byte) felt.Felt {
	f := felt.Zero
	for _, bit := range path {
		f = f.Add(f) // f *= 2, via repeated addition to avoid a Mul dependency
		if bit != 0 {
			f = f.Add(felt.One)
		}
	}
	return f
}

// Hash computes the node's own hash identity per spec.md §3. Binary
// and Edge nodes require their children to already be hashed
// (ChildRef.Hash, not Inline) — call this only after the commit pass
// has resolved all descendants.
func (n *Node) Hash(h bhash.Hasher) felt.Felt {
	switch n.Kind {
	case KindLeaf:
		return n.Value
	case KindBinary:
		return h.HashPair(n.Left.Hash, n.Right.Hash)
	case KindEdge:
		return h.HashEdge(n.Child.Hash, pathFelt(n.Path), uint16(len(n.Path)))
	default:
		panic("trie: unknown node kind")
	}
}

package trie

import (
	"encoding/binary"
	"fmt"

	"github.com/vechain/bpmt/bhash"
	"github.com/vechain/bpmt/felt"
)

// ProofNode mirrors one step of the root-to-leaf (or root-to-divergence)
// traversal, carrying enough to recompute the parent's hash from the
// child's (spec.md §4.E).
type ProofNode struct {
	IsEdge bool

	// Binary step
	SiblingHash felt.Felt
	Bit         byte // which side (0=left, 1=right) the traversal took

	// Edge step
	Path []byte

	// Diverges marks an Edge step where the key's bits depart from
	// Path before it is fully consumed — the terminal step of a
	// non-membership proof. ChildHash carries the edge's actual child
	// hash so its own hash can be recomputed without descending into a
	// subtree the key never reaches.
	Diverges  bool
	ChildHash felt.Felt
}

// Proof is the ordered sequence of ProofNode items from root to the
// point of divergence (non-membership) or to the leaf (membership).
type Proof struct {
	Nodes []ProofNode
}

// Verdict is the result of VerifyProof.
type Verdict int

const (
	Invalid Verdict = iota
	Member
	NonMember
)

// GetProof builds the proof for key against the trie's persisted
// (last-committed) root.
func (t *Trie) GetProof(key []byte) (Proof, error) {
	bits := BytesToBits(key)
	var proof Proof
	if err := t.buildProof(t.persistedRoot, bits, &proof); err != nil {
		return Proof{}, err
	}
	return proof, nil
}

func (t *Trie) buildProof(ref ChildRef, bits []byte, proof *Proof) error {
	if ref.IsNull() {
		return nil
	}
	n, err := t.resolve(ref)
	if err != nil {
		return err
	}
	switch n.Kind {
	case KindLeaf:
		return nil
	case KindBinary:
		if len(bits) == 0 {
			return nil
		}
		bit := bits[0]
		var childRef, siblingRef ChildRef
		if bit == 0 {
			childRef, siblingRef = n.Left, n.Right
		} else {
			childRef, siblingRef = n.Right, n.Left
		}
		proof.Nodes = append(proof.Nodes, ProofNode{IsEdge: false, SiblingHash: siblingRef.Hash, Bit: bit})
		return t.buildProof(childRef, bits[1:], proof)
	case KindEdge:
		if len(bits) >= len(n.Path) && bitsEqual(n.Path, bits[:len(n.Path)]) {
			proof.Nodes = append(proof.Nodes, ProofNode{IsEdge: true, Path: append([]byte(nil), n.Path...)})
			return t.buildProof(n.Child, bits[len(n.Path):], proof)
		}
		// The key departs from this edge's path (or runs out inside
		// it): this is the point of divergence. Carry the real child
		// hash so VerifyProof can recompute this edge's own hash
		// without a subtree the key never reaches.
		proof.Nodes = append(proof.Nodes, ProofNode{
			IsEdge:    true,
			Path:      append([]byte(nil), n.Path...),
			Diverges:  true,
			ChildHash: n.Child.Hash,
		})
		return nil
	default:
		panic("trie: unknown node kind")
	}
}

// checkTraversal walks proof.Nodes against keyBits position by
// position, confirming each step is consistent with the key, and
// returns the bit offset at which a Diverges edge was found (-1 if
// none was). A Diverges step may only be the proof's last step.
func checkTraversal(keyBits []byte, proof Proof) (divergesAt, pos int, ok bool) {
	divergesAt = -1
	for i, n := range proof.Nodes {
		if n.IsEdge {
			if n.Diverges {
				if i != len(proof.Nodes)-1 {
					return 0, 0, false
				}
				m := commonPrefixLen(n.Path, keyBits[pos:])
				if m == len(n.Path) {
					// The path actually matches in full; this is not a
					// genuine divergence.
					return 0, 0, false
				}
				divergesAt = pos + m
				pos += m
				break
			}
			if pos+len(n.Path) > len(keyBits) || !bitsEqual(n.Path, keyBits[pos:pos+len(n.Path)]) {
				return 0, 0, false
			}
			pos += len(n.Path)
			continue
		}
		if pos >= len(keyBits) || keyBits[pos] != n.Bit {
			return 0, 0, false
		}
		pos++
	}
	return divergesAt, pos, true
}

// VerifyProof is a pure function recomputing hashes from the claimed
// leaf value (or, for non-membership, the hash of the subtree at the
// point of divergence) up to the root and comparing against rootHash.
// present selects which: true checks value is a member, false checks
// key is absent.
func VerifyProof(hasher bhash.Hasher, rootHash felt.Felt, key []byte, value felt.Felt, present bool, proof Proof) Verdict {
	keyBits := BytesToBits(key)

	divergesAt, pos, ok := checkTraversal(keyBits, proof)
	if !ok {
		return Invalid
	}

	if present {
		if divergesAt != -1 || pos != len(keyBits) {
			return Invalid
		}
	} else if divergesAt == -1 && len(proof.Nodes) != 0 {
		// The only way a non-membership proof can end without an
		// explicit divergence is the empty trie (zero proof nodes).
		return Invalid
	}

	current := felt.Zero
	if present {
		current = value
	} else if divergesAt != -1 {
		current = proof.Nodes[len(proof.Nodes)-1].ChildHash
	}
	for i := len(proof.Nodes) - 1; i >= 0; i-- {
		n := proof.Nodes[i]
		if n.IsEdge {
			current = hasher.HashEdge(current, pathFelt(n.Path), uint16(len(n.Path)))
		} else if n.Bit == 0 {
			current = hasher.HashPair(current, n.SiblingHash)
		} else {
			current = hasher.HashPair(n.SiblingHash, current)
		}
	}

	if !current.Equal(rootHash) {
		return Invalid
	}
	if present {
		return Member
	}
	return NonMember
}

// EncodeProof serializes a Proof for storage or transport, in the same
// hand-rolled length-prefixed binary style as trielog's codec: a node
// count followed by each node's kind byte and payload. Kind 0 is a
// Binary step, 1 a regular Edge step, 2 the terminal diverging Edge
// step of a non-membership proof.
func EncodeProof(proof Proof) []byte {
	var buf []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(proof.Nodes)))
	buf = append(buf, countBuf[:]...)

	for _, n := range proof.Nodes {
		if n.IsEdge {
			if n.Diverges {
				buf = append(buf, 2)
			} else {
				buf = append(buf, 1)
			}
			var lenBuf [2]byte
			binary.BigEndian.PutUint16(lenBuf[:], uint16(len(n.Path)))
			buf = append(buf, lenBuf[:]...)
			buf = append(buf, n.Path...)
			if n.Diverges {
				child := n.ChildHash.Bytes()
				buf = append(buf, child[:]...)
			}
			continue
		}
		buf = append(buf, 0, n.Bit)
		sib := n.SiblingHash.Bytes()
		buf = append(buf, sib[:]...)
	}
	return buf
}

// DecodeProof is the inverse of EncodeProof.
func DecodeProof(data []byte) (Proof, error) {
	if len(data) < 4 {
		return Proof{}, fmt.Errorf("trie: truncated proof")
	}
	count := binary.BigEndian.Uint32(data[:4])
	rest := data[4:]

	proof := Proof{Nodes: make([]ProofNode, 0, count)}
	for i := uint32(0); i < count; i++ {
		if len(rest) < 1 {
			return Proof{}, fmt.Errorf("trie: truncated proof node")
		}
		kind := rest[0]
		rest = rest[1:]

		if kind == 1 || kind == 2 {
			if len(rest) < 2 {
				return Proof{}, fmt.Errorf("trie: truncated proof edge")
			}
			pathLen := binary.BigEndian.Uint16(rest[:2])
			rest = rest[2:]
			if len(rest) < int(pathLen) {
				return Proof{}, fmt.Errorf("trie: truncated proof edge path")
			}
			path := append([]byte(nil), rest[:pathLen]...)
			rest = rest[pathLen:]

			if kind == 1 {
				proof.Nodes = append(proof.Nodes, ProofNode{IsEdge: true, Path: path})
				continue
			}
			if len(rest) < felt.Len {
				return Proof{}, fmt.Errorf("trie: truncated proof diverging edge child hash")
			}
			var childArr [felt.Len]byte
			copy(childArr[:], rest[:felt.Len])
			rest = rest[felt.Len:]
			child, err := felt.FromBytes(childArr[:])
			if err != nil {
				return Proof{}, err
			}
			proof.Nodes = append(proof.Nodes, ProofNode{IsEdge: true, Path: path, Diverges: true, ChildHash: child})
			continue
		}

		if len(rest) < 1+felt.Len {
			return Proof{}, fmt.Errorf("trie: truncated proof binary step")
		}
		bit := rest[0]
		rest = rest[1:]
		var sibArr [felt.Len]byte
		copy(sibArr[:], rest[:felt.Len])
		rest = rest[felt.Len:]
		sib, err := felt.FromBytes(sibArr[:])
		if err != nil {
			return Proof{}, err
		}
		proof.Nodes = append(proof.Nodes, ProofNode{IsEdge: false, SiblingHash: sib, Bit: bit})
	}
	return proof, nil
}

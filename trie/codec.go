package trie

import (
	"encoding/binary"

	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/trieerr"
)

// Encode serializes a fully-hashed node (no Inline children) per
// spec.md §4.D: [kind_tag:u8][body].
func Encode(n *Node) []byte {
	switch n.Kind {
	case KindBinary:
		lb := n.Left.Hash.Bytes()
		rb := n.Right.Hash.Bytes()
		out := make([]byte, 0, 1+felt.Len*2)
		out = append(out, byte(KindBinary))
		out = append(out, lb[:]...)
		out = append(out, rb[:]...)
		return out
	case KindEdge:
		packed := packPathBytes(n.Path)
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(n.Path)))
		cb := n.Child.Hash.Bytes()
		out := make([]byte, 0, 1+2+len(packed)+felt.Len)
		out = append(out, byte(KindEdge))
		out = append(out, lenBuf[:]...)
		out = append(out, packed...)
		out = append(out, cb[:]...)
		return out
	case KindLeaf:
		vb := n.Value.Bytes()
		out := make([]byte, 0, 1+felt.Len)
		out = append(out, byte(KindLeaf))
		out = append(out, vb[:]...)
		return out
	default:
		panic("trie: unknown node kind")
	}
}

// Decode parses a node previously produced by Encode. It validates
// that edges have non-zero length and that binary children are
// non-zero (per §4.D: "binary children are non-zero").
func Decode(b []byte) (*Node, error) {
	if len(b) < 1 {
		return nil, &trieerr.CorruptionError{Reason: "empty node encoding"}
	}
	switch Kind(b[0]) {
	case KindBinary:
		if len(b) != 1+felt.Len*2 {
			return nil, &trieerr.CorruptionError{Reason: "binary node: wrong length"}
		}
		left, err := felt.FromBytes(b[1 : 1+felt.Len])
		if err != nil {
			return nil, &trieerr.CorruptionError{Reason: "binary node: bad left hash"}
		}
		right, err := felt.FromBytes(b[1+felt.Len : 1+2*felt.Len])
		if err != nil {
			return nil, &trieerr.CorruptionError{Reason: "binary node: bad right hash"}
		}
		if left.IsZero() || right.IsZero() {
			return nil, &trieerr.CorruptionError{Reason: "binary node: missing child"}
		}
		return &Node{Kind: KindBinary, Left: RefHash(left), Right: RefHash(right)}, nil
	case KindEdge:
		if len(b) < 3 {
			return nil, &trieerr.CorruptionError{Reason: "edge node: truncated"}
		}
		pathLen := binary.BigEndian.Uint16(b[1:3])
		if pathLen == 0 {
			return nil, &trieerr.CorruptionError{Reason: "edge node: zero length"}
		}
		nbytes := int((pathLen + 7) / 8)
		want := 3 + nbytes + felt.Len
		if len(b) != want {
			return nil, &trieerr.CorruptionError{Reason: "edge node: wrong length"}
		}
		packed := b[3 : 3+nbytes]
		path := unpackPathBytes(packed, int(pathLen))
		child, err := felt.FromBytes(b[3+nbytes : 3+nbytes+felt.Len])
		if err != nil {
			return nil, &trieerr.CorruptionError{Reason: "edge node: bad child hash"}
		}
		return &Node{Kind: KindEdge, Path: path, Child: RefHash(child)}, nil
	case KindLeaf:
		if len(b) != 1+felt.Len {
			return nil, &trieerr.CorruptionError{Reason: "leaf node: wrong length"}
		}
		v, err := felt.FromBytes(b[1:])
		if err != nil {
			return nil, &trieerr.CorruptionError{Reason: "leaf node: bad value"}
		}
		return &Node{Kind: KindLeaf, Value: v}, nil
	default:
		return nil, &trieerr.CorruptionError{Reason: "unknown node kind tag"}
	}
}

func packPathBytes(path []byte) []byte {
	nbytes := (len(path) + 7) / 8
	out := make([]byte, nbytes)
	for i, bit := range path {
		if bit != 0 {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

func unpackPathBytes(packed []byte, nbits int) []byte {
	out := make([]byte, nbits)
	for i := 0; i < nbits; i++ {
		if packed[i/8]&(1<<(7-uint(i%8))) != 0 {
			out[i] = 1
		}
	}
	return out
}

// Package bhash implements the felt-valued hasher abstraction the trie
// engine is polymorphic over (spec.md §4.C).
package bhash

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vechain/bpmt/felt"
)

// Hasher is the capability set the trie engine requires. Implementations
// are stateless.
type Hasher interface {
	// HashPair computes the two-input compression used by Binary nodes.
	HashPair(a, b felt.Felt) felt.Felt
	// HashEdge computes the Edge node identity:
	// hash_pair(child, path) + path_len (mod p).
	HashEdge(child, path felt.Felt, pathLen uint16) felt.Felt
}

// Keccak is a Hasher built on Keccak-256, the default hash primitive
// used project-wide by the teacher corpus before any curve-pairing
// hash is required. It is not claimed to be bit-exact with a
// SNARK-friendly permutation (Pedersen/Poseidon); it is internally
// self-consistent, which is all §8's proof-soundness property needs.
type Keccak struct{}

var _ Hasher = Keccak{}

// HashPair implements Hasher.
func (Keccak) HashPair(a, b felt.Felt) felt.Felt {
	ab := a.Bytes()
	bb := b.Bytes()
	sum := crypto.Keccak256(ab[:], bb[:])
	f, err := felt.FromBytes(sum)
	if err != nil {
		// Keccak256 always returns 32 bytes; felt.FromBytes only
		// rejects wrong lengths.
		panic(err)
	}
	return f
}

// HashEdge implements Hasher.
func (k Keccak) HashEdge(child, path felt.Felt, pathLen uint16) felt.Felt {
	return k.HashPair(child, path).AddUint64(uint64(pathLen))
}

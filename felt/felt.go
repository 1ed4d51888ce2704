// Package felt implements the field-element type used throughout the
// trie store: stored values, node hashes and path encodings are all
// felts.
package felt

import (
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Len is the canonical byte length of a felt.
const Len = 32

// Modulus is the prime the field is reduced over: the Starknet
// STARK-friendly prime 2^251 + 17·2^192 + 1. The engine's hash
// identities are not validated against any other implementation (see
// DESIGN.md).
var Modulus = func() *uint256.Int {
	m, _ := uint256.FromHex("0x800000000000011000000000000000000000000000000000000000000000001")
	return m
}()

// Felt is an element of the prime field, stored as a reduced 256-bit
// integer.
type Felt struct {
	n uint256.Int
}

// Zero is the additive identity.
var Zero = Felt{}

// One is the multiplicative identity.
var One = FromUint64(1)

// FromUint64 builds a felt from a small integer.
func FromUint64(v uint64) Felt {
	var f Felt
	f.n.SetUint64(v)
	return f
}

// FromBigInt reduces a big.Int into the field.
func FromBigInt(v *big.Int) Felt {
	var f Felt
	f.n.SetFromBig(v)
	f.reduce()
	return f
}

// FromBytes decodes 32 big-endian bytes into a felt, reducing modulo p.
func FromBytes(b []byte) (Felt, error) {
	if len(b) != Len {
		return Felt{}, errors.New("felt: wrong byte length")
	}
	var f Felt
	f.n.SetBytes(b)
	f.reduce()
	return f, nil
}

func (f *Felt) reduce() {
	if f.n.Cmp(Modulus) >= 0 {
		f.n.Mod(&f.n, Modulus)
	}
}

// Bytes encodes the felt as 32 big-endian bytes.
func (f Felt) Bytes() [Len]byte {
	return f.n.Bytes32()
}

// Slice returns the felt as a freshly allocated 32-byte big-endian slice.
func (f Felt) Slice() []byte {
	b := f.n.Bytes32()
	out := make([]byte, Len)
	copy(out, b[:])
	return out
}

// IsZero reports whether f is the field's additive identity.
func (f Felt) IsZero() bool {
	return f.n.IsZero()
}

// Equal reports whether f and g represent the same field element.
func (f Felt) Equal(g Felt) bool {
	return f.n.Eq(&g.n)
}

// Add returns f + g (mod p).
func (f Felt) Add(g Felt) Felt {
	var out Felt
	out.n.AddMod(&f.n, &g.n, Modulus)
	return out
}

// AddUint64 returns f + v (mod p).
func (f Felt) AddUint64(v uint64) Felt {
	return f.Add(FromUint64(v))
}

// String renders the felt as a 0x-prefixed hex string, matching the
// thor.Bytes32 text convention.
func (f Felt) String() string {
	b := f.n.Bytes32()
	return "0x" + hex.EncodeToString(b[:])
}

// MarshalText implements encoding.TextMarshaler.
func (f Felt) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Felt) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) > Len {
		return errors.New("felt: hex value too long")
	}
	padded := make([]byte, Len)
	copy(padded[Len-len(b):], b)
	decoded, err := FromBytes(padded)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}

// Package commit implements the Commit Manager of spec.md §4.I: the
// five-step ordered commit (assert monotonicity, drive lazy hashing,
// build the inverse log, assemble one atomic batch, submit) and
// revert_to.
//
// It is grounded on the teacher's muxdb trie commit path
// (`tr.Commit(ver, false)`: a version-tagged call that persists and
// clears dirty state in one step) and go-ethereum's
// trie-committer.go bulk-hash-then-store ordering, generalized to this
// engine's explicit, caller-supplied commit id rather than an
// internally incremented block number.
package commit

import "encoding/binary"

// ID is an opaque, totally ordered, strictly monotonically increasing
// commit tag (spec.md §3). Bytes must encode the id so that
// storekeys.CommitIDBytes' length-prefixed comparison matches the
// application's intended ordering.
type ID interface {
	Bytes() []byte
}

// Uint64ID is the overwhelmingly common case: a monotonic counter,
// following the teacher's own integer version tags
// (trie.Version{Major,Minor}) rather than an opaque byte string.
type Uint64ID uint64

var _ ID = Uint64ID(0)

// Bytes implements ID.
func (id Uint64ID) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

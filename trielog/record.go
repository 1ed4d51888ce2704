// Package trielog implements the per-commit inverse-delta record of
// spec.md §4.H: the (key, prior value) list and node-hash reachability
// transitions needed to undo one commit, plus the prior root hash that
// a successful revert must reproduce.
//
// It is grounded on other_examples' go-ethereum trie/triestate/state.go:
// a reverse diff recorded per block, replayed by Apply to walk a trie
// backward and verify the reached root matches what is expected. This
// package generalizes that account/storage-diff shape to this engine's
// flat key/value diffs and widens the replay's sanity check from "the
// destination root" to the record's own PriorRoot.
package trielog

import (
	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/overlay"
	"github.com/vechain/bpmt/trie"
	"github.com/vechain/bpmt/trieerr"
)

// Entry is one key's state immediately before the commit the owning
// Record undoes.
type Entry struct {
	KeyBits    []byte // one byte per bit, trie.BytesToBits form
	PriorValue felt.Felt
	PriorAbsent bool
}

// Record is one identifier's inverse delta for a single commit.
type Record struct {
	Identifier []byte
	PriorRoot  felt.Felt
	Entries    []Entry
	// NewlyReachable are node hashes this commit introduced (every
	// lazily-hashed dirty node persisted by Trie.Commit).
	NewlyReachable []felt.Felt
	// NewlyUnreachable are persisted node hashes this commit superseded.
	NewlyUnreachable []felt.Felt
}

// Build assembles a Record from the trie's drained overlay and the
// freshly hashed nodes Trie.Commit produced, before the overlay is
// reset. priorRoot is the identifier's root hash before this commit.
func Build(identifier []byte, priorRoot felt.Felt, ov *overlay.Overlay, puts []trie.NodePut) Record {
	rec := Record{
		Identifier:       append([]byte(nil), identifier...),
		PriorRoot:        priorRoot,
		NewlyUnreachable: ov.UnreachableHashes(),
	}
	rec.NewlyReachable = make([]felt.Felt, len(puts))
	for i, p := range puts {
		rec.NewlyReachable[i] = p.Hash
	}
	ov.Journal(func(key string, prior overlay.PriorEntry, _ overlay.PendingEntry, hasPending bool) bool {
		if !hasPending {
			return true
		}
		rec.Entries = append(rec.Entries, Entry{
			KeyBits:     trie.DecodeOverlayKey(key),
			PriorValue:  prior.Value,
			PriorAbsent: prior.Absent,
		})
		return true
	})
	return rec
}

// Apply replays the record's entries onto tr, restoring every touched
// key to its pre-commit state, then commits and checks the reached
// root matches PriorRoot. tr must be positioned at the post-commit
// state the record undoes (spec.md §4.I's revert_to step).
func Apply(tr *trie.Trie, rec Record) error {
	for _, e := range rec.Entries {
		key := trie.BitsToBytes(e.KeyBits)
		if e.PriorAbsent {
			if err := tr.Remove(key); err != nil {
				return err
			}
			continue
		}
		if err := tr.Insert(key, e.PriorValue); err != nil {
			return err
		}
	}
	root, _, err := tr.Commit()
	if err != nil {
		return err
	}
	if !root.Equal(rec.PriorRoot) {
		return &trieerr.CorruptionError{Reason: "trie log replay did not reach the expected prior root"}
	}
	return nil
}

// Package overlay implements the per-identifier Change Store of
// spec.md §4.F: the flat-key delta (pending value or tombstone, plus
// the prior value captured on first touch) and the set of persisted
// node hashes that became unreachable during the current generation.
//
// It is generalized from the teacher's stackedmap package: where
// stackedmap layers scopes with Push/Pop and replays writes with
// Journal, this overlay has exactly one always-open scope (a commit
// generation) and exposes the same "journal touched keys in insertion
// order" idea via Journal, since the trie engine and commit manager
// only ever need one generation of pending writes at a time.
package overlay

import "github.com/vechain/bpmt/felt"

// PendingEntry is a key's intended post-commit state.
type PendingEntry struct {
	Value     felt.Felt
	Tombstone bool
}

// PriorEntry is a key's value immediately before the current
// generation's writes began.
type PriorEntry struct {
	Value  felt.Felt
	Absent bool
}

// Loader fetches a key's committed value, used to populate PriorEntry
// lazily on first touch.
type Loader func() (value felt.Felt, ok bool, err error)

// Overlay is the per-identifier change store.
type Overlay struct {
	pending map[string]PendingEntry
	prior   map[string]PriorEntry
	order   []string
	removed map[string]felt.Felt
}

// New returns an empty overlay.
func New() *Overlay {
	return &Overlay{
		pending: make(map[string]PendingEntry),
		prior:   make(map[string]PriorEntry),
		removed: make(map[string]felt.Felt),
	}
}

// RecordPriorOnce captures the key's pre-generation value the first
// time the key is touched in this generation; subsequent calls for the
// same key are no-ops (the loader is not called again).
func (o *Overlay) RecordPriorOnce(key string, load Loader) error {
	if _, ok := o.prior[key]; ok {
		return nil
	}
	value, found, err := load()
	if err != nil {
		return err
	}
	o.prior[key] = PriorEntry{Value: value, Absent: !found}
	o.order = append(o.order, key)
	return nil
}

// SetValue records key's new pending value.
func (o *Overlay) SetValue(key string, value felt.Felt) {
	o.pending[key] = PendingEntry{Value: value}
}

// SetTombstone records key's removal.
func (o *Overlay) SetTombstone(key string) {
	o.pending[key] = PendingEntry{Tombstone: true}
}

// GetPending returns the key's pending state, if any.
func (o *Overlay) GetPending(key string) (PendingEntry, bool) {
	e, ok := o.pending[key]
	return e, ok
}

// GetPrior returns the key's captured pre-generation value, if the key
// has been touched this generation. Used by transactional-state merge
// to compare a snapshot's recorded value against the trunk's current
// one.
func (o *Overlay) GetPrior(key string) (PriorEntry, bool) {
	e, ok := o.prior[key]
	return e, ok
}

// MarkUnreachable records a persisted node hash that was superseded in
// this generation (trie-log's reachable-to-unreachable set).
func (o *Overlay) MarkUnreachable(h felt.Felt) {
	o.removed[string(h.Slice())] = h
}

// UnreachableHashes returns the set of node hashes superseded this
// generation.
func (o *Overlay) UnreachableHashes() []felt.Felt {
	out := make([]felt.Felt, 0, len(o.removed))
	for _, h := range o.removed {
		out = append(out, h)
	}
	return out
}

// Journal replays touched keys in the order they were first touched,
// mirroring stackedmap.Journal's early-abort convention: returning
// false from fn stops the walk.
func (o *Overlay) Journal(fn func(key string, prior PriorEntry, pending PendingEntry, hasPending bool) bool) {
	for _, key := range o.order {
		pending, ok := o.pending[key]
		if !fn(key, o.prior[key], pending, ok) {
			return
		}
	}
}

// TouchedKeys returns every key touched this generation, in first-touch order.
func (o *Overlay) TouchedKeys() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Empty reports whether the overlay has no pending mutations.
func (o *Overlay) Empty() bool {
	return len(o.order) == 0
}

// Reset clears the overlay after a successful commit or an abandoned
// handle.
func (o *Overlay) Reset() {
	o.pending = make(map[string]PendingEntry)
	o.prior = make(map[string]PriorEntry)
	o.order = nil
	o.removed = make(map[string]felt.Felt)
}

package trie

import (
	"github.com/vechain/bpmt/bhash"
	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/overlay"
	"github.com/vechain/bpmt/trieerr"
)

// NodeSource loads a persisted node by hash. Implementations read the
// KV backend (possibly through a cache); the Change Store is never
// consulted, since a dirty node is never referenced by hash — see
// ChildRef.Inline.
type NodeSource interface {
	LoadNode(identifier []byte, hash felt.Felt) (*Node, error)
}

// NodePut is a freshly-hashed node produced by a commit pass, ready
// for the Commit Manager to persist.
type NodePut struct {
	Hash    felt.Felt
	Encoded []byte
}

// Trie is one identifier's binary Patricia-Merkle trie handle. It is
// not safe for concurrent use; the trunk and every transactional
// state each own their own Trie (spec.md §5).
type Trie struct {
	identifier []byte
	hasher     bhash.Hasher
	source     NodeSource

	// persistedRoot is the root as of the last commit; reads of keys
	// untouched by the current generation's overlay are served from
	// here, never from the dirty working tree.
	persistedRoot ChildRef
	// root is the current working root, mutated by Insert/Remove.
	root ChildRef

	overlay *overlay.Overlay

	keyBitLen int // 0 means not yet established
}

// New opens a trie handle at the given persisted root (the ChildRef{}
// zero value, for which IsNull() holds, for an empty trie).
func New(identifier []byte, hasher bhash.Hasher, source NodeSource, root ChildRef) *Trie {
	return &Trie{
		identifier:    append([]byte(nil), identifier...),
		hasher:        hasher,
		source:        source,
		persistedRoot: root,
		root:          root,
		overlay:       overlay.New(),
	}
}

// Identifier returns the trie's identifier.
func (t *Trie) Identifier() []byte { return t.identifier }

// Overlay exposes the change store for the Commit Manager and Flat DB
// to drain at commit time.
func (t *Trie) Overlay() *overlay.Overlay { return t.overlay }

// Root returns the current (possibly dirty) working root reference.
func (t *Trie) Root() ChildRef { return t.root }

// PersistedRoot returns the root as of the last commit.
func (t *Trie) PersistedRoot() ChildRef { return t.persistedRoot }

// UnreachableHashes returns persisted node hashes superseded by
// mutations since the last commit (for the trie log). It is cleared by
// Overlay.Reset, alongside the pending writes it was recorded with.
func (t *Trie) UnreachableHashes() []felt.Felt {
	return t.overlay.UnreachableHashes()
}

// EncodeOverlayKey packs a bit sequence into the length-prefixed string
// used as the overlay/flat-DB map key, so a key's bit length is always
// recoverable even across keys of different declared lengths.
func EncodeOverlayKey(keyBits []byte) string {
	buf := make([]byte, 2+len(BitsToBytes(keyBits)))
	buf[0] = byte(len(keyBits) >> 8)
	buf[1] = byte(len(keyBits))
	copy(buf[2:], BitsToBytes(keyBits))
	return string(buf)
}

// DecodeOverlayKey reverses EncodeOverlayKey, returning one byte per
// bit (as BytesToBits does).
func DecodeOverlayKey(s string) []byte {
	b := []byte(s)
	if len(b) < 2 {
		return nil
	}
	nbits := int(b[0])<<8 | int(b[1])
	packed := b[2:]
	out := make([]byte, nbits)
	for i := 0; i < nbits; i++ {
		if packed[i/8]&(1<<(7-uint(i%8))) != 0 {
			out[i] = 1
		}
	}
	return out
}

func flatKeyString(keyBits []byte) string {
	return EncodeOverlayKey(keyBits)
}

func (t *Trie) checkKeyLength(nbits int) error {
	if t.keyBitLen == 0 {
		t.keyBitLen = nbits
		return nil
	}
	if t.keyBitLen != nbits {
		return &trieerr.InconsistentKeyLengthError{
			Identifier: string(t.identifier),
			Want:       t.keyBitLen,
			Got:        nbits,
		}
	}
	return nil
}

func (t *Trie) resolve(ref ChildRef) (*Node, error) {
	if ref.Inline != nil {
		return ref.Inline, nil
	}
	if ref.Hash.IsZero() {
		return nil, nil
	}
	n, err := t.source.LoadNode(t.identifier, ref.Hash)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, &trieerr.CorruptionError{Reason: "missing node for hash " + ref.Hash.String()}
	}
	return n, nil
}

func (t *Trie) markUnreachable(ref ChildRef) {
	if ref.Inline == nil && !ref.Hash.IsZero() {
		t.overlay.MarkUnreachable(ref.Hash)
	}
}

// Get returns the value stored at key, consulting the overlay before
// the persisted trie (spec.md §4.E/§4.F). It never mutates.
func (t *Trie) Get(key []byte) (felt.Felt, bool, error) {
	bits := BytesToBits(key)
	ks := flatKeyString(bits)
	if pending, ok := t.overlay.GetPending(ks); ok {
		if pending.Tombstone {
			return felt.Zero, false, nil
		}
		return pending.Value, true, nil
	}
	return t.getPersisted(t.persistedRoot, bits)
}

func (t *Trie) getPersisted(ref ChildRef, bits []byte) (felt.Felt, bool, error) {
	if ref.IsNull() {
		return felt.Zero, false, nil
	}
	n, err := t.resolve(ref)
	if err != nil {
		return felt.Zero, false, err
	}
	switch n.Kind {
	case KindLeaf:
		if len(bits) != 0 {
			return felt.Zero, false, nil
		}
		return n.Value, true, nil
	case KindBinary:
		if len(bits) == 0 {
			return felt.Zero, false, nil
		}
		if bits[0] == 0 {
			return t.getPersisted(n.Left, bits[1:])
		}
		return t.getPersisted(n.Right, bits[1:])
	case KindEdge:
		if len(bits) < len(n.Path) || !bitsEqual(n.Path, bits[:len(n.Path)]) {
			return felt.Zero, false, nil
		}
		return t.getPersisted(n.Child, bits[len(n.Path):])
	default:
		panic("trie: unknown node kind")
	}
}

// Contains reports whether key has a stored value.
func (t *Trie) Contains(key []byte) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

// priorLoader captures a key's persisted value for the trie log,
// independent of anything already in the overlay.
func (t *Trie) priorLoader(bits []byte) overlay.Loader {
	return func() (felt.Felt, bool, error) {
		return t.getPersisted(t.persistedRoot, bits)
	}
}

// Insert upserts key to value. Inserting the zero felt is equivalent
// to Remove (spec.md §4.E).
func (t *Trie) Insert(key []byte, value felt.Felt) error {
	bits := BytesToBits(key)
	if err := t.checkKeyLength(len(bits)); err != nil {
		return err
	}
	if value.IsZero() {
		return t.Remove(key)
	}
	newRoot, err := t.insertAt(t.root, bits, value)
	if err != nil {
		return err
	}
	t.root = newRoot

	ks := flatKeyString(bits)
	if err := t.overlay.RecordPriorOnce(ks, t.priorLoader(bits)); err != nil {
		return err
	}
	t.overlay.SetValue(ks, value)
	return nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (t *Trie) Remove(key []byte) error {
	bits := BytesToBits(key)
	if err := t.checkKeyLength(len(bits)); err != nil {
		return err
	}
	newRoot, err := t.removeAt(t.root, bits)
	if err != nil {
		return err
	}
	t.root = newRoot

	ks := flatKeyString(bits)
	if err := t.overlay.RecordPriorOnce(ks, t.priorLoader(bits)); err != nil {
		return err
	}
	t.overlay.SetTombstone(ks)
	return nil
}

func (t *Trie) insertAt(ref ChildRef, bits []byte, value felt.Felt) (ChildRef, error) {
	if ref.IsNull() {
		if len(bits) == 0 {
			return RefInline(NewLeaf(value)), nil
		}
		return RefInline(NewEdge(bits, RefInline(NewLeaf(value)))), nil
	}
	n, err := t.resolve(ref)
	if err != nil {
		return ChildRef{}, err
	}
	switch n.Kind {
	case KindLeaf:
		if len(bits) != 0 {
			return ChildRef{}, &trieerr.InconsistentKeyLengthError{Identifier: string(t.identifier)}
		}
		t.markUnreachable(ref)
		return RefInline(NewLeaf(value)), nil
	case KindBinary:
		if len(bits) == 0 {
			return ChildRef{}, &trieerr.InconsistentKeyLengthError{Identifier: string(t.identifier)}
		}
		left, right := n.Left, n.Right
		if bits[0] == 0 {
			newChild, err := t.insertAt(left, bits[1:], value)
			if err != nil {
				return ChildRef{}, err
			}
			left = newChild
		} else {
			newChild, err := t.insertAt(right, bits[1:], value)
			if err != nil {
				return ChildRef{}, err
			}
			right = newChild
		}
		t.markUnreachable(ref)
		return RefInline(NewBinary(left, right)), nil
	case KindEdge:
		p := n.Path
		m := commonPrefixLen(p, bits)
		if m == len(p) {
			newChild, err := t.insertAt(n.Child, bits[m:], value)
			if err != nil {
				return ChildRef{}, err
			}
			t.markUnreachable(ref)
			return RefInline(NewEdge(p, newChild)), nil
		}
		if m == len(bits) {
			// bits is a strict prefix of p: shorter key than established length.
			return ChildRef{}, &trieerr.InconsistentKeyLengthError{Identifier: string(t.identifier)}
		}
		t.markUnreachable(ref)

		oldBit := p[m]
		newBit := bits[m]
		remainingOld := p[m+1:]
		var oldSide ChildRef
		if len(remainingOld) == 0 {
			oldSide = n.Child
		} else {
			oldSide = RefInline(NewEdge(remainingOld, n.Child))
		}
		remainingNew := bits[m+1:]
		var newSide ChildRef
		if len(remainingNew) == 0 {
			newSide = RefInline(NewLeaf(value))
		} else {
			newSide = RefInline(NewEdge(remainingNew, RefInline(NewLeaf(value))))
		}
		var branch *Node
		if oldBit == 0 {
			branch = NewBinary(oldSide, newSide)
		} else {
			branch = NewBinary(newSide, oldSide)
		}
		if m == 0 {
			return RefInline(branch), nil
		}
		return RefInline(NewEdge(p[:m], RefInline(branch))), nil
	default:
		panic("trie: unknown node kind")
	}
}

func (t *Trie) removeAt(ref ChildRef, bits []byte) (ChildRef, error) {
	if ref.IsNull() {
		return ChildRef{}, nil
	}
	n, err := t.resolve(ref)
	if err != nil {
		return ChildRef{}, err
	}
	switch n.Kind {
	case KindLeaf:
		if len(bits) != 0 {
			return ref, nil
		}
		t.markUnreachable(ref)
		return ChildRef{}, nil
	case KindBinary:
		if len(bits) == 0 {
			return ref, nil
		}
		var child, sibling ChildRef
		leftSide := bits[0] == 0
		if leftSide {
			child, sibling = n.Left, n.Right
		} else {
			child, sibling = n.Right, n.Left
		}
		newChild, err := t.removeAt(child, bits[1:])
		if err != nil {
			return ChildRef{}, err
		}
		t.markUnreachable(ref)
		if newChild.IsNull() {
			// The Binary collapses to its surviving sibling, which must
			// regain the branch bit this node consumed: sibling was
			// reached via bit 1 when the removed child was on the left,
			// via bit 0 when it was on the right.
			branchBit := byte(0)
			if leftSide {
				branchBit = 1
			}
			return t.restoreBranchBit(branchBit, sibling)
		}
		if leftSide {
			return RefInline(NewBinary(newChild, sibling)), nil
		}
		return RefInline(NewBinary(sibling, newChild)), nil
	case KindEdge:
		p := n.Path
		if len(bits) < len(p) || !bitsEqual(p, bits[:len(p)]) {
			return ref, nil
		}
		newChild, err := t.removeAt(n.Child, bits[len(p):])
		if err != nil {
			return ChildRef{}, err
		}
		if newChild.IsNull() {
			t.markUnreachable(ref)
			return ChildRef{}, nil
		}
		childNode, err := t.resolve(newChild)
		if err != nil {
			return ChildRef{}, err
		}
		t.markUnreachable(ref)
		if childNode.Kind == KindEdge {
			fusedPath := append(append([]byte(nil), p...), childNode.Path...)
			return RefInline(NewEdge(fusedPath, childNode.Child)), nil
		}
		return RefInline(NewEdge(p, newChild)), nil
	default:
		panic("trie: unknown node kind")
	}
}

// restoreBranchBit re-attaches a branch bit stripped by a collapsing
// Binary node to its surviving sibling, fusing into the sibling's own
// Edge when it has one rather than nesting a one-bit Edge on top of it.
func (t *Trie) restoreBranchBit(branchBit byte, sibling ChildRef) (ChildRef, error) {
	siblingNode, err := t.resolve(sibling)
	if err != nil {
		return ChildRef{}, err
	}
	if siblingNode.Kind == KindEdge {
		fusedPath := append([]byte{branchBit}, siblingNode.Path...)
		return RefInline(NewEdge(fusedPath, siblingNode.Child)), nil
	}
	return RefInline(NewEdge([]byte{branchBit}, sibling)), nil
}

// Commit runs the lazy-hashing post-order pass over every dirty
// subtree and returns the new root hash plus the set of freshly
// hashed nodes ready to be persisted. It does not touch the backend
// and does not clear the overlay — the Commit Manager does both as
// part of its atomic batch (spec.md §4.I).
func (t *Trie) Commit() (felt.Felt, []NodePut, error) {
	var puts []NodePut
	newRoot, err := t.hashify(t.root, &puts)
	if err != nil {
		return felt.Zero, nil, err
	}
	t.root = newRoot
	t.persistedRoot = newRoot
	if newRoot.IsNull() {
		return felt.Zero, puts, nil
	}
	return newRoot.Hash, puts, nil
}

func (t *Trie) hashify(ref ChildRef, puts *[]NodePut) (ChildRef, error) {
	if ref.IsNull() || !ref.IsInline() {
		return ref, nil
	}
	n := ref.Inline
	switch n.Kind {
	case KindLeaf:
		// Leaves hash to their own value; nothing to persist
		// independently since the parent encodes the leaf's hash
		// only through its own body — but we still need the leaf's
		// bytes addressable by hash for proof reconstruction.
		h := n.Hash(t.hasher)
		encoded := Encode(&Node{Kind: KindLeaf, Value: n.Value})
		*puts = append(*puts, NodePut{Hash: h, Encoded: encoded})
		return RefHash(h), nil
	case KindBinary:
		left, err := t.hashify(n.Left, puts)
		if err != nil {
			return ChildRef{}, err
		}
		right, err := t.hashify(n.Right, puts)
		if err != nil {
			return ChildRef{}, err
		}
		hashed := &Node{Kind: KindBinary, Left: left, Right: right}
		h := hashed.Hash(t.hasher)
		*puts = append(*puts, NodePut{Hash: h, Encoded: Encode(hashed)})
		return RefHash(h), nil
	case KindEdge:
		child, err := t.hashify(n.Child, puts)
		if err != nil {
			return ChildRef{}, err
		}
		hashed := &Node{Kind: KindEdge, Path: n.Path, Child: child}
		h := hashed.Hash(t.hasher)
		*puts = append(*puts, NodePut{Hash: h, Encoded: Encode(hashed)})
		return RefHash(h), nil
	default:
		panic("trie: unknown node kind")
	}
}

// RootHash returns the committed root hash. It returns
// UncommittedChangesError if the overlay has pending mutations,
// matching the strict reading of spec.md §4.E's contract (this
// implementation does not offer the "compute on demand" alternative).
func (t *Trie) RootHash() (felt.Felt, error) {
	if !t.overlay.Empty() {
		return felt.Zero, &trieerr.UncommittedChangesError{Identifier: string(t.identifier)}
	}
	if t.persistedRoot.IsNull() {
		return felt.Zero, nil
	}
	return t.persistedRoot.Hash, nil
}

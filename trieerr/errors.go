// Package trieerr defines the error kinds of spec.md §7. They are
// distinguished with errors.As, following the teacher's typed-error
// style (trie.MissingNodeError) rather than sentinel values, since
// several kinds (MergeConflict, Corruption) carry payload.
package trieerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// BackendError wraps an underlying KV backend failure. The message is
// propagated verbatim; the engine never retries.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// WrapBackend wraps err as a BackendError with stack context, or
// returns nil if err is nil.
func WrapBackend(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: errors.WithStack(err)}
}

// InconsistentKeyLengthError indicates mixed key bit-lengths within
// one identifier.
type InconsistentKeyLengthError struct {
	Identifier string
	Want, Got  int
}

func (e *InconsistentKeyLengthError) Error() string {
	return fmt.Sprintf("inconsistent key length for identifier %q: want %d bits, got %d", e.Identifier, e.Want, e.Got)
}

// InconsistentCommitIDError indicates commit/revert was called with a
// commit id that violates monotonicity or retention.
type InconsistentCommitIDError struct {
	Reason string
}

func (e *InconsistentCommitIDError) Error() string {
	return "inconsistent commit id: " + e.Reason
}

// UncommittedChangesError indicates an operation required a clean
// handle but pending mutations exist.
type UncommittedChangesError struct {
	Identifier string
}

func (e *UncommittedChangesError) Error() string {
	return fmt.Sprintf("uncommitted changes pending for identifier %q", e.Identifier)
}

// MergeConflictError is returned only by transactional-state merge.
type MergeConflictError struct {
	Keys [][]byte
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %d key(s)", len(e.Keys))
}

// CorruptionError indicates a persisted node failed to decode or a
// referenced child hash is missing from the node store.
type CorruptionError struct {
	Reason string
}

func (e *CorruptionError) Error() string {
	return "corruption: " + e.Reason
}

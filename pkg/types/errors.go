// =============================================================================
// pkg/types/errors.go - Error Kinds
// =============================================================================
//
// The store surfaces six error kinds. Callers classify with the Is* helpers
// rather than string matching; call sites add context with
// github.com/pkg/errors wrapping, which these helpers see through.
//
// Absence of a key is NOT an error for the read paths that expect it
// (GetBlock and friends return a found flag); ErrNotFound exists for the
// places where an absent key indicates a broken reference.
//
// =============================================================================

package types

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a referenced key is absent where
	// presence was required.
	ErrNotFound = stderrors.New("chainstore: not found")

	// ErrCorrupted is returned when stored data fails a structural or
	// consistency check: a locator pointing outside segment bounds, a
	// checksum mismatch, or a missing predecessor entry required by the
	// ancestor invariant. Never swallowed; ancestor results feed
	// consensus-relevant computations.
	ErrCorrupted = stderrors.New("chainstore: corrupted")

	// ErrIOFailure is returned on underlying storage I/O errors. The batch
	// being written is not applied.
	ErrIOFailure = stderrors.New("chainstore: io failure")

	// ErrDuplicateKey is returned on insertion of an already-present
	// primary key where duplication is disallowed.
	ErrDuplicateKey = stderrors.New("chainstore: duplicate key")

	// ErrInvalidDistance is returned when an ancestor query distance
	// exceeds the block's level: no such ancestor exists, it would precede
	// genesis.
	ErrInvalidDistance = stderrors.New("chainstore: invalid ancestor distance")

	// ErrSerialization is returned when a stored payload fails to decode
	// to its expected structured form.
	ErrSerialization = stderrors.New("chainstore: serialization error")
)

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsCorrupted reports whether err is (or wraps) ErrCorrupted.
func IsCorrupted(err error) bool { return errors.Is(err, ErrCorrupted) }

// IsIOFailure reports whether err is (or wraps) ErrIOFailure.
func IsIOFailure(err error) bool { return errors.Is(err, ErrIOFailure) }

// IsDuplicateKey reports whether err is (or wraps) ErrDuplicateKey.
func IsDuplicateKey(err error) bool { return errors.Is(err, ErrDuplicateKey) }

// IsInvalidDistance reports whether err is (or wraps) ErrInvalidDistance.
func IsInvalidDistance(err error) bool { return errors.Is(err, ErrInvalidDistance) }

// IsSerialization reports whether err is (or wraps) ErrSerialization.
func IsSerialization(err error) bool { return errors.Is(err, ErrSerialization) }

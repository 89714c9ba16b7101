package cmt

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-cmtree/keccak"
)

var (
	// ErrInvalidInput is the caller contract violation family. These are never
	// worth retrying.
	ErrInvalidInput           = errors.New("invalid input")
	ErrTreeShape              = fmt.Errorf("%w: unsupported tree shape", ErrInvalidInput)
	ErrLeafIndexOutOfBounds   = fmt.Errorf("%w: leaf index out of bounds", ErrInvalidInput)
	ErrProofLength            = fmt.Errorf("%w: proof length does not match the tree depth", ErrInvalidInput)
	ErrCannotAppendEmpty      = fmt.Errorf("%w: cannot append an empty leaf", ErrInvalidInput)
	ErrTreeFull               = fmt.Errorf("%w: tree is full", ErrInvalidInput)
	ErrTreeNotInitialized     = fmt.Errorf("%w: tree is not initialized", ErrInvalidInput)
	ErrTreeAlreadyInitialized = fmt.Errorf("%w: tree is already initialized", ErrInvalidInput)

	// ErrStaleProof means the proof could not be reconciled with the change
	// log history. Fetch a fresh proof and try again.
	ErrStaleProof           = errors.New("stale proof")
	ErrRootNotFound         = fmt.Errorf("%w: root not found in change log buffer", ErrStaleProof)
	ErrLeafContentsModified = fmt.Errorf("%w: leaf contents modified since the proof was taken", ErrStaleProof)

	// ErrHashMismatch means a fully reconciled proof still does not reproduce
	// the current root.
	ErrHashMismatch = errors.New("hash mismatch")

	// ErrCorruptChangeLog means the change log buffer holds an entry that
	// cannot have been written by this tree.
	ErrCorruptChangeLog = errors.New("corrupt change log")
)

// RejectError carries the detail of a refused update. It unwraps to one of
// ErrRootNotFound, ErrLeafContentsModified or ErrHashMismatch.
type RejectError struct {
	Err            error
	LeafIndex      uint32
	CandidateRoot  keccak.Hash
	CurrentRoot    keccak.Hash
	SequenceNumber uint64
	// MatchedSlot is the change log buffer slot whose root matched the
	// candidate, -1 if none did.
	MatchedSlot int
}

func (e *RejectError) Error() string {
	if e.MatchedSlot < 0 {
		return fmt.Sprintf("%v: leaf %d, candidate root %s, current root %s, seq %d",
			e.Err, e.LeafIndex, e.CandidateRoot, e.CurrentRoot, e.SequenceNumber)
	}
	return fmt.Sprintf("%v: leaf %d, candidate root %s matched slot %d, current root %s, seq %d",
		e.Err, e.LeafIndex, e.CandidateRoot, e.MatchedSlot, e.CurrentRoot, e.SequenceNumber)
}

func (e *RejectError) Unwrap() error { return e.Err }

// Kind is a short stable label for the rejection, suitable for metrics.
func (e *RejectError) Kind() string {
	switch {
	case errors.Is(e.Err, ErrLeafContentsModified):
		return "leaf_modified"
	case errors.Is(e.Err, ErrStaleProof):
		return "stale_proof"
	case errors.Is(e.Err, ErrHashMismatch):
		return "hash_mismatch"
	default:
		return "other"
	}
}

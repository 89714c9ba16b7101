package cmt

import (
	"errors"

	"github.com/forestrie/go-cmtree/keccak"
)

// Reconcile controls how a proof is matched against the change log history.
type Reconcile struct {
	// Root is the root the proof was taken against. When zero the root is
	// recomputed from the leaf and proof.
	Root keccak.Hash
	// AllowInferred accepts a proof whose root is not in the buffer if
	// replaying the whole buffer reconciles it.
	AllowInferred bool
}

// reconcile fast forwards proof from the history slot whose root matches
// the proof's root, to the current root. It returns the patched copy of
// proof and the number of change logs replayed. The tree is not modified.
//
// The buffer is scanned newest first: the current slot, then up to
// BufferSize-1 slots back. Anything older has been overwritten.
func (t *Tree) reconcile(
	leaf keccak.Hash, index uint32, proof []keccak.Hash, rc Reconcile,
) ([]keccak.Hash, int, error) {
	candidate := recomputeRoot(leaf, index, proof)
	current := t.CurrentRoot()
	target := candidate
	if rc.Root != keccak.Empty {
		target = rc.Root
	}

	reject := func(err error, slot int) error {
		return &RejectError{
			Err:            err,
			LeafIndex:      index,
			CandidateRoot:  target,
			CurrentRoot:    current,
			SequenceNumber: t.SequenceNumber,
			MatchedSlot:    slot,
		}
	}

	size := uint64(t.MaxBufferSize)
	matched := -1
	var replay uint64
	for back := uint64(0); back < t.BufferSize; back++ {
		slot := (t.ActiveIndex + size - back) % size
		if t.ChangeLogs[slot].Root == target {
			matched = int(slot)
			replay = back
			break
		}
	}

	var from uint64
	switch {
	case matched >= 0:
		from = (uint64(matched) + 1) % size
	case rc.AllowInferred:
		// Replay everything still held, oldest first.
		replay = t.BufferSize
		from = (t.ActiveIndex + size + 1 - t.BufferSize) % size
	default:
		return nil, 0, reject(ErrRootNotFound, -1)
	}

	patched := cloneHashes(proof)
	updated := leaf
	for k := uint64(0); k < replay; k++ {
		if err := t.ChangeLogs[(from+k)%size].updateProofOrLeaf(index, patched, &updated); err != nil {
			return nil, 0, err
		}
	}
	if updated != leaf {
		return nil, 0, reject(ErrLeafContentsModified, matched)
	}
	if recomputeRoot(leaf, index, patched) != current {
		if matched < 0 {
			return nil, 0, reject(ErrRootNotFound, -1)
		}
		return nil, 0, reject(ErrHashMismatch, matched)
	}
	return patched, int(replay), nil
}

func isLeafModified(err error) bool {
	return errors.Is(err, ErrLeafContentsModified)
}

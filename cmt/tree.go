// Package cmt implements the concurrent merkle tree: a fixed depth keccak
// tree that keeps only its current root, a ring buffer of recent change
// logs and the path to its rightmost leaf.
//
// Writers race to update the tree with proofs taken against whatever root
// they last saw. Any proof taken against a root still present in the change
// log buffer is fast forwarded to the current root by replaying the change
// logs recorded since, so up to MaxBufferSize concurrent writers can succeed
// without coordinating. Proofs older than the buffer are rejected with
// ErrStaleProof.
//
// Initialize writes change log slot 0, so after k further updates
// SequenceNumber is k and ActiveIndex is k mod MaxBufferSize.
//
// A Tree holds no canopy and requires full depth proofs. The engine package
// splices canopy nodes in before calling here.
package cmt

import (
	"fmt"

	"github.com/forestrie/go-cmtree/keccak"
)

type Tree struct {
	MaxDepth      uint32
	MaxBufferSize uint32

	// SequenceNumber counts accepted operations.
	SequenceNumber uint64
	// ActiveIndex is the buffer slot holding the most recent change log.
	ActiveIndex uint64
	// BufferSize is the number of slots holding valid change logs. It grows
	// to MaxBufferSize and stays there.
	BufferSize uint64

	ChangeLogs []ChangeLog

	// RightMostPath.Index is the number of leaves appended so far, which is
	// the next append position. Leaf and Proof describe leaf Index-1.
	RightMostPath Path
}

// Applied summarizes an accepted operation.
type Applied struct {
	ChangeLog      ChangeLog
	SequenceNumber uint64
	// FastForward is the number of change logs replayed to bring the
	// supplied proof up to date. Zero when the proof was current.
	FastForward int
}

// New allocates a zeroed, uninitialized tree.
func New(maxDepth, maxBufferSize uint32) (*Tree, error) {
	if maxDepth == 0 || maxDepth > keccak.MaxSupportedDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrTreeShape, maxDepth)
	}
	if maxBufferSize == 0 {
		return nil, fmt.Errorf("%w: buffer size %d", ErrTreeShape, maxBufferSize)
	}
	t := &Tree{
		MaxDepth:      maxDepth,
		MaxBufferSize: maxBufferSize,
		ChangeLogs:    make([]ChangeLog, maxBufferSize),
		RightMostPath: Path{Proof: make([]keccak.Hash, maxDepth)},
	}
	for i := range t.ChangeLogs {
		t.ChangeLogs[i].Path = make([]keccak.Hash, maxDepth)
	}
	return t, nil
}

func (t *Tree) IsInitialized() bool { return t.BufferSize != 0 }

// Capacity is the number of leaf slots, 2^MaxDepth.
func (t *Tree) Capacity() uint64 { return uint64(1) << t.MaxDepth }

func (t *Tree) CurrentRoot() keccak.Hash { return t.ChangeLogs[t.ActiveIndex].Root }

// CurrentChangeLog returns the most recent change log. The returned value
// aliases the tree.
func (t *Tree) CurrentChangeLog() *ChangeLog { return &t.ChangeLogs[t.ActiveIndex] }

// LeafCount is the number of leaves appended (or filled at the append
// position) so far.
func (t *Tree) LeafCount() uint64 { return uint64(t.RightMostPath.Index) }

func (t *Tree) Clone() *Tree {
	out := *t
	out.ChangeLogs = make([]ChangeLog, len(t.ChangeLogs))
	for i := range t.ChangeLogs {
		out.ChangeLogs[i] = t.ChangeLogs[i].Clone()
	}
	out.RightMostPath = t.RightMostPath.Clone()
	return &out
}

// Initialize makes an empty tree: every leaf Empty and the root
// EmptyNode(MaxDepth). The initial change log occupies slot 0 and does not
// count as an update.
func (t *Tree) Initialize() (Applied, error) {
	if t.IsInitialized() {
		return Applied{}, ErrTreeAlreadyInitialized
	}

	rmp := &t.RightMostPath
	for i := range rmp.Proof {
		rmp.Proof[i] = keccak.EmptyNode(uint32(i))
	}
	rmp.Leaf = keccak.Empty
	rmp.Index = 0

	cl := &t.ChangeLogs[0]
	for i := range cl.Path {
		cl.Path[i] = keccak.EmptyNode(uint32(i))
	}
	cl.Root = keccak.EmptyNode(t.MaxDepth)
	cl.Index = 0

	t.SequenceNumber = 0
	t.ActiveIndex = 0
	t.BufferSize = 1
	return t.applied(0), nil
}

// InitializeWithRoot adopts a tree prepared elsewhere, identified by its
// root and the proof for its rightmost leaf.
func (t *Tree) InitializeWithRoot(root, rightMostLeaf keccak.Hash, rightMostIndex uint32, proof []keccak.Hash) (Applied, error) {
	if t.IsInitialized() {
		return Applied{}, ErrTreeAlreadyInitialized
	}
	if err := t.checkProofLength(proof); err != nil {
		return Applied{}, err
	}
	if uint64(rightMostIndex) >= t.Capacity() {
		return Applied{}, fmt.Errorf("%w: %d >= %d", ErrLeafIndexOutOfBounds, rightMostIndex, t.Capacity())
	}
	if got := recomputeRoot(rightMostLeaf, rightMostIndex, proof); got != root {
		return Applied{}, fmt.Errorf("%w: rightmost proof gives %s, expected %s", ErrHashMismatch, got, root)
	}

	t.writeChangeLog(0, rightMostLeaf, proof, rightMostIndex)
	t.ActiveIndex = 0
	t.BufferSize = 1
	t.SequenceNumber = 1

	copy(t.RightMostPath.Proof, proof)
	t.RightMostPath.Leaf = rightMostLeaf
	t.RightMostPath.Index = rightMostIndex + 1
	return t.applied(0), nil
}

// SetLeaf replaces oldLeaf with newLeaf at index. proof may have been taken
// against any root still in the change log buffer.
func (t *Tree) SetLeaf(
	index uint32, oldLeaf, newLeaf keccak.Hash, proof []keccak.Hash, rc Reconcile,
) (Applied, error) {
	if err := t.checkLeafArgs(index, proof); err != nil {
		return Applied{}, err
	}
	patched, replayed, err := t.reconcile(oldLeaf, index, proof, rc)
	if err != nil {
		return Applied{}, err
	}

	t.pushChangeLog(newLeaf, patched, index)
	t.updateRightMostPath(index, patched)
	return t.applied(replayed), nil
}

// ProveLeaf checks leaf is at index in the current tree without changing
// anything. The proof is reconciled exactly as SetLeaf would.
func (t *Tree) ProveLeaf(index uint32, leaf keccak.Hash, proof []keccak.Hash, rc Reconcile) error {
	if err := t.checkLeafArgs(index, proof); err != nil {
		return err
	}
	_, _, err := t.reconcile(leaf, index, proof, rc)
	return err
}

// FillEmptyOrAppend writes leaf at index if that slot is still empty,
// otherwise appends it. A proof that cannot be reconciled at all is still an
// error.
func (t *Tree) FillEmptyOrAppend(index uint32, leaf keccak.Hash, proof []keccak.Hash, rc Reconcile) (Applied, error) {
	applied, err := t.SetLeaf(index, keccak.Empty, leaf, proof, rc)
	if err == nil {
		return applied, nil
	}
	if isLeafModified(err) {
		return t.Append(leaf)
	}
	return Applied{}, err
}

func (t *Tree) checkLeafArgs(index uint32, proof []keccak.Hash) error {
	if !t.IsInitialized() {
		return ErrTreeNotInitialized
	}
	if err := t.checkProofLength(proof); err != nil {
		return err
	}
	if uint64(index) >= t.Capacity() {
		return fmt.Errorf("%w: %d >= %d", ErrLeafIndexOutOfBounds, index, t.Capacity())
	}
	if index > t.RightMostPath.Index {
		return fmt.Errorf("%w: %d is beyond the next append position %d",
			ErrLeafIndexOutOfBounds, index, t.RightMostPath.Index)
	}
	return nil
}

func (t *Tree) checkProofLength(proof []keccak.Hash) error {
	if uint32(len(proof)) != t.MaxDepth {
		return fmt.Errorf("%w: got %d, want %d", ErrProofLength, len(proof), t.MaxDepth)
	}
	return nil
}

// incrementActive advances the ring buffer by one slot.
func (t *Tree) incrementActive() {
	t.ActiveIndex = (t.ActiveIndex + 1) % uint64(t.MaxBufferSize)
	if t.BufferSize < uint64(t.MaxBufferSize) {
		t.BufferSize++
	}
	t.SequenceNumber++
}

// pushChangeLog claims the next buffer slot for the change that puts leaf at
// index and returns the new root.
func (t *Tree) pushChangeLog(leaf keccak.Hash, proof []keccak.Hash, index uint32) keccak.Hash {
	t.incrementActive()
	return t.writeChangeLog(t.ActiveIndex, leaf, proof, index)
}

func (t *Tree) writeChangeLog(slot uint64, leaf keccak.Hash, proof []keccak.Hash, index uint32) keccak.Hash {
	cl := &t.ChangeLogs[slot]
	cl.Index = index
	node := leaf
	for i, sibling := range proof {
		cl.Path[i] = node
		keccak.HashToParent(&node, sibling, (index>>uint(i))&1 == 0)
	}
	cl.Root = node
	return node
}

// updateRightMostPath keeps the rightmost proof valid after a SetLeaf at
// index, whose reconciled proof is proof.
func (t *Tree) updateRightMostPath(index uint32, proof []keccak.Hash) {
	rmp := &t.RightMostPath
	cl := t.CurrentChangeLog()

	if index < rmp.Index {
		last := rmp.Index - 1
		if cb, ok := critbit(index, last, t.MaxDepth); ok {
			rmp.Proof[cb] = cl.Path[cb]
			return
		}
		rmp.Leaf = cl.Path[0]
		return
	}

	// index == rmp.Index, the leaf was written at the append position.
	copy(rmp.Proof, proof)
	rmp.Index = index + 1
	rmp.Leaf = cl.Path[0]
}

func (t *Tree) applied(replayed int) Applied {
	return Applied{
		ChangeLog:      t.CurrentChangeLog().Clone(),
		SequenceNumber: t.SequenceNumber,
		FastForward:    replayed,
	}
}

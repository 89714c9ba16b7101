package cmt

import (
	"fmt"
	"math/bits"

	"github.com/forestrie/go-cmtree/keccak"
)

// ChangeLog records the tree state produced by one accepted update.
type ChangeLog struct {
	Root keccak.Hash
	// Path[i] is the node at height i on the path from the updated leaf to the
	// root, so Path[0] is the leaf written by the update.
	Path  []keccak.Hash
	Index uint32
}

// Path is a leaf together with its sibling proof, ordered leaf to root.
type Path struct {
	Proof []keccak.Hash
	Leaf  keccak.Hash
	Index uint32
}

func (cl *ChangeLog) Leaf() keccak.Hash { return cl.Path[0] }

func (cl ChangeLog) Clone() ChangeLog {
	out := cl
	out.Path = cloneHashes(cl.Path)
	return out
}

func (p Path) Clone() Path {
	out := p
	out.Proof = cloneHashes(p.Proof)
	return out
}

// updateProofOrLeaf moves a proof for leafIndex forward past this change log.
//
// If the change log is for a different leaf, the two paths meet at exactly
// one height: the critical bit. Above it they share every node (and the
// proof does not hold those), below it they are disjoint. So the only proof
// node this change can have invalidated is the one at the critical bit, and
// its new value is the change log path node at the same height.
//
// If the change log is for leafIndex itself, leaf is replaced with the value
// the change log wrote.
func (cl *ChangeLog) updateProofOrLeaf(leafIndex uint32, proof []keccak.Hash, leaf *keccak.Hash) error {
	if leafIndex == cl.Index {
		*leaf = cl.Path[0]
		return nil
	}
	cb, ok := critbit(leafIndex, cl.Index, uint32(len(proof)))
	if !ok {
		return fmt.Errorf("%w: change log index %d aliases leaf %d at depth %d",
			ErrCorruptChangeLog, cl.Index, leafIndex, len(proof))
	}
	proof[cb] = cl.Path[cb]
	return nil
}

// critbit returns the height at which the paths of two leaves become
// siblings. ok is false if a and b do not differ in the low depth bits, so
// there is no such height.
func critbit(a, b uint32, depth uint32) (uint32, bool) {
	masked := (a ^ b) << (32 - depth)
	if masked == 0 {
		return 0, false
	}
	return depth - 1 - uint32(bits.LeadingZeros32(masked)), true
}

// recomputeRoot climbs from leaf to the root.
func recomputeRoot(leaf keccak.Hash, index uint32, proof []keccak.Hash) keccak.Hash {
	node := leaf
	for i, sibling := range proof {
		keccak.HashToParent(&node, sibling, (index>>uint(i))&1 == 0)
	}
	return node
}

func cloneHashes(in []keccak.Hash) []keccak.Hash {
	if in == nil {
		return nil
	}
	out := make([]keccak.Hash, len(in))
	copy(out, in)
	return out
}

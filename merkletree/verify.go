package merkletree

import (
	"github.com/forestrie/go-cmtree/keccak"
)

// RecomputeRoot climbs from leaf to the root using proof. At height h the
// node is a left child when bit h of index is clear.
func RecomputeRoot(leaf keccak.Hash, index uint32, proof []keccak.Hash) keccak.Hash {
	node := leaf
	for h, sibling := range proof {
		keccak.HashToParent(&node, sibling, (index>>uint(h))&1 == 0)
	}
	return node
}

// Verify returns true if leaf combined with proof reproduces root.
func Verify(leaf keccak.Hash, index uint32, proof []keccak.Hash, root keccak.Hash) bool {
	if len(proof) == 0 {
		return false
	}
	if len(proof) < 32 && uint64(index) >= uint64(1)<<len(proof) {
		return false
	}
	return RecomputeRoot(leaf, index, proof) == root
}

// VerifyDepth is Verify with the proof length checked against depth.
func VerifyDepth(depth uint32, leaf keccak.Hash, index uint32, proof []keccak.Hash, root keccak.Hash) (bool, error) {
	if uint32(len(proof)) != depth {
		return false, ErrProofLength
	}
	return Verify(leaf, index, proof, root), nil
}

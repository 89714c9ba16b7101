package merkletree

import (
	"github.com/forestrie/go-cmtree/keccak"
)

// Proof returns the sibling of each node on the path from leaf index to the
// root, ordered leaf to root. The result always has Depth() entries.
//
// For depth 3 and index 2 the proof is [3, n10, n21]
//
//	3                 root
//	               /        \
//	2         n20             n21
//	         /    \
//	1     n10      n11
//	     /  \     /   \
//	0   0    1   2     3
func (t *Tree) Proof(index uint32) ([]keccak.Hash, error) {
	if err := t.checkIndex(index); err != nil {
		return nil, err
	}
	proof := make([]keccak.Hash, t.depth)
	pos := uint64(index)
	for h := uint32(0); h < t.depth; h++ {
		proof[h] = t.node(h, pos^1)
		pos >>= 1
	}
	return proof, nil
}

// TruncatedProof returns Proof(index) without the top canopyDepth entries.
// Those levels are supplied by the account canopy.
func (t *Tree) TruncatedProof(index uint32, canopyDepth uint32) ([]keccak.Hash, error) {
	if canopyDepth > t.depth {
		return nil, ErrCanopyDepth
	}
	proof, err := t.Proof(index)
	if err != nil {
		return nil, err
	}
	return proof[:t.depth-canopyDepth], nil
}

// ProofPath returns the heap indices (root is 1) of the proof nodes for
// index, in the same order as Proof. This allows tooling to audit the
// individual proof node values.
func ProofPath(depth uint32, index uint32) []uint64 {
	path := make([]uint64, depth)
	heap := (uint64(1) << depth) + uint64(index)
	for h := uint32(0); h < depth; h++ {
		path[h] = heap ^ 1
		heap >>= 1
	}
	return path
}

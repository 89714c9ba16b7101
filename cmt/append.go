package cmt

import (
	"fmt"
	"math/bits"

	"github.com/forestrie/go-cmtree/keccak"
)

// Append adds leaf at the next free position using only the rightmost path.
// No proof is needed.
//
// Appending leaf n, with t = trailing zeros of n, the new leaf's path and the
// previous rightmost leaf's path join at height t+1. Below t every sibling
// of the new leaf is an empty subtree. At t the sibling is the previous
// rightmost leaf's ancestor, and above t the siblings are shared with the
// previous rightmost proof. For n = 6 (t = 1) in a depth 3 tree:
//
//	3              root
//	            /        \
//	2       .               x
//	      /   \           /   \
//	1    .     .     [n-1 anc]  e(1)
//	    / \   / \      / \     /  \
//	0  0   1 2   3    4   5   6    e
func (t *Tree) Append(leaf keccak.Hash) (Applied, error) {
	if !t.IsInitialized() {
		return Applied{}, ErrTreeNotInitialized
	}
	if leaf == keccak.Empty {
		return Applied{}, ErrCannotAppendEmpty
	}
	rmp := &t.RightMostPath
	n := rmp.Index
	if uint64(n) >= t.Capacity() {
		return Applied{}, fmt.Errorf("%w: %d leaves", ErrTreeFull, n)
	}
	if n == 0 {
		return t.appendFirst(leaf)
	}

	intersection := uint32(bits.TrailingZeros32(n))
	prev := n - 1
	node := leaf
	joined := rmp.Leaf
	path := make([]keccak.Hash, t.MaxDepth)

	for i := uint32(0); i < t.MaxDepth; i++ {
		path[i] = node
		switch {
		case i < intersection:
			empty := keccak.EmptyNode(i)
			keccak.HashToParent(&joined, rmp.Proof[i], (prev>>i)&1 == 0)
			keccak.HashToParent(&node, empty, true)
			rmp.Proof[i] = empty
		case i == intersection:
			keccak.HashToParent(&node, joined, false)
			rmp.Proof[i] = joined
		default:
			keccak.HashToParent(&node, rmp.Proof[i], (prev>>i)&1 == 0)
		}
	}

	t.incrementActive()
	cl := &t.ChangeLogs[t.ActiveIndex]
	cl.Root = node
	copy(cl.Path, path)
	cl.Index = n

	rmp.Index = n + 1
	rmp.Leaf = leaf
	return t.applied(0), nil
}

// appendFirst writes leaf 0 of an empty tree. The rightmost proof is still
// all empty subtrees from Initialize.
func (t *Tree) appendFirst(leaf keccak.Hash) (Applied, error) {
	rmp := &t.RightMostPath
	if got := recomputeRoot(keccak.Empty, 0, rmp.Proof); got != keccak.EmptyNode(t.MaxDepth) || got != t.CurrentRoot() {
		return Applied{}, fmt.Errorf("%w: tree has no appended leaves but its root is not empty", ErrHashMismatch)
	}
	t.pushChangeLog(leaf, rmp.Proof, 0)
	rmp.Index = 1
	rmp.Leaf = leaf
	return t.applied(0), nil
}

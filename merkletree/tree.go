// Package merkletree builds fixed depth binary keccak trees over an explicit
// leaf set and produces inclusion proofs for them.
//
// This is the view of a party holding every leaf (an indexer, a test
// harness). The on-chain account never holds the full tree; it must however
// agree with this package bit for bit.
//
// The tree has 2^depth leaf slots. Leaves beyond the supplied set are Empty
// (all zero) and interior nodes are H(left || right). For depth 3 and three
// leaves a, b, c:
//
//	3                 root
//	               /        \
//	2         n20             e(2)
//	         /    \          /    \
//	1     n10      n11     e(1)   e(1)
//	     /  \     /   \    / \    /  \
//	0   a    b   c     0  0   0  0    0
//
// Only the occupied prefix of each level is materialized; everything to the
// right of it is an empty subtree whose value comes from keccak.EmptyNode, so
// deep trees with few leaves stay cheap.
package merkletree

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-cmtree/keccak"
)

var (
	ErrDepthInvalid    = errors.New("tree depth must be between 1 and the maximum supported depth")
	ErrTooManyLeaves   = errors.New("more leaves than the tree has slots")
	ErrIndexOutOfRange = errors.New("leaf index out of range for the tree depth")
	ErrProofLength     = errors.New("proof length does not match the tree depth")
	ErrCanopyDepth     = errors.New("canopy depth exceeds the tree depth")
)

type Tree struct {
	depth uint32
	// levels[h] holds the materialized nodes at height h, left to right.
	// levels[depth] always holds exactly the root.
	levels [][]keccak.Hash
}

// Build constructs the tree for leaves right padded with Empty to 2^depth
// slots.
func Build(leaves []keccak.Hash, depth uint32) (*Tree, error) {
	if depth == 0 || depth > keccak.MaxSupportedDepth {
		return nil, fmt.Errorf("%w: %d", ErrDepthInvalid, depth)
	}
	if uint64(len(leaves)) > uint64(1)<<depth {
		return nil, fmt.Errorf("%w: %d leaves, %d slots", ErrTooManyLeaves, len(leaves), uint64(1)<<depth)
	}

	t := &Tree{
		depth:  depth,
		levels: make([][]keccak.Hash, depth+1),
	}
	t.levels[0] = make([]keccak.Hash, len(leaves))
	copy(t.levels[0], leaves)

	for h := uint32(1); h <= depth; h++ {
		below := t.levels[h-1]
		n := (len(below) + 1) / 2
		if h == depth {
			n = 1
		}
		level := make([]keccak.Hash, n)
		for i := range level {
			level[i] = keccak.Parent(t.node(h-1, uint64(2*i)), t.node(h-1, uint64(2*i+1)))
		}
		t.levels[h] = level
	}
	return t, nil
}

// Root returns the root of the tree built over leaves.
func Root(leaves []keccak.Hash, depth uint32) (keccak.Hash, error) {
	t, err := Build(leaves, depth)
	if err != nil {
		return keccak.Hash{}, err
	}
	return t.Root(), nil
}

// Proof returns the leaf to root sibling path for index in the tree built
// over leaves.
func Proof(leaves []keccak.Hash, depth uint32, index uint32) ([]keccak.Hash, error) {
	t, err := Build(leaves, depth)
	if err != nil {
		return nil, err
	}
	return t.Proof(index)
}

func (t *Tree) Depth() uint32 { return t.depth }

func (t *Tree) Root() keccak.Hash { return t.levels[t.depth][0] }

// LeafCount is the number of materialized leaves: one past the highest leaf
// ever supplied or set.
func (t *Tree) LeafCount() uint64 { return uint64(len(t.levels[0])) }

// Leaf returns the leaf at index, Empty if it was never set.
func (t *Tree) Leaf(index uint32) (keccak.Hash, error) {
	if err := t.checkIndex(index); err != nil {
		return keccak.Hash{}, err
	}
	return t.node(0, uint64(index)), nil
}

// Leaves returns a copy of the materialized leaves.
func (t *Tree) Leaves() []keccak.Hash {
	out := make([]keccak.Hash, len(t.levels[0]))
	copy(out, t.levels[0])
	return out
}

// Node returns the node at height h and position i (0 is leftmost).
func (t *Tree) Node(h uint32, i uint64) keccak.Hash {
	return t.node(h, i)
}

// SetLeaf replaces the leaf at index and recomputes its ancestors. Setting a
// leaf beyond the materialized range extends every level as needed.
func (t *Tree) SetLeaf(index uint32, leaf keccak.Hash) error {
	if err := t.checkIndex(index); err != nil {
		return err
	}

	pos := uint64(index)
	t.ensure(0, pos)
	t.levels[0][pos] = leaf
	for h := uint32(1); h <= t.depth; h++ {
		pos >>= 1
		t.ensure(h, pos)
		t.levels[h][pos] = keccak.Parent(t.node(h-1, 2*pos), t.node(h-1, 2*pos+1))
	}
	return nil
}

// Canopy returns the top canopyDepth levels below the root in heap order:
// heap index k (root is 1) is stored at k-2. This is the layout the tree
// account caches.
func (t *Tree) Canopy(canopyDepth uint32) ([]keccak.Hash, error) {
	if canopyDepth > t.depth {
		return nil, fmt.Errorf("%w: %d > %d", ErrCanopyDepth, canopyDepth, t.depth)
	}
	if canopyDepth == 0 {
		return nil, nil
	}
	count := (uint64(1) << (canopyDepth + 1)) - 2
	out := make([]keccak.Hash, count)
	for k := uint64(2); k < count+2; k++ {
		level := uint32(bitLen(k) - 1)
		out[k-2] = t.node(t.depth-level, k-(uint64(1)<<level))
	}
	return out, nil
}

func (t *Tree) checkIndex(index uint32) error {
	if uint64(index) >= uint64(1)<<t.depth {
		return fmt.Errorf("%w: %d >= 2^%d", ErrIndexOutOfRange, index, t.depth)
	}
	return nil
}

func (t *Tree) node(h uint32, i uint64) keccak.Hash {
	if i < uint64(len(t.levels[h])) {
		return t.levels[h][i]
	}
	return keccak.EmptyNode(h)
}

// ensure materializes level h up to and including position i, filling with
// empty subtree values.
func (t *Tree) ensure(h uint32, i uint64) {
	for uint64(len(t.levels[h])) <= i {
		t.levels[h] = append(t.levels[h], keccak.EmptyNode(h))
	}
}

func bitLen(v uint64) int {
	n := 0
	for ; v != 0; v >>= 1 {
		n++
	}
	return n
}

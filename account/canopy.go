package account

import (
	"fmt"
	"math/bits"

	"github.com/forestrie/go-cmtree/cmt"
	"github.com/forestrie/go-cmtree/keccak"
)

// The canopy stores nodes by heap index: the root is 1 (and is not stored),
// the children of k are 2k and 2k+1, and node k lives at Canopy[k-2]. A node
// at heap index k has height maxDepth - floor(log2(k)).
//
// An Empty canopy entry is read as the empty subtree for its height, so a
// freshly allocated canopy is already correct for an empty tree.

// FillProof extends a proof truncated by up to CanopyDepth levels to the
// full tree depth using canopy nodes. A full depth proof is returned as is.
// The result is always a new slice.
func (a *Account) FillProof(index uint32, proof []keccak.Hash) ([]keccak.Hash, error) {
	depth := a.Header.MaxDepth
	canopyDepth := a.CanopyDepth()
	n := uint32(len(proof))
	if n > depth || n+canopyDepth < depth {
		return nil, fmt.Errorf("%w: got %d, want %d (or %d with canopy)",
			cmt.ErrProofLength, n, depth, depth-canopyDepth)
	}
	if uint64(index) >= uint64(1)<<depth {
		return nil, fmt.Errorf("%w: %d", cmt.ErrLeafIndexOutOfBounds, index)
	}

	full := make([]keccak.Hash, n, depth)
	copy(full, proof)

	heap := ((uint64(1) << depth) + uint64(index)) >> n
	for heap > 1 {
		full = append(full, a.canopyNode(heap^1))
		heap >>= 1
	}
	return full, nil
}

// UpdateCanopy writes the canopy levels of an accepted change.
func (a *Account) UpdateCanopy(ev cmt.ChangeLogEvent) {
	limit := uint64(1) << (a.CanopyDepth() + 1)
	for i := len(ev.Path) - 1; i >= 0; i-- {
		pn := ev.Path[i]
		if pn.HeapIndex == 1 {
			continue
		}
		if uint64(pn.HeapIndex) >= limit {
			break
		}
		a.Canopy[pn.HeapIndex-2] = pn.Node
	}
}

// AppendCanopyNodes sets consecutive nodes of the lowest canopy level,
// starting at position start on that level, and recomputes the canopy nodes
// above them. Used to load a tree prepared elsewhere before
// InitializeWithRoot.
func (a *Account) AppendCanopyNodes(start uint32, nodes []keccak.Hash) error {
	canopyDepth := a.CanopyDepth()
	if canopyDepth == 0 {
		return ErrCanopyNotAllocated
	}
	if len(nodes) == 0 {
		return nil
	}
	width := uint64(1) << canopyDepth
	if uint64(start)+uint64(len(nodes)) > width {
		return fmt.Errorf("%w: %d nodes from %d, level holds %d", ErrCanopyRange, len(nodes), start, width)
	}

	first := width + uint64(start)
	last := first + uint64(len(nodes)) - 1
	for i, node := range nodes {
		a.Canopy[first+uint64(i)-2] = node
	}

	height := a.Header.MaxDepth - canopyDepth
	for first >= 4 {
		first >>= 1
		last >>= 1
		height++
		for k := first; k <= last; k++ {
			a.Canopy[k-2] = keccak.Parent(a.canopyValue(2*k, height-1), a.canopyValue(2*k+1, height-1))
		}
	}
	return nil
}

// CheckCanopyRoot confirms the top canopy level hashes to root. An account
// without a canopy always passes.
func (a *Account) CheckCanopyRoot(root keccak.Hash) error {
	if len(a.Canopy) == 0 {
		return nil
	}
	height := a.Header.MaxDepth - 1
	got := keccak.Parent(a.canopyValue(2, height), a.canopyValue(3, height))
	if got != root {
		return fmt.Errorf("%w: canopy gives %s, root is %s", ErrCanopyRootMismatch, got, root)
	}
	return nil
}

// CheckCanopyNoNodesToRight confirms no canopy node covers only leaves to
// the right of index.
func (a *Account) CheckCanopyNoNodesToRight(index uint32) error {
	canopyDepth := a.CanopyDepth()
	if canopyDepth == 0 {
		return nil
	}
	heap := ((uint64(1) << a.Header.MaxDepth) + uint64(index)) >> (a.Header.MaxDepth - canopyDepth)
	// Walk to each subtree that begins right of the current node, stopping
	// when heap is the rightmost node of its level.
	for heap&(heap+1) != 0 {
		heap++
		heap >>= uint(bits.TrailingZeros64(heap))
		if a.Canopy[heap-2] != keccak.Empty {
			return fmt.Errorf("%w: heap index %d", ErrCanopyNodesToRight, heap)
		}
	}
	return nil
}

// canopyNode returns the value for heap, inferring empty subtrees.
func (a *Account) canopyNode(heap uint64) keccak.Hash {
	height := a.Header.MaxDepth - uint32(bits.Len64(heap)-1)
	return a.canopyValue(heap, height)
}

func (a *Account) canopyValue(heap uint64, height uint32) keccak.Hash {
	if node := a.Canopy[heap-2]; node != keccak.Empty {
		return node
	}
	return keccak.EmptyNode(height)
}

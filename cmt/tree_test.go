package cmt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
	"github.com/forestrie/go-cmtree/merkletree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLeaf(i int) keccak.Hash {
	return keccak.Sum([]byte(fmt.Sprintf("leaf-%d", i)))
}

// harness drives a Tree and a fully materialized reference tree in step.
type harness struct {
	t    *testing.T
	tree *Tree
	ref  *merkletree.Tree
}

func newHarness(t *testing.T, depth, bufferSize uint32) *harness {
	t.Helper()
	tree, err := New(depth, bufferSize)
	require.NoError(t, err)
	_, err = tree.Initialize()
	require.NoError(t, err)
	ref, err := merkletree.Build(nil, depth)
	require.NoError(t, err)
	return &harness{t: t, tree: tree, ref: ref}
}

func (h *harness) append(leaf keccak.Hash) Applied {
	h.t.Helper()
	applied, err := h.tree.Append(leaf)
	require.NoError(h.t, err)
	require.NoError(h.t, h.ref.SetLeaf(applied.ChangeLog.Index, leaf))
	return applied
}

func (h *harness) appendN(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.append(testLeaf(i))
	}
}

func (h *harness) proof(index uint32) []keccak.Hash {
	h.t.Helper()
	proof, err := h.ref.Proof(index)
	require.NoError(h.t, err)
	return proof
}

func (h *harness) leaf(index uint32) keccak.Hash {
	h.t.Helper()
	leaf, err := h.ref.Leaf(index)
	require.NoError(h.t, err)
	return leaf
}

// replace updates index using a proof fresh from the reference tree.
func (h *harness) replace(index uint32, leaf keccak.Hash) {
	h.t.Helper()
	_, err := h.tree.SetLeaf(index, h.leaf(index), leaf, h.proof(index), Reconcile{})
	require.NoError(h.t, err)
	require.NoError(h.t, h.ref.SetLeaf(index, leaf))
}

// check asserts the tree agrees with the reference.
func (h *harness) check() {
	h.t.Helper()
	require.Equal(h.t, h.ref.Root(), h.tree.CurrentRoot())
	rmp := h.tree.RightMostPath
	if rmp.Index == 0 {
		return
	}
	assert.Equal(h.t, h.leaf(rmp.Index-1), rmp.Leaf)
	assert.Equal(h.t, h.proof(rmp.Index-1), rmp.Proof)
}

type snapshot struct {
	root   keccak.Hash
	seq    uint64
	active uint64
	size   uint64
	rmp    Path
}

func snap(tree *Tree) snapshot {
	return snapshot{
		root:   tree.CurrentRoot(),
		seq:    tree.SequenceNumber,
		active: tree.ActiveIndex,
		size:   tree.BufferSize,
		rmp:    tree.RightMostPath.Clone(),
	}
}

func TestNewShape(t *testing.T) {
	_, err := New(0, 8)
	assert.ErrorIs(t, err, ErrTreeShape)
	_, err = New(31, 8)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = New(3, 0)
	assert.ErrorIs(t, err, ErrTreeShape)

	tree, err := New(3, 8)
	require.NoError(t, err)
	assert.False(t, tree.IsInitialized())
	_, err = tree.Append(testLeaf(0))
	assert.ErrorIs(t, err, ErrTreeNotInitialized)
}

func TestInitialize(t *testing.T) {
	tree, err := New(5, 8)
	require.NoError(t, err)
	applied, err := tree.Initialize()
	require.NoError(t, err)

	assert.Equal(t, keccak.EmptyNode(5), tree.CurrentRoot())
	assert.Equal(t, keccak.EmptyNode(5), applied.ChangeLog.Root)
	assert.Equal(t, uint64(0), tree.SequenceNumber)
	assert.Equal(t, uint64(0), tree.ActiveIndex)
	assert.Equal(t, uint64(1), tree.BufferSize)
	for i, node := range tree.RightMostPath.Proof {
		assert.Equal(t, keccak.EmptyNode(uint32(i)), node)
	}

	_, err = tree.Initialize()
	assert.ErrorIs(t, err, ErrTreeAlreadyInitialized)
}

func TestAppendMatchesReference(t *testing.T) {
	h := newHarness(t, 5, 8)
	for i := 0; i < 32; i++ {
		applied := h.append(testLeaf(i))
		assert.Equal(t, uint32(i), applied.ChangeLog.Index)
		assert.Equal(t, testLeaf(i), applied.ChangeLog.Leaf())
		h.check()
	}
	assert.Equal(t, uint64(32), h.tree.LeafCount())

	_, err := h.tree.Append(testLeaf(99))
	assert.ErrorIs(t, err, ErrTreeFull)
}

func TestAppendEmptyRejected(t *testing.T) {
	h := newHarness(t, 3, 8)
	before := snap(h.tree)
	_, err := h.tree.Append(keccak.Empty)
	assert.ErrorIs(t, err, ErrCannotAppendEmpty)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, before, snap(h.tree))
}

func TestMonotonicSequence(t *testing.T) {
	h := newHarness(t, 6, 8)
	for k := 1; k <= 40; k++ {
		h.append(testLeaf(k))
		assert.Equal(t, uint64(k), h.tree.SequenceNumber)
		assert.Equal(t, uint64(k%8), h.tree.ActiveIndex)
		assert.Equal(t, uint64(min(k+1, 8)), h.tree.BufferSize)
		assert.Less(t, h.tree.ActiveIndex, h.tree.BufferSize)
	}
}

func TestSetLeafWithCurrentProof(t *testing.T) {
	h := newHarness(t, 3, 8)
	h.appendN(3)
	r0 := h.tree.CurrentRoot()

	old := h.leaf(1)
	proof := h.proof(1)
	updated := keccak.Sum([]byte("updated"))
	applied, err := h.tree.SetLeaf(1, old, updated, proof, Reconcile{})
	require.NoError(t, err)
	require.NoError(t, h.ref.SetLeaf(1, updated))

	assert.Equal(t, 0, applied.FastForward)
	assert.NotEqual(t, r0, h.tree.CurrentRoot())
	assert.True(t, merkletree.Verify(updated, 1, proof, h.tree.CurrentRoot()))
	assert.False(t, merkletree.Verify(old, 1, proof, h.tree.CurrentRoot()))
	h.check()
}

func TestConcurrentWritersFastForward(t *testing.T) {
	h := newHarness(t, 4, 16)
	h.appendN(12)

	// every writer reads the same root
	proofs := make([][]keccak.Hash, 12)
	olds := make([]keccak.Hash, 12)
	for i := range proofs {
		proofs[i] = h.proof(uint32(i))
		olds[i] = h.leaf(uint32(i))
	}

	for i := 0; i < 12; i++ {
		updated := keccak.Sum([]byte(fmt.Sprintf("updated-%d", i)))
		applied, err := h.tree.SetLeaf(uint32(i), olds[i], updated, proofs[i], Reconcile{})
		require.NoError(t, err, "writer %d", i)
		assert.Equal(t, i, applied.FastForward)
		require.NoError(t, h.ref.SetLeaf(uint32(i), updated))
		h.check()
	}
}

func TestStalenessBoundary(t *testing.T) {
	const bufferSize = 8
	tests := []struct {
		name      string
		intervene int
		wantErr   bool
	}{
		{"current", 0, false},
		{"one back", 1, false},
		{"oldest retained", bufferSize - 1, false},
		{"evicted", bufferSize, true},
		{"long evicted", bufferSize + 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 4, bufferSize)
			h.appendN(10)
			require.Equal(t, uint64(bufferSize), h.tree.BufferSize)

			old := h.leaf(0)
			proof := h.proof(0)
			for k := 0; k < tt.intervene; k++ {
				h.replace(5, keccak.Sum([]byte(fmt.Sprintf("other-%d", k))))
			}

			before := snap(h.tree)
			applied, err := h.tree.SetLeaf(0, old, testLeaf(100), proof, Reconcile{})
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.intervene, applied.FastForward)
				require.NoError(t, h.ref.SetLeaf(0, testLeaf(100)))
				h.check()
				return
			}

			assert.ErrorIs(t, err, ErrStaleProof)
			assert.ErrorIs(t, err, ErrRootNotFound)
			var reject *RejectError
			require.True(t, errors.As(err, &reject))
			assert.Equal(t, -1, reject.MatchedSlot)
			assert.Equal(t, "stale_proof", reject.Kind())
			assert.Equal(t, before.root, reject.CurrentRoot)
			assert.Equal(t, merkletree.RecomputeRoot(old, 0, proof), reject.CandidateRoot)
			assert.Equal(t, before, snap(h.tree))
		})
	}
}

func TestLeafContentsModified(t *testing.T) {
	h := newHarness(t, 4, 8)
	h.appendN(6)

	old := h.leaf(2)
	proof := h.proof(2)

	// first writer wins
	h.replace(2, keccak.Sum([]byte("first")))
	before := snap(h.tree)

	_, err := h.tree.SetLeaf(2, old, keccak.Sum([]byte("second")), proof, Reconcile{})
	assert.ErrorIs(t, err, ErrLeafContentsModified)
	assert.ErrorIs(t, err, ErrStaleProof)
	var reject *RejectError
	require.True(t, errors.As(err, &reject))
	assert.Equal(t, "leaf_modified", reject.Kind())
	assert.GreaterOrEqual(t, reject.MatchedSlot, 0)
	assert.Equal(t, before, snap(h.tree))
}

func TestInferredProof(t *testing.T) {
	build := func(t *testing.T) (*harness, keccak.Hash, []keccak.Hash) {
		h := newHarness(t, 3, 2)
		h.appendN(8)
		old := h.leaf(0)
		proof := h.proof(0)
		for k := 0; k < 3; k++ {
			h.replace(4, keccak.Sum([]byte(fmt.Sprintf("other-%d", k))))
		}
		return h, old, proof
	}

	t.Run("disabled", func(t *testing.T) {
		h, old, proof := build(t)
		_, err := h.tree.SetLeaf(0, old, testLeaf(50), proof, Reconcile{})
		assert.ErrorIs(t, err, ErrRootNotFound)
	})

	t.Run("enabled", func(t *testing.T) {
		h, old, proof := build(t)
		applied, err := h.tree.SetLeaf(0, old, testLeaf(50), proof, Reconcile{AllowInferred: true})
		require.NoError(t, err)
		assert.Equal(t, 2, applied.FastForward)
		require.NoError(t, h.ref.SetLeaf(0, testLeaf(50)))
		h.check()
	})

	t.Run("enabled but unrecoverable", func(t *testing.T) {
		h, old, proof := build(t)
		h.replace(1, testLeaf(60))
		h.replace(3, testLeaf(61))
		// the changes to leaves 1 and 3 are evicted and what they did to
		// the proof cannot be replayed
		h.replace(6, testLeaf(62))
		h.replace(7, testLeaf(63))
		before := snap(h.tree)
		_, err := h.tree.SetLeaf(0, old, testLeaf(50), proof, Reconcile{AllowInferred: true})
		assert.ErrorIs(t, err, ErrRootNotFound)
		assert.Equal(t, before, snap(h.tree))
	})
}

func TestSetLeafInputErrors(t *testing.T) {
	h := newHarness(t, 3, 8)
	h.appendN(3)
	proof := h.proof(1)

	_, err := h.tree.SetLeaf(1, h.leaf(1), testLeaf(9), proof[:2], Reconcile{})
	assert.ErrorIs(t, err, ErrProofLength)

	_, err = h.tree.SetLeaf(8, keccak.Empty, testLeaf(9), proof, Reconcile{})
	assert.ErrorIs(t, err, ErrLeafIndexOutOfBounds)

	// beyond the next append position
	_, err = h.tree.SetLeaf(4, keccak.Empty, testLeaf(9), h.proof(4), Reconcile{})
	assert.ErrorIs(t, err, ErrLeafIndexOutOfBounds)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSetLeafAtAppendPosition(t *testing.T) {
	h := newHarness(t, 3, 8)
	h.appendN(3)

	_, err := h.tree.SetLeaf(3, keccak.Empty, testLeaf(30), h.proof(3), Reconcile{})
	require.NoError(t, err)
	require.NoError(t, h.ref.SetLeaf(3, testLeaf(30)))
	assert.Equal(t, uint32(4), h.tree.RightMostPath.Index)
	h.check()

	h.append(testLeaf(31))
	h.check()
}

func TestRightMostPathTracksUpdates(t *testing.T) {
	h := newHarness(t, 5, 8)
	h.appendN(13)
	for _, i := range []uint32{0, 12, 7, 11, 3, 12, 8} {
		h.replace(i, keccak.Sum([]byte(fmt.Sprintf("r-%d", i))))
		h.check()
	}
	for i := 13; i < 20; i++ {
		h.append(testLeaf(i))
		h.check()
	}
}

func TestProveLeaf(t *testing.T) {
	h := newHarness(t, 4, 8)
	h.appendN(7)
	proof := h.proof(3)
	leaf := h.leaf(3)
	h.replace(6, testLeaf(70))

	before := snap(h.tree)
	require.NoError(t, h.tree.ProveLeaf(3, leaf, proof, Reconcile{}))
	assert.Equal(t, before, snap(h.tree))

	err := h.tree.ProveLeaf(3, testLeaf(4), proof, Reconcile{})
	assert.ErrorIs(t, err, ErrStaleProof)
}

func TestFillEmptyOrAppend(t *testing.T) {
	h := newHarness(t, 4, 8)
	h.appendN(4)

	// two writers race for slot 4
	proof := h.proof(4)
	applied, err := h.tree.FillEmptyOrAppend(4, testLeaf(40), proof, Reconcile{})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), applied.ChangeLog.Index)
	require.NoError(t, h.ref.SetLeaf(4, testLeaf(40)))

	applied, err = h.tree.FillEmptyOrAppend(4, testLeaf(41), proof, Reconcile{})
	require.NoError(t, err)
	assert.Equal(t, uint32(5), applied.ChangeLog.Index)
	require.NoError(t, h.ref.SetLeaf(5, testLeaf(41)))
	h.check()

	_, err = h.tree.FillEmptyOrAppend(9, testLeaf(42), h.proof(9), Reconcile{})
	assert.ErrorIs(t, err, ErrLeafIndexOutOfBounds)
}

func TestInitializeWithRoot(t *testing.T) {
	leaves := make([]keccak.Hash, 5)
	for i := range leaves {
		leaves[i] = testLeaf(i)
	}
	ref, err := merkletree.Build(leaves, 4)
	require.NoError(t, err)
	proof, err := ref.Proof(4)
	require.NoError(t, err)

	tree, err := New(4, 8)
	require.NoError(t, err)

	_, err = tree.InitializeWithRoot(ref.Root(), testLeaf(99), 4, proof)
	assert.ErrorIs(t, err, ErrHashMismatch)
	assert.False(t, tree.IsInitialized())

	applied, err := tree.InitializeWithRoot(ref.Root(), leaves[4], 4, proof)
	require.NoError(t, err)
	assert.Equal(t, ref.Root(), applied.ChangeLog.Root)
	assert.Equal(t, uint64(1), tree.SequenceNumber)
	assert.Equal(t, uint32(5), tree.RightMostPath.Index)

	h := &harness{t: t, tree: tree, ref: ref}
	h.check()
	h.append(testLeaf(5))
	h.replace(1, testLeaf(11))
	h.check()

	_, err = tree.InitializeWithRoot(ref.Root(), leaves[4], 4, proof)
	assert.ErrorIs(t, err, ErrTreeAlreadyInitialized)
}

func TestCritbit(t *testing.T) {
	tests := []struct {
		a, b  uint32
		depth uint32
		want  uint32
	}{
		{0, 1, 3, 0},
		{2, 3, 3, 0},
		{1, 2, 3, 1},
		{0, 7, 3, 2},
		{3, 4, 3, 2},
		{0, 1 << 29, 30, 29},
	}
	for _, tt := range tests {
		got, ok := critbit(tt.a, tt.b, tt.depth)
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "%d %d", tt.a, tt.b)
		got, ok = critbit(tt.b, tt.a, tt.depth)
		require.True(t, ok)
		assert.Equal(t, tt.want, got)
	}

	// no critical bit for indices equal in the low depth bits
	for _, pair := range [][2]uint32{{5, 5}, {1, 1 | 1<<3}, {0, 1 << 3}} {
		_, ok := critbit(pair[0], pair[1], 3)
		assert.False(t, ok, "%d %d", pair[0], pair[1])
	}
}

func TestCorruptChangeLogIndex(t *testing.T) {
	h := newHarness(t, 3, 8)
	h.appendN(4)
	old := h.leaf(1)
	proof := h.proof(1)
	h.replace(2, keccak.Sum([]byte("moved")))

	// the newest change log claims a leaf beyond the tree that aliases leaf 1
	h.tree.CurrentChangeLog().Index = 1 | 1<<3
	before := snap(h.tree)

	var err error
	require.NotPanics(t, func() {
		_, err = h.tree.SetLeaf(1, old, keccak.Sum([]byte("next")), proof, Reconcile{})
	})
	assert.ErrorIs(t, err, ErrCorruptChangeLog)
	assert.Equal(t, before, snap(h.tree))
}

func TestChangeLogEvent(t *testing.T) {
	h := newHarness(t, 3, 8)
	h.appendN(3)
	applied := h.append(testLeaf(3))

	treeID := address.Address{1}
	ev := NewChangeLogEvent(treeID, applied.SequenceNumber, applied.ChangeLog)
	assert.Equal(t, treeID, ev.TreeID)
	assert.Equal(t, uint64(4), ev.Seq)
	assert.Equal(t, uint32(3), ev.Index)
	require.Len(t, ev.Path, 4)

	// leaf 3 of a depth 3 tree is heap 11
	heaps := []uint32{11, 5, 2, 1}
	for i, node := range ev.Path {
		assert.Equal(t, heaps[i], node.HeapIndex)
	}
	assert.Equal(t, testLeaf(3), ev.Leaf())
	assert.Equal(t, h.tree.CurrentRoot(), ev.Root())
	assert.Equal(t, h.ref.Node(1, 1), ev.Path[1].Node)
}

func TestClone(t *testing.T) {
	h := newHarness(t, 3, 4)
	h.appendN(2)
	clone := h.tree.Clone()

	h.append(testLeaf(2))
	assert.NotEqual(t, h.tree.CurrentRoot(), clone.CurrentRoot())
	assert.Equal(t, uint32(2), clone.RightMostPath.Index)
	assert.Equal(t, uint64(2), clone.SequenceNumber)

	_, err := clone.Append(testLeaf(2))
	require.NoError(t, err)
	assert.Equal(t, h.tree.CurrentRoot(), clone.CurrentRoot())
}

func TestSetLeafWithExplicitRoot(t *testing.T) {
	h := newHarness(t, 4, 8)
	h.appendN(6)

	read := h.tree.CurrentRoot()
	old := h.leaf(1)
	proof := h.proof(1)
	h.replace(3, testLeaf(30))
	h.replace(5, testLeaf(50))

	t.Run("unknown root", func(t *testing.T) {
		before := snap(h.tree)
		_, err := h.tree.SetLeaf(1, old, testLeaf(10), proof, Reconcile{Root: testLeaf(999)})
		assert.ErrorIs(t, err, ErrRootNotFound)
		var reject *RejectError
		require.True(t, errors.As(err, &reject))
		assert.Equal(t, testLeaf(999), reject.CandidateRoot)
		assert.Equal(t, before, snap(h.tree))
	})

	t.Run("root the proof was read against", func(t *testing.T) {
		applied, err := h.tree.SetLeaf(1, old, testLeaf(10), proof, Reconcile{Root: read})
		require.NoError(t, err)
		assert.Equal(t, 2, applied.FastForward)
		require.NoError(t, h.ref.SetLeaf(1, testLeaf(10)))
		h.check()
	})
}

func TestChangeLogEventCodec(t *testing.T) {
	h := newHarness(t, 4, 8)
	h.appendN(5)
	applied := h.append(testLeaf(77))
	ev := NewChangeLogEvent(address.Address{7}, applied.SequenceNumber, applied.ChangeLog)

	data, err := ev.MarshalBinary()
	require.NoError(t, err)
	again, err := ev.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	var got ChangeLogEvent
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, ev, got)

	err = got.UnmarshalBinary(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrEventDecode)
	err = got.UnmarshalBinary([]byte{0xa0})
	assert.ErrorIs(t, err, ErrEventDecode)
}

package proofsource

import (
	"context"
	"testing"

	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/cmttesting"
	"github.com/forestrie/go-cmtree/engine"
	"github.com/forestrie/go-cmtree/keccak"
	"github.com/forestrie/go-cmtree/treestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexerHarness struct {
	tc      cmttesting.TestContext
	treeID  address.Address
	account *account.Account
	engine  *engine.Engine
	indexer *LocalIndexer
	events  []engine.ChangeLogEvent
}

func newIndexerHarness(t *testing.T, depth, bufferSize, canopyDepth uint32) *indexerHarness {
	tc := cmttesting.NewTestContext(t, cmttesting.TestConfig{TestLabelPrefix: "proofsource"})
	g := cmttesting.NewTestGenerator(t, 11)
	h := &indexerHarness{tc: tc, treeID: g.Address()}

	var err error
	h.account, err = account.New(account.Config{
		MaxDepth:      depth,
		MaxBufferSize: bufferSize,
		CanopyDepth:   canopyDepth,
	}, account.WithUncheckedShape())
	require.NoError(t, err)
	h.engine = engine.New(tc.GetLog(), engine.WithTreeID(h.treeID))
	_, err = h.engine.Initialize(h.account)
	require.NoError(t, err)

	h.indexer, err = NewLocalIndexer(tc.GetLog(), IndexerConfig{
		TreeID:      h.treeID,
		MaxDepth:    depth,
		CanopyDepth: canopyDepth,
	})
	require.NoError(t, err)
	return h
}

func (h *indexerHarness) apply(t *testing.T, out engine.Outcome) {
	t.Helper()
	h.events = append(h.events, out.Event)
	require.NoError(t, h.indexer.Apply(out.Event))
	require.Equal(t, h.account.CurrentRoot(), h.indexer.Root())
}

func (h *indexerHarness) appendN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		out, err := h.engine.Append(h.account, cmttesting.NumberedLeaf(uint64(i)))
		require.NoError(t, err)
		h.apply(t, out)
	}
}

func TestLocalIndexerServesUsableProofs(t *testing.T) {
	ctx := context.Background()
	h := newIndexerHarness(t, 6, 8, 2)
	h.appendN(t, 10)

	assetID := address.Address{7}
	require.NoError(t, h.indexer.Register(assetID, 3))

	p, err := h.indexer.GetAssetProof(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), p.LeafIndex)
	assert.Equal(t, h.treeID, p.TreeID)
	assert.Equal(t, cmttesting.NumberedLeaf(3), p.Leaf)
	assert.Len(t, p.Proof, 4)

	out, err := h.engine.Replace(h.account, engine.UpdateRequest{
		Root:        p.Root,
		LeafIndex:   p.LeafIndex,
		OldLeafHash: p.Leaf,
		NewLeafHash: cmttesting.NumberedLeaf(100),
		Proof:       p.Proof,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.FastForward)
	h.apply(t, out)
	assert.Equal(t, out.Event.Seq, h.indexer.Seq())
}

func TestLocalIndexerEmptySlotProof(t *testing.T) {
	h := newIndexerHarness(t, 4, 4, 0)
	h.appendN(t, 3)

	p, err := h.indexer.GetLeafProof(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, keccak.Empty, p.Leaf)
	assert.Len(t, p.Proof, 4)

	out, err := h.engine.FillEmptyOrAppend(h.account, p.Root, cmttesting.NumberedLeaf(50), 3, p.Proof)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), out.Event.Index)
	h.apply(t, out)
}

func TestLocalIndexerUnknownAsset(t *testing.T) {
	h := newIndexerHarness(t, 3, 2, 0)
	_, err := h.indexer.GetAssetProof(context.Background(), address.Address{1})
	assert.ErrorIs(t, err, ErrAssetNotFound)
	assert.Error(t, h.indexer.Register(address.Address{1}, 8))
}

func TestLocalIndexerEventOrdering(t *testing.T) {
	h := newIndexerHarness(t, 4, 4, 0)
	h.appendN(t, 2)

	// replaying an applied event is harmless
	require.NoError(t, h.indexer.Apply(h.events[0]))
	assert.Equal(t, uint64(2), h.indexer.Seq())

	out, err := h.engine.Append(h.account, cmttesting.NumberedLeaf(2))
	require.NoError(t, err)
	skipped := out.Event
	out, err = h.engine.Append(h.account, cmttesting.NumberedLeaf(3))
	require.NoError(t, err)
	assert.ErrorIs(t, h.indexer.Apply(out.Event), ErrEventGap)

	require.NoError(t, h.indexer.Apply(skipped))
	require.NoError(t, h.indexer.Apply(out.Event))
	assert.Equal(t, h.account.CurrentRoot(), h.indexer.Root())
}

func TestLocalIndexerRejectsBadEvents(t *testing.T) {
	h := newIndexerHarness(t, 4, 4, 0)
	h.appendN(t, 1)

	out, err := h.engine.Append(h.account, cmttesting.NumberedLeaf(1))
	require.NoError(t, err)

	foreign := out.Event
	foreign.TreeID = address.Address{9}
	assert.ErrorIs(t, h.indexer.Apply(foreign), ErrWrongTree)

	forged := out.Event
	forged.Path = append([]engine.PathNode(nil), out.Event.Path...)
	forged.Path[len(forged.Path)-1].Node = cmttesting.NumberedLeaf(99)
	assert.ErrorIs(t, h.indexer.Apply(forged), ErrDiverged)
}

func TestLocalIndexerCatchUp(t *testing.T) {
	ctx := context.Background()
	h := newIndexerHarness(t, 5, 4, 1)
	h.appendN(t, 6)

	store := treestore.NewBlobStore(h.tc.GetLog(), treestore.NewMemObjects())
	for _, ev := range h.events {
		data, err := ev.MarshalBinary()
		require.NoError(t, err)
		require.NoError(t, store.PutEvent(ctx, h.treeID, ev.Seq, data))
	}

	fresh, err := NewLocalIndexer(h.tc.GetLog(), IndexerConfig{TreeID: h.treeID, MaxDepth: 5, CanopyDepth: 1})
	require.NoError(t, err)
	n, err := fresh.CatchUp(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, h.account.CurrentRoot(), fresh.Root())

	n, err = fresh.CatchUp(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLocalIndexerSeeded(t *testing.T) {
	leaves := []keccak.Hash{cmttesting.NumberedLeaf(0), cmttesting.NumberedLeaf(1)}
	tc := cmttesting.NewTestContext(t, cmttesting.TestConfig{TestLabelPrefix: "proofsource"})
	x, err := NewLocalIndexer(tc.GetLog(), IndexerConfig{MaxDepth: 3, Leaves: leaves, Seq: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), x.Seq())

	p, err := x.GetLeafProof(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, leaves[1], p.Leaf)

	_, err = NewLocalIndexer(tc.GetLog(), IndexerConfig{MaxDepth: 3, CanopyDepth: 4})
	assert.Error(t, err)
}

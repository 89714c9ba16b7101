package cmttesting

import (
	"testing"

	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/cmt"
	"github.com/forestrie/go-cmtree/keccak"
	"github.com/forestrie/go-cmtree/merkletree"
	"github.com/stretchr/testify/require"
)

// TreeFixture pairs a tree account with a full reference copy of its leaves.
// Feed it every accepted change log event with Track.
type TreeFixture struct {
	T       *testing.T
	Account *account.Account
	Ref     *merkletree.Tree
}

// NewTreeFixture returns an initialized, empty tree. Shapes are not checked
// against the remote program's list.
func NewTreeFixture(t *testing.T, cfg account.Config) *TreeFixture {
	t.Helper()
	a, err := account.New(cfg, account.WithUncheckedShape())
	require.NoError(t, err)
	_, err = a.Tree.Initialize()
	require.NoError(t, err)
	ref, err := merkletree.Build(nil, cfg.MaxDepth)
	require.NoError(t, err)
	return &TreeFixture{T: t, Account: a, Ref: ref}
}

// Track applies an accepted change to the reference and checks both trees
// agree on the root.
func (f *TreeFixture) Track(ev cmt.ChangeLogEvent) {
	f.T.Helper()
	require.NoError(f.T, f.Ref.SetLeaf(ev.Index, ev.Leaf()))
	require.Equal(f.T, f.Ref.Root(), ev.Root())
}

// Proof is the full depth proof for index against the reference.
func (f *TreeFixture) Proof(index uint32) []keccak.Hash {
	f.T.Helper()
	proof, err := f.Ref.Proof(index)
	require.NoError(f.T, err)
	return proof
}

// TruncatedProof omits the levels the account canopy supplies.
func (f *TreeFixture) TruncatedProof(index uint32) []keccak.Hash {
	f.T.Helper()
	proof, err := f.Ref.TruncatedProof(index, f.Account.CanopyDepth())
	require.NoError(f.T, err)
	return proof
}

func (f *TreeFixture) Leaf(index uint32) keccak.Hash {
	f.T.Helper()
	leaf, err := f.Ref.Leaf(index)
	require.NoError(f.T, err)
	return leaf
}

// AppendDirect appends leaves straight to the tree, bypassing any engine,
// keeping the canopy and reference in step.
func (f *TreeFixture) AppendDirect(leaves ...keccak.Hash) {
	f.T.Helper()
	for _, leaf := range leaves {
		applied, err := f.Account.Tree.Append(leaf)
		require.NoError(f.T, err)
		ev := cmt.NewChangeLogEvent(f.Account.Header.Authority, applied.SequenceNumber, applied.ChangeLog)
		f.Account.UpdateCanopy(ev)
		f.Track(ev)
	}
}

// CheckRoot asserts the account root equals the reference root.
func (f *TreeFixture) CheckRoot() {
	f.T.Helper()
	require.Equal(f.T, f.Ref.Root(), f.Account.CurrentRoot())
}

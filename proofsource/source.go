// Package proofsource supplies the proofs writers need to update a tree.
//
// DASClient asks a remote indexer over JSON-RPC. LocalIndexer keeps a full
// copy of one tree in memory, in step with the change log events the
// sequencer emits, and answers from that.
package proofsource

import (
	"context"
	"errors"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
)

var (
	ErrAssetNotFound = errors.New("asset not known to the proof source")
	ErrBadResponse   = errors.New("malformed proof source response")
	ErrEventGap      = errors.New("change log event out of sequence")
	ErrDiverged      = errors.New("indexed tree root differs from the event root")
	ErrWrongTree     = errors.New("event belongs to a different tree")
)

// AssetProof locates an asset's leaf and proves it against Root.
type AssetProof struct {
	TreeID    address.Address
	Root      keccak.Hash
	Leaf      keccak.Hash
	LeafIndex uint32
	// Proof is sibling first. It may be truncated by the tree's canopy
	// depth.
	Proof []keccak.Hash
}

type Source interface {
	GetAssetProof(ctx context.Context, assetID address.Address) (*AssetProof, error)
}

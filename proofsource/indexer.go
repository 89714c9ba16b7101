package proofsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/cmt"
	"github.com/forestrie/go-cmtree/keccak"
	"github.com/forestrie/go-cmtree/merkletree"
	"github.com/forestrie/go-cmtree/treestore"
)

type IndexerConfig struct {
	TreeID   address.Address
	MaxDepth uint32
	// CanopyDepth truncates served proofs. Zero serves full proofs.
	CanopyDepth uint32
	// Leaves seeds the index with a tree prepared elsewhere. Seq is the
	// sequence number the seeded tree corresponds to.
	Leaves []keccak.Hash
	Seq    uint64
}

// LocalIndexer holds every leaf of one tree and tracks its change log
// events. It is safe for concurrent use.
type LocalIndexer struct {
	log         logger.Logger
	treeID      address.Address
	canopyDepth uint32

	mu     sync.RWMutex
	tree   *merkletree.Tree
	seq    uint64
	assets map[address.Address]uint32
}

func NewLocalIndexer(log logger.Logger, cfg IndexerConfig) (*LocalIndexer, error) {
	if cfg.CanopyDepth > cfg.MaxDepth {
		return nil, fmt.Errorf("%w: canopy %d, depth %d", merkletree.ErrCanopyDepth, cfg.CanopyDepth, cfg.MaxDepth)
	}
	tree, err := merkletree.Build(cfg.Leaves, cfg.MaxDepth)
	if err != nil {
		return nil, err
	}
	return &LocalIndexer{
		log:         log,
		treeID:      cfg.TreeID,
		canopyDepth: cfg.CanopyDepth,
		tree:        tree,
		seq:         cfg.Seq,
		assets:      make(map[address.Address]uint32),
	}, nil
}

// Seq is the sequence number of the last event applied.
func (x *LocalIndexer) Seq() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.seq
}

func (x *LocalIndexer) Root() keccak.Hash {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.tree.Root()
}

// Register associates an asset with the leaf index it was minted at.
func (x *LocalIndexer) Register(assetID address.Address, index uint32) error {
	if uint64(index) >= uint64(1)<<x.tree.Depth() {
		return fmt.Errorf("%w: %d", merkletree.ErrIndexOutOfRange, index)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.assets[assetID] = index
	return nil
}

// Apply brings the index up to date with ev. Events at or below the current
// sequence number were already applied and are ignored. A later event than
// the next one in sequence fails with ErrEventGap; catch up from the store
// first.
func (x *LocalIndexer) Apply(ev cmt.ChangeLogEvent) error {
	if ev.TreeID != x.treeID {
		return fmt.Errorf("%w: %s, indexing %s", ErrWrongTree, ev.TreeID, x.treeID)
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if ev.Seq <= x.seq {
		return nil
	}
	if ev.Seq != x.seq+1 {
		return fmt.Errorf("%w: have %d, got %d", ErrEventGap, x.seq, ev.Seq)
	}
	prev, err := x.tree.Leaf(ev.Index)
	if err != nil {
		return err
	}
	if err := x.tree.SetLeaf(ev.Index, ev.Leaf()); err != nil {
		return err
	}
	if root := x.tree.Root(); root != ev.Root() {
		// restore, the index must still match the last good event
		_ = x.tree.SetLeaf(ev.Index, prev)
		return fmt.Errorf("%w: seq %d, indexed %s, event %s", ErrDiverged, ev.Seq, root, ev.Root())
	}
	x.seq = ev.Seq
	x.log.Debugf("indexer: tree %s seq %d leaf %d", x.treeID, ev.Seq, ev.Index)
	return nil
}

// CatchUp applies every stored event after the current sequence number.
func (x *LocalIndexer) CatchUp(ctx context.Context, events treestore.EventStore) (int, error) {
	seqs, err := events.ListEventSeqs(ctx, x.treeID, x.Seq()+1)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, seq := range seqs {
		data, err := events.GetEvent(ctx, x.treeID, seq)
		if err != nil {
			return applied, err
		}
		var ev cmt.ChangeLogEvent
		if err := ev.UnmarshalBinary(data); err != nil {
			return applied, fmt.Errorf("event %d: %w", seq, err)
		}
		if err := x.Apply(ev); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (x *LocalIndexer) GetAssetProof(ctx context.Context, assetID address.Address) (*AssetProof, error) {
	x.mu.RLock()
	index, ok := x.assets[assetID]
	x.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	return x.GetLeafProof(ctx, index)
}

// GetLeafProof proves whatever is currently at index, including Empty.
func (x *LocalIndexer) GetLeafProof(_ context.Context, index uint32) (*AssetProof, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	proof, err := x.tree.TruncatedProof(index, x.canopyDepth)
	if err != nil {
		return nil, err
	}
	leaf, err := x.tree.Leaf(index)
	if err != nil {
		return nil, err
	}
	return &AssetProof{
		TreeID:    x.treeID,
		Root:      x.tree.Root(),
		Leaf:      leaf,
		LeafIndex: index,
		Proof:     proof,
	}, nil
}

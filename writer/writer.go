// Package writer turns asset level changes (transfer, delegate, burn,
// freeze) into tree updates. It fetches a proof for the asset's current leaf,
// submits the replacement and, when the proof has gone stale under
// concurrent writers, fetches a fresh one and tries again.
package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/uuid"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/cmt"
	"github.com/forestrie/go-cmtree/engine"
	"github.com/forestrie/go-cmtree/keccak"
	"github.com/forestrie/go-cmtree/leafhash"
	"github.com/forestrie/go-cmtree/proofsource"
	"github.com/forestrie/go-cmtree/treestore"
)

const DefaultMaxAttempts = 3

var (
	ErrLeafMismatch    = errors.New("asset leaf in the tree does not match the asset")
	ErrWrongTree       = errors.New("asset proof is for a different tree")
	ErrFrozen          = errors.New("asset is frozen")
	ErrNonTransferable = errors.New("asset is non transferable")
	ErrNotV2           = errors.New("operation needs a v2 leaf")
)

// Submitter applies an update to a tree. *sequencer.Sequencer is one.
type Submitter interface {
	Replace(ctx context.Context, treeID address.Address, req engine.UpdateRequest) (engine.Outcome, error)
}

type Config struct {
	TreeID   address.Address
	MaxDepth uint32
	// CanopyDepth of the tree. Proofs are trimmed to MaxDepth-CanopyDepth
	// before they are submitted.
	CanopyDepth uint32
	// MaxAttempts bounds the proof fetches for one update. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int
}

type Writer struct {
	log       logger.Logger
	cfg       Config
	source    proofsource.Source
	submitter Submitter
}

// Receipt records an accepted update.
type Receipt struct {
	RequestID string
	Attempts  int
	Leaf      keccak.Hash
	Outcome   engine.Outcome
}

func New(log logger.Logger, cfg Config, source proofsource.Source, submitter Submitter) *Writer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Writer{log: log, cfg: cfg, source: source, submitter: submitter}
}

// Transfer moves the asset to newOwner, which also becomes the delegate.
func (w *Writer) Transfer(ctx context.Context, asset leafhash.LeafSchema, newOwner address.Address) (*Receipt, error) {
	if err := checkTransferable(asset); err != nil {
		return nil, err
	}
	next := asset.WithOwner(newOwner)
	return w.Update(ctx, asset, &next)
}

func (w *Writer) Delegate(ctx context.Context, asset leafhash.LeafSchema, delegate address.Address) (*Receipt, error) {
	next := asset.WithDelegate(delegate)
	return w.Update(ctx, asset, &next)
}

// Burn replaces the asset's leaf with the empty leaf.
func (w *Writer) Burn(ctx context.Context, asset leafhash.LeafSchema) (*Receipt, error) {
	if asset.Version == leafhash.V2 && asset.Flags.Frozen() {
		return nil, ErrFrozen
	}
	return w.Update(ctx, asset, nil)
}

// Freeze sets FlagFrozenByOwner on a v2 asset.
func (w *Writer) Freeze(ctx context.Context, asset leafhash.LeafSchema) (*Receipt, error) {
	return w.setFlags(ctx, asset, asset.Flags|leafhash.FlagFrozenByOwner)
}

func (w *Writer) Thaw(ctx context.Context, asset leafhash.LeafSchema) (*Receipt, error) {
	return w.setFlags(ctx, asset, asset.Flags&^leafhash.FlagFrozenByOwner)
}

func (w *Writer) setFlags(ctx context.Context, asset leafhash.LeafSchema, flags leafhash.Flags) (*Receipt, error) {
	if asset.Version != leafhash.V2 {
		return nil, fmt.Errorf("%w: asset %s is v%d", ErrNotV2, asset.ID, asset.Version)
	}
	if err := flags.Validate(); err != nil {
		return nil, err
	}
	next := asset.WithFlags(flags)
	return w.Update(ctx, asset, &next)
}

// Update replaces the leaf for current with the leaf for next. A nil next
// empties the slot.
func (w *Writer) Update(ctx context.Context, current leafhash.LeafSchema, next *leafhash.LeafSchema) (*Receipt, error) {
	oldLeaf, err := current.Hash()
	if err != nil {
		return nil, err
	}
	newLeaf := keccak.Empty
	if next != nil {
		if newLeaf, err = next.Hash(); err != nil {
			return nil, err
		}
	}

	requestID := uuid.NewString()
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		out, err := w.attempt(ctx, current.ID, oldLeaf, newLeaf)
		if err == nil {
			w.log.Debugf("request %s: asset %s leaf %d seq %d after %d attempt(s)",
				requestID, current.ID, out.Event.Index, out.Event.Seq, attempt)
			return &Receipt{RequestID: requestID, Attempts: attempt, Leaf: newLeaf, Outcome: out}, nil
		}
		if !retryable(err) {
			return nil, fmt.Errorf("request %s: %w", requestID, err)
		}
		w.log.Infof("request %s: attempt %d for asset %s: %v", requestID, attempt, current.ID, err)
		lastErr = err
	}
	return nil, fmt.Errorf("request %s: gave up after %d attempts: %w", requestID, w.cfg.MaxAttempts, lastErr)
}

func (w *Writer) attempt(ctx context.Context, assetID address.Address, oldLeaf, newLeaf keccak.Hash) (engine.Outcome, error) {
	p, err := w.source.GetAssetProof(ctx, assetID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if p.TreeID != w.cfg.TreeID {
		return engine.Outcome{}, fmt.Errorf("%w: %s", ErrWrongTree, p.TreeID)
	}
	if p.Leaf != oldLeaf {
		return engine.Outcome{}, fmt.Errorf("%w: asset %s, tree holds %s", ErrLeafMismatch, assetID, p.Leaf)
	}
	return w.submitter.Replace(ctx, w.cfg.TreeID, engine.UpdateRequest{
		Root:        p.Root,
		LeafIndex:   p.LeafIndex,
		OldLeafHash: oldLeaf,
		NewLeafHash: newLeaf,
		Proof:       w.truncate(p.Proof),
	})
}

func (w *Writer) truncate(proof []keccak.Hash) []keccak.Hash {
	if w.cfg.MaxDepth == 0 || w.cfg.CanopyDepth > w.cfg.MaxDepth {
		return proof
	}
	keep := int(w.cfg.MaxDepth - w.cfg.CanopyDepth)
	if len(proof) > keep {
		return proof[:keep]
	}
	return proof
}

func checkTransferable(asset leafhash.LeafSchema) error {
	if asset.Version != leafhash.V2 {
		return nil
	}
	if asset.Flags.Frozen() {
		return ErrFrozen
	}
	if asset.Flags.Has(leafhash.FlagNonTransferable) {
		return ErrNonTransferable
	}
	return nil
}

// retryable reports whether a fresh proof might succeed. A lost commit race
// looks the same to the caller as a stale proof.
func retryable(err error) bool {
	return errors.Is(err, cmt.ErrStaleProof) || treestore.IsConflict(err)
}

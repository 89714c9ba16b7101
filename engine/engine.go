// Package engine applies operations to a tree account: it completes canopy
// truncated proofs, reconciles them against the change log history, applies
// the change and keeps the canopy in step.
//
// Every operation is all or nothing. On error the account is unchanged.
// The engine never retries; a caller holding a stale proof must fetch a new
// one.
package engine

import (
	"errors"
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/cmt"
	"github.com/forestrie/go-cmtree/keccak"
)

type (
	RejectError    = cmt.RejectError
	ChangeLogEvent = cmt.ChangeLogEvent
	PathNode       = cmt.PathNode
)

var (
	ErrNotPrepared     = errors.New("tree account has not been prepared for batch initialization")
	ErrAlreadyPrepared = errors.New("tree account is already prepared or initialized")
)

// UpdateRequest replaces OldLeafHash with NewLeafHash at LeafIndex. Proof is
// either full depth or truncated by the account canopy depth.
//
// Root is the root the proof was read against and may be left zero. A stale
// truncated proof is completed with the current canopy, so the root it
// recomputes to may never have existed. Supplying Root avoids spurious
// ErrRootNotFound rejections in that case.
type UpdateRequest struct {
	Root        keccak.Hash
	LeafIndex   uint32
	OldLeafHash keccak.Hash
	NewLeafHash keccak.Hash
	Proof       []keccak.Hash
}

// Outcome describes an accepted operation.
type Outcome struct {
	Event ChangeLogEvent
	// FastForward is the number of change logs replayed to reconcile the
	// caller's proof.
	FastForward int
}

type Engine struct {
	log  logger.Logger
	opts Options
}

func New(log logger.Logger, opts ...Option) *Engine {
	e := &Engine{log: log}
	for _, opt := range opts {
		opt(&e.opts)
	}
	return e
}

func (e *Engine) Options() Options { return e.opts }

// Initialize sets up an empty tree.
func (e *Engine) Initialize(a *account.Account) (Outcome, error) {
	if a.Header.IsBatchInitialized {
		return Outcome{}, ErrAlreadyPrepared
	}
	applied, err := a.Tree.Initialize()
	if err != nil {
		return Outcome{}, err
	}
	// An all Empty canopy already describes an empty tree.
	return e.accept(a, "initialize", applied, false), nil
}

// PrepareBatch marks an uninitialized account as receiving a tree built
// elsewhere. The canopy is loaded with AppendCanopyNodes and the tree
// adopted with InitializeWithRoot.
func (e *Engine) PrepareBatch(a *account.Account) error {
	if a.Tree.IsInitialized() || a.Header.IsBatchInitialized {
		return ErrAlreadyPrepared
	}
	a.Header.IsBatchInitialized = true
	return nil
}

func (e *Engine) AppendCanopyNodes(a *account.Account, start uint32, nodes []keccak.Hash) error {
	if !a.Header.IsBatchInitialized || a.Tree.IsInitialized() {
		return ErrNotPrepared
	}
	return a.AppendCanopyNodes(start, nodes)
}

// InitializeWithRoot adopts a prepared tree given its root and the rightmost
// leaf with its proof. The canopy must already agree with the root and must
// hold nothing to the right of the rightmost leaf.
func (e *Engine) InitializeWithRoot(
	a *account.Account, root, rightMostLeaf keccak.Hash, rightMostIndex uint32, proof []keccak.Hash,
) (Outcome, error) {
	if !a.Header.IsBatchInitialized || a.Tree.IsInitialized() {
		return Outcome{}, ErrNotPrepared
	}
	full, err := a.FillProof(rightMostIndex, proof)
	if err != nil {
		return Outcome{}, err
	}
	if err := a.CheckCanopyRoot(root); err != nil {
		return Outcome{}, err
	}
	if err := a.CheckCanopyNoNodesToRight(rightMostIndex); err != nil {
		return Outcome{}, err
	}
	applied, err := a.Tree.InitializeWithRoot(root, rightMostLeaf, rightMostIndex, full)
	if err != nil {
		return Outcome{}, err
	}
	return e.accept(a, "initialize-with-root", applied, true), nil
}

func (e *Engine) Append(a *account.Account, leaf keccak.Hash) (Outcome, error) {
	applied, err := a.Tree.Append(leaf)
	if err != nil {
		return Outcome{}, e.reject("append", a.Tree.RightMostPath.Index, err)
	}
	return e.accept(a, "append", applied, true), nil
}

// Replace is the concurrent leaf update.
func (e *Engine) Replace(a *account.Account, req UpdateRequest) (Outcome, error) {
	full, err := a.FillProof(req.LeafIndex, req.Proof)
	if err != nil {
		return Outcome{}, e.reject("replace", req.LeafIndex, err)
	}
	applied, err := a.Tree.SetLeaf(req.LeafIndex, req.OldLeafHash, req.NewLeafHash, full, e.reconcile(req.Root))
	if err != nil {
		return Outcome{}, e.reject("replace", req.LeafIndex, err)
	}
	return e.accept(a, "replace", applied, true), nil
}

// ProveLeaf checks leaf is at index in the current tree. Nothing changes.
// root is optional, as for UpdateRequest.Root.
func (e *Engine) ProveLeaf(a *account.Account, root, leaf keccak.Hash, index uint32, proof []keccak.Hash) error {
	full, err := a.FillProof(index, proof)
	if err != nil {
		return err
	}
	return a.Tree.ProveLeaf(index, leaf, full, e.reconcile(root))
}

// FillEmptyOrAppend writes leaf at index if that slot is still empty and
// appends it otherwise.
func (e *Engine) FillEmptyOrAppend(
	a *account.Account, root, leaf keccak.Hash, index uint32, proof []keccak.Hash,
) (Outcome, error) {
	full, err := a.FillProof(index, proof)
	if err != nil {
		return Outcome{}, e.reject("fill-empty-or-append", index, err)
	}
	applied, err := a.Tree.FillEmptyOrAppend(index, leaf, full, e.reconcile(root))
	if err != nil {
		return Outcome{}, e.reject("fill-empty-or-append", index, err)
	}
	return e.accept(a, "fill-empty-or-append", applied, true), nil
}

func (e *Engine) reconcile(root keccak.Hash) cmt.Reconcile {
	return cmt.Reconcile{Root: root, AllowInferred: e.opts.InferredProofs}
}

func (e *Engine) accept(a *account.Account, op string, applied cmt.Applied, updateCanopy bool) Outcome {
	ev := cmt.NewChangeLogEvent(e.opts.TreeID, applied.SequenceNumber, applied.ChangeLog)
	if updateCanopy {
		a.UpdateCanopy(ev)
	}
	e.log.Debugf("%s: tree %s leaf %d seq %d root %s fast-forward %d",
		op, e.opts.TreeID, ev.Index, ev.Seq, ev.Root(), applied.FastForward)
	return Outcome{Event: ev, FastForward: applied.FastForward}
}

func (e *Engine) reject(op string, index uint32, err error) error {
	var rejected *RejectError
	if errors.As(err, &rejected) {
		e.log.Infof("%s: tree %s rejected (%s): %v", op, e.opts.TreeID, rejected.Kind(), err)
		return err
	}
	return fmt.Errorf("%s leaf %d: %w", op, index, err)
}

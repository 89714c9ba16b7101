// Package sequencer is the single writer for a set of stored trees. It
// serializes operations per tree, runs them through the engine and commits
// the result with the store's etag guard, so several sequencer processes can
// share a store: the loser of a commit race gets a conflict and retries with
// fresh state.
//
// Every accepted operation's change log event is recorded in the store and
// handed to subscribers, typically a proofsource.LocalIndexer.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/checkpoint"
	"github.com/forestrie/go-cmtree/cmt"
	"github.com/forestrie/go-cmtree/engine"
	"github.com/forestrie/go-cmtree/keccak"
	"github.com/forestrie/go-cmtree/treestore"
)

var ErrNoSigner = errors.New("sequencer has no checkpoint signer")

// Subscriber receives the change log event of every accepted operation, in
// sequence order per tree.
type Subscriber interface {
	Apply(ev cmt.ChangeLogEvent) error
}

type Sequencer struct {
	log   logger.Logger
	opts  Options
	store *treestore.CachingStore

	mu      sync.Mutex
	locks   map[address.Address]*sync.Mutex
	pending map[address.Address][]cmt.ChangeLogEvent
}

func New(log logger.Logger, store treestore.Store, opts ...Option) (*Sequencer, error) {
	o := Options{Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics()
	}
	if o.CheckpointEvery != 0 && o.CoseSigner == nil {
		return nil, ErrNoSigner
	}

	cached, err := treestore.NewCachingStore(store, o.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Sequencer{
		log:     log,
		opts:    o,
		store:   cached,
		locks:   make(map[address.Address]*sync.Mutex),
		pending: make(map[address.Address][]cmt.ChangeLogEvent),
	}, nil
}

// CreateTree stores a new, empty tree. It fails with treestore.ErrExistsOC
// if the tree already exists.
func (s *Sequencer) CreateTree(
	ctx context.Context, treeID address.Address, cfg account.Config, opts ...account.Option,
) (engine.Outcome, error) {
	unlock := s.lockTree(treeID)
	defer unlock()

	a, err := account.New(cfg, opts...)
	if err != nil {
		return engine.Outcome{}, err
	}
	out, err := s.engine(treeID).Initialize(a)
	if err != nil {
		return engine.Outcome{}, err
	}
	sa := treestore.NewStoredAccount(treeID, a)
	if err := s.store.CommitAccount(ctx, sa); err != nil {
		return engine.Outcome{}, fmt.Errorf("create tree %s: %w", treeID, err)
	}
	s.log.Infof("created tree %s depth %d buffer %d canopy %d",
		treeID, cfg.MaxDepth, cfg.MaxBufferSize, cfg.CanopyDepth)
	s.accepted(ctx, sa, out)
	return out, nil
}

func (s *Sequencer) Append(ctx context.Context, treeID address.Address, leaf keccak.Hash) (engine.Outcome, error) {
	return s.submit(ctx, treeID, func(e *engine.Engine, a *account.Account) (engine.Outcome, error) {
		return e.Append(a, leaf)
	})
}

func (s *Sequencer) Replace(ctx context.Context, treeID address.Address, req engine.UpdateRequest) (engine.Outcome, error) {
	return s.submit(ctx, treeID, func(e *engine.Engine, a *account.Account) (engine.Outcome, error) {
		return e.Replace(a, req)
	})
}

func (s *Sequencer) FillEmptyOrAppend(
	ctx context.Context, treeID address.Address, root, leaf keccak.Hash, index uint32, proof []keccak.Hash,
) (engine.Outcome, error) {
	return s.submit(ctx, treeID, func(e *engine.Engine, a *account.Account) (engine.Outcome, error) {
		return e.FillEmptyOrAppend(a, root, leaf, index, proof)
	})
}

// ProveLeaf checks leaf is at index in the stored tree.
func (s *Sequencer) ProveLeaf(
	ctx context.Context, treeID address.Address, root, leaf keccak.Hash, index uint32, proof []keccak.Hash,
) error {
	sa, err := s.store.GetAccount(ctx, treeID)
	if err != nil {
		return err
	}
	return s.engine(treeID).ProveLeaf(sa.Account, root, leaf, index, proof)
}

// Account returns a private copy of the stored tree.
func (s *Sequencer) Account(ctx context.Context, treeID address.Address) (*account.Account, error) {
	sa, err := s.store.GetAccount(ctx, treeID)
	if err != nil {
		return nil, err
	}
	return sa.Account, nil
}

// Checkpoint signs and stores the current head of the tree now, regardless
// of CheckpointEvery. Signing the same sequence number twice fails with
// treestore.ErrExistsOC.
func (s *Sequencer) Checkpoint(ctx context.Context, treeID address.Address) (uint64, []byte, error) {
	if s.opts.CoseSigner == nil {
		return 0, nil, ErrNoSigner
	}
	unlock := s.lockTree(treeID)
	defer unlock()

	sa, err := s.store.GetAccount(ctx, treeID)
	if err != nil {
		return 0, nil, err
	}
	msg, err := s.checkpoint(ctx, treeID, sa.Account)
	if err != nil {
		return 0, nil, err
	}
	return sa.Account.SequenceNumber(), msg, nil
}

type operation func(e *engine.Engine, a *account.Account) (engine.Outcome, error)

func (s *Sequencer) submit(ctx context.Context, treeID address.Address, op operation) (engine.Outcome, error) {
	unlock := s.lockTree(treeID)
	defer unlock()

	s.flushEvents(ctx, treeID)

	sa, err := s.store.GetAccount(ctx, treeID)
	if err != nil {
		return engine.Outcome{}, err
	}
	out, err := op(s.engine(treeID), sa.Account)
	if err != nil {
		s.opts.Metrics.rejected(err)
		return engine.Outcome{}, err
	}
	if err := s.store.CommitAccount(ctx, sa); err != nil {
		s.opts.Metrics.rejected(err)
		if treestore.IsConflict(err) {
			s.log.Infof("tree %s: lost commit race at seq %d", treeID, out.Event.Seq)
		}
		return engine.Outcome{}, err
	}
	s.accepted(ctx, sa, out)
	return out, nil
}

// accepted runs everything that follows a successful commit. None of it can
// fail the operation, which is already durable.
func (s *Sequencer) accepted(ctx context.Context, sa *treestore.StoredAccount, out engine.Outcome) {
	s.opts.Metrics.accepted(out.FastForward)

	ev := out.Event
	if err := s.putEvent(ctx, ev); err != nil {
		s.log.Infof("tree %s: deferring event %d: %v", ev.TreeID, ev.Seq, err)
		s.mu.Lock()
		s.pending[ev.TreeID] = append(s.pending[ev.TreeID], ev)
		s.mu.Unlock()
	}

	for _, sub := range s.opts.Subscribers {
		if err := sub.Apply(ev); err != nil {
			s.log.Infof("tree %s: subscriber rejected event %d: %v", ev.TreeID, ev.Seq, err)
		}
	}

	every := s.opts.CheckpointEvery
	if every != 0 && ev.Seq%every == 0 {
		if _, err := s.checkpoint(ctx, sa.TreeID, sa.Account); err != nil {
			s.log.Infof("tree %s: checkpoint at seq %d failed: %v", sa.TreeID, ev.Seq, err)
		}
	}
}

func (s *Sequencer) putEvent(ctx context.Context, ev cmt.ChangeLogEvent) error {
	data, err := ev.MarshalBinary()
	if err != nil {
		return err
	}
	err = s.store.PutEvent(ctx, ev.TreeID, ev.Seq, data)
	if errors.Is(err, treestore.ErrExistsOC) {
		return nil
	}
	return err
}

// flushEvents retries events whose first write failed. Must be called with
// the tree lock held.
func (s *Sequencer) flushEvents(ctx context.Context, treeID address.Address) {
	s.mu.Lock()
	events := s.pending[treeID]
	delete(s.pending, treeID)
	s.mu.Unlock()

	for i, ev := range events {
		if err := s.putEvent(ctx, ev); err != nil {
			s.log.Infof("tree %s: event %d still pending: %v", treeID, ev.Seq, err)
			s.mu.Lock()
			s.pending[treeID] = append(events[i:], s.pending[treeID]...)
			s.mu.Unlock()
			return
		}
	}
}

// PendingEvents is the number of events not yet recorded in the store.
func (s *Sequencer) PendingEvents(treeID address.Address) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[treeID])
}

func (s *Sequencer) checkpoint(ctx context.Context, treeID address.Address, a *account.Account) ([]byte, error) {
	state := checkpoint.StateFromAccount(treeID, a, s.opts.Now())
	msg, err := s.opts.RootSigner.Sign(s.opts.CoseSigner, state)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutCheckpoint(ctx, treeID, state.SequenceNumber, msg); err != nil {
		return nil, err
	}
	s.log.Debugf("tree %s: checkpoint seq %d", treeID, state.SequenceNumber)
	return msg, nil
}

func (s *Sequencer) engine(treeID address.Address) *engine.Engine {
	opts := []engine.Option{engine.WithTreeID(treeID)}
	if s.opts.InferredProofs {
		opts = append(opts, engine.WithInferredProofs())
	}
	return engine.New(s.log, opts...)
}

func (s *Sequencer) lockTree(treeID address.Address) func() {
	s.mu.Lock()
	l, ok := s.locks[treeID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[treeID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

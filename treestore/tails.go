package treestore

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/forestrie/go-cmtree/address"
)

// TreeTail records the newest (highest sequence numbered) blob of one kind
// for a tree. It represents both the most recent event and the most recent
// checkpoint.
type TreeTail struct {
	TreeID address.Address
	Path   string
	Seq    uint64
	Ext    string
}

// NewTreeTail parses the tail information from an event or checkpoint path.
func NewTreeTail(blobPath string) (TreeTail, error) {
	treeID, err := TreeIDFromPath(blobPath)
	if err != nil {
		return TreeTail{}, err
	}

	ext := blobPath[strings.LastIndex(blobPath, V1CMTExtSep)+1:]
	var seq uint64
	switch ext {
	case V1CMTEventExt:
		seq, err = EventSeqFromPath(blobPath)
	case V1CMTCheckpointExt:
		seq, err = CheckpointSeqFromPath(blobPath)
	default:
		err = ErrNotSequencedPath
	}
	if err != nil {
		return TreeTail{}, err
	}

	return TreeTail{TreeID: treeID, Path: blobPath, Seq: seq, Ext: ext}, nil
}

// TryReplaceTail considers if the other tail is more recent. If it is, the
// values on the current tail are replaced with those from other and true is
// returned.
func (l *TreeTail) TryReplaceTail(other TreeTail) bool {
	// the replacement needs to be for the same tree and kind
	if l.TreeID != other.TreeID || l.Ext != other.Ext {
		return false
	}
	if other.Seq <= l.Seq {
		return false
	}
	l.Path = other.Path
	l.Seq = other.Seq
	return true
}

// TailCollator collates the most recent event and checkpoint for every tree
// in a listing.
type TailCollator struct {
	Events      map[address.Address]TreeTail
	Checkpoints map[address.Address]TreeTail
}

func NewTailCollator() TailCollator {
	return TailCollator{
		Events:      make(map[address.Address]TreeTail),
		Checkpoints: make(map[address.Address]TreeTail),
	}
}

func sortedTrees(m map[address.Address]TreeTail) []address.Address {
	keys := make([]address.Address, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b address.Address) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// SortedEventTrees returns the trees with events in path order.
func (c TailCollator) SortedEventTrees() []address.Address {
	return sortedTrees(c.Events)
}

// SortedCheckpointTrees returns the trees with checkpoints in path order.
func (c TailCollator) SortedCheckpointTrees() []address.Address {
	return sortedTrees(c.Checkpoints)
}

// CollatePath folds a single path into the collation. Paths that are not
// events or checkpoints, such as the account blob, are skipped.
func (c *TailCollator) CollatePath(blobPath string) error {
	lt, err := NewTreeTail(blobPath)
	if errors.Is(err, ErrNotSequencedPath) {
		return nil
	}
	if err != nil {
		return err
	}

	tails := c.Checkpoints
	if lt.Ext == V1CMTEventExt {
		tails = c.Events
	}
	cur, ok := tails[lt.TreeID]
	if !ok {
		tails[lt.TreeID] = lt
		return nil
	}
	if cur.TryReplaceTail(lt) {
		tails[lt.TreeID] = cur
	}
	return nil
}

// CollatePaths folds a page of listed paths into the collation.
func (c *TailCollator) CollatePaths(paths []string) error {
	for _, p := range paths {
		if err := c.CollatePath(p); err != nil {
			return err
		}
	}
	return nil
}

// TreeActivity summarizes how far a tree's event log and checkpoints have
// progressed.
type TreeActivity struct {
	TreeID         address.Address `yaml:"treeID"`
	LastEvent      uint64          `yaml:"lastEvent"`
	EventPath      string          `yaml:"eventPath,omitempty"`
	LastCheckpoint uint64          `yaml:"lastCheckpoint"`
	CheckpointPath string          `yaml:"checkpointPath,omitempty"`
	// Unsealed counts the events newer than the latest checkpoint.
	Unsealed uint64 `yaml:"unsealed"`
}

// Activity merges the event and checkpoint tails per tree, in path order.
func (c TailCollator) Activity() []TreeActivity {
	seen := make(map[address.Address]TreeTail, len(c.Events)+len(c.Checkpoints))
	for k, v := range c.Events {
		seen[k] = v
	}
	for k, v := range c.Checkpoints {
		if _, ok := seen[k]; !ok {
			seen[k] = v
		}
	}

	var out []TreeActivity
	for _, treeID := range sortedTrees(seen) {
		a := TreeActivity{TreeID: treeID}
		ev, hasEvents := c.Events[treeID]
		if hasEvents {
			a.LastEvent = ev.Seq
			a.EventPath = ev.Path
		}
		cp, hasCheckpoint := c.Checkpoints[treeID]
		if hasCheckpoint {
			a.LastCheckpoint = cp.Seq
			a.CheckpointPath = cp.Path
		}
		switch {
		case hasEvents && !hasCheckpoint:
			// event seq 0 is the initialization
			a.Unsealed = ev.Seq + 1
		case hasEvents && ev.Seq > cp.Seq:
			a.Unsealed = ev.Seq - cp.Seq
		}
		out = append(out, a)
	}
	return out
}

// CollateTails lists every tree in objects and collates their tails.
func CollateTails(ctx context.Context, objects Objects) (TailCollator, error) {
	c := NewTailCollator()
	paths, err := objects.List(ctx, V1CMTPrefix+V1CMTPathSep)
	if err != nil {
		return c, err
	}
	if err := c.CollatePaths(paths); err != nil {
		return c, err
	}
	return c, nil
}

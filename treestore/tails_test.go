package treestore

import (
	"context"
	"testing"

	"github.com/forestrie/go-cmtree/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkcollator(t *testing.T, paths []string) TailCollator {
	c := NewTailCollator()
	require.NoError(t, c.CollatePaths(paths))
	return c
}

func TestLatestEventsAndCheckpoints(t *testing.T) {
	treeA := address.Address{1}
	treeB := address.Address{2}
	treeC := address.Address{3}

	tests := []struct {
		name        string
		paths       []string
		events      map[address.Address]uint64
		checkpoints map[address.Address]uint64
	}{
		{
			name:        "empty",
			events:      map[address.Address]uint64{},
			checkpoints: map[address.Address]uint64{},
		},
		{
			name: "accounts only",
			paths: []string{
				AccountBlobPath(treeA),
				AccountBlobPath(treeB),
			},
			events:      map[address.Address]uint64{},
			checkpoints: map[address.Address]uint64{},
		},
		{
			name: "out of order",
			paths: []string{
				EventBlobPath(treeA, 3),
				EventBlobPath(treeA, 1),
				CheckpointBlobPath(treeA, 2),
				EventBlobPath(treeB, 0),
				CheckpointBlobPath(treeA, 0),
				EventBlobPath(treeA, 2),
			},
			events:      map[address.Address]uint64{treeA: 3, treeB: 0},
			checkpoints: map[address.Address]uint64{treeA: 2},
		},
		{
			name: "checkpoint only",
			paths: []string{
				AccountBlobPath(treeC),
				CheckpointBlobPath(treeC, 7),
			},
			events:      map[address.Address]uint64{},
			checkpoints: map[address.Address]uint64{treeC: 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mkcollator(t, tt.paths)

			events := map[address.Address]uint64{}
			for _, treeID := range c.SortedEventTrees() {
				events[treeID] = c.Events[treeID].Seq
			}
			checkpoints := map[address.Address]uint64{}
			for _, treeID := range c.SortedCheckpointTrees() {
				checkpoints[treeID] = c.Checkpoints[treeID].Seq
			}
			assert.Equal(t, tt.events, events)
			assert.Equal(t, tt.checkpoints, checkpoints)

			for treeID, tail := range c.Events {
				assert.Equal(t, EventBlobPath(treeID, tail.Seq), tail.Path)
			}
		})
	}
}

func TestTryReplaceTail(t *testing.T) {
	ev, err := NewTreeTail(EventBlobPath(address.Address{1}, 4))
	require.NoError(t, err)

	other, err := NewTreeTail(EventBlobPath(address.Address{2}, 9))
	require.NoError(t, err)
	assert.False(t, ev.TryReplaceTail(other), "different tree")

	cp, err := NewTreeTail(CheckpointBlobPath(address.Address{1}, 9))
	require.NoError(t, err)
	assert.False(t, ev.TryReplaceTail(cp), "different kind")

	older, err := NewTreeTail(EventBlobPath(address.Address{1}, 4))
	require.NoError(t, err)
	assert.False(t, ev.TryReplaceTail(older))

	newer, err := NewTreeTail(EventBlobPath(address.Address{1}, 5))
	require.NoError(t, err)
	assert.True(t, ev.TryReplaceTail(newer))
	assert.Equal(t, uint64(5), ev.Seq)
	assert.Equal(t, newer.Path, ev.Path)

	_, err = NewTreeTail("v1/mmrs/tenant/x/0/massifs/0.log")
	assert.ErrorIs(t, err, ErrNotTreePath)
}

func TestActivity(t *testing.T) {
	treeA := address.Address{1}
	treeB := address.Address{2}
	c := mkcollator(t, []string{
		EventBlobPath(treeA, 0),
		EventBlobPath(treeA, 5),
		CheckpointBlobPath(treeA, 4),
		EventBlobPath(treeB, 2),
	})

	activity := c.Activity()
	require.Len(t, activity, 2)
	assert.Equal(t, TreeActivity{
		TreeID:         treeA,
		LastEvent:      5,
		EventPath:      EventBlobPath(treeA, 5),
		LastCheckpoint: 4,
		CheckpointPath: CheckpointBlobPath(treeA, 4),
		Unsealed:       1,
	}, activity[0])
	assert.Equal(t, uint64(3), activity[1].Unsealed)
}

func TestCollateTails(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := newTestStore(t, b.objects(t))
			treeA := address.Address{1}
			treeB := address.Address{2}
			for seq := uint64(0); seq < 3; seq++ {
				require.NoError(t, s.PutEvent(ctx, treeA, seq, []byte{byte(seq)}))
			}
			require.NoError(t, s.PutEvent(ctx, treeB, 0, []byte{0}))
			require.NoError(t, s.PutCheckpoint(ctx, treeB, 0, []byte{0}))

			c, err := CollateTails(ctx, s.Objects)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), c.Events[treeA].Seq)
			assert.Equal(t, uint64(0), c.Events[treeB].Seq)
			assert.Equal(t, []address.Address{treeB}, c.SortedCheckpointTrees())
		})
	}
}

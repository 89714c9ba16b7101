package cmt

import (
	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
)

// PathNode is a tree node with its heap position. The root is heap index 1
// and the children of k are 2k and 2k+1.
type PathNode struct {
	Node      keccak.Hash
	HeapIndex uint32
}

// ChangeLogEvent is published for every accepted operation so that indexers
// can keep a full copy of the tree in step with the account.
type ChangeLogEvent struct {
	TreeID address.Address
	Seq    uint64
	Index  uint32
	// Path runs from the leaf (first) to the root (last, heap index 1).
	Path []PathNode
}

func NewChangeLogEvent(treeID address.Address, seq uint64, cl ChangeLog) ChangeLogEvent {
	depth := uint32(len(cl.Path))
	path := make([]PathNode, 0, depth+1)
	for level, node := range cl.Path {
		path = append(path, PathNode{
			Node:      node,
			HeapIndex: (uint32(1) << (depth - uint32(level))) + (cl.Index >> uint(level)),
		})
	}
	path = append(path, PathNode{Node: cl.Root, HeapIndex: 1})
	return ChangeLogEvent{
		TreeID: treeID,
		Seq:    seq,
		Index:  cl.Index,
		Path:   path,
	}
}

// Leaf returns the leaf value written by the operation.
func (e ChangeLogEvent) Leaf() keccak.Hash {
	if len(e.Path) == 0 {
		return keccak.Empty
	}
	return e.Path[0].Node
}

// Root returns the tree root after the operation.
func (e ChangeLogEvent) Root() keccak.Hash {
	if len(e.Path) == 0 {
		return keccak.Empty
	}
	return e.Path[len(e.Path)-1].Node
}

package main

import (
	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
)

type changeLogSummary struct {
	Slot  uint64      `yaml:"slot"`
	Index uint32      `yaml:"index"`
	Root  keccak.Hash `yaml:"root"`
}

type accountSummary struct {
	Size             uint64             `yaml:"size"`
	MaxDepth         uint32             `yaml:"maxDepth"`
	MaxBufferSize    uint32             `yaml:"maxBufferSize"`
	CanopyDepth      uint32             `yaml:"canopyDepth"`
	Authority        address.Address    `yaml:"authority"`
	CreationSlot     uint64             `yaml:"creationSlot"`
	BatchInitialized bool               `yaml:"batchInitialized"`
	Initialized      bool               `yaml:"initialized"`
	SequenceNumber   uint64             `yaml:"sequenceNumber"`
	ActiveIndex      uint64             `yaml:"activeIndex"`
	BufferSize       uint64             `yaml:"bufferSize"`
	LeafCount        uint64             `yaml:"leafCount"`
	Root             keccak.Hash        `yaml:"root"`
	RightMostLeaf    keccak.Hash        `yaml:"rightMostLeaf"`
	ChangeLogs       []changeLogSummary `yaml:"changeLogs,omitempty"`
}

// summarize lists the valid change logs newest first.
func summarize(a *account.Account) accountSummary {
	s := accountSummary{
		Size:             a.Size(),
		MaxDepth:         a.MaxDepth(),
		MaxBufferSize:    a.MaxBufferSize(),
		CanopyDepth:      a.CanopyDepth(),
		Authority:        a.Header.Authority,
		CreationSlot:     a.Header.CreationSlot,
		BatchInitialized: a.Header.IsBatchInitialized,
		Initialized:      a.Tree.IsInitialized(),
	}
	if !s.Initialized {
		return s
	}

	t := a.Tree
	s.SequenceNumber = t.SequenceNumber
	s.ActiveIndex = t.ActiveIndex
	s.BufferSize = t.BufferSize
	s.LeafCount = t.LeafCount()
	s.Root = t.CurrentRoot()
	s.RightMostLeaf = t.RightMostPath.Leaf

	size := uint64(t.MaxBufferSize)
	for back := uint64(0); back < t.BufferSize; back++ {
		slot := (t.ActiveIndex + size - back) % size
		cl := t.ChangeLogs[slot]
		s.ChangeLogs = append(s.ChangeLogs, changeLogSummary{Slot: slot, Index: cl.Index, Root: cl.Root})
	}
	return s
}

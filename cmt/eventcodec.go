package cmt

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
)

var ErrEventDecode = errors.New("change log event decode failed")

// eventRecord is the wire form of a ChangeLogEvent. Nodes and heap indices
// are parallel arrays, leaf first.
type eventRecord struct {
	Version     uint8    `cbor:"1,keyasint"`
	TreeID      []byte   `cbor:"2,keyasint"`
	Seq         uint64   `cbor:"3,keyasint"`
	Index       uint32   `cbor:"4,keyasint"`
	Nodes       [][]byte `cbor:"5,keyasint"`
	HeapIndices []uint32 `cbor:"6,keyasint"`
}

const eventRecordVersion = 1

// MarshalBinary encodes the event as deterministic CBOR.
func (e ChangeLogEvent) MarshalBinary() ([]byte, error) {
	rec := eventRecord{
		Version:     eventRecordVersion,
		TreeID:      append([]byte(nil), e.TreeID[:]...),
		Seq:         e.Seq,
		Index:       e.Index,
		Nodes:       make([][]byte, len(e.Path)),
		HeapIndices: make([]uint32, len(e.Path)),
	}
	for i, pn := range e.Path {
		rec.Nodes[i] = append([]byte(nil), pn.Node[:]...)
		rec.HeapIndices[i] = pn.HeapIndex
	}
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(rec)
}

func (e *ChangeLogEvent) UnmarshalBinary(data []byte) error {
	var rec eventRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrEventDecode, err)
	}
	if rec.Version != eventRecordVersion {
		return fmt.Errorf("%w: unknown version %d", ErrEventDecode, rec.Version)
	}
	if len(rec.Nodes) != len(rec.HeapIndices) {
		return fmt.Errorf("%w: %d nodes but %d heap indices", ErrEventDecode, len(rec.Nodes), len(rec.HeapIndices))
	}
	treeID, err := address.FromBytes(rec.TreeID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEventDecode, err)
	}

	out := ChangeLogEvent{
		TreeID: treeID,
		Seq:    rec.Seq,
		Index:  rec.Index,
		Path:   make([]PathNode, len(rec.Nodes)),
	}
	for i, b := range rec.Nodes {
		node, err := keccak.FromBytes(b)
		if err != nil {
			return fmt.Errorf("%w: node %d: %v", ErrEventDecode, i, err)
		}
		out.Path[i] = PathNode{Node: node, HeapIndex: rec.HeapIndices[i]}
	}
	*e = out
	return nil
}

// Package account encodes and decodes the fixed size concurrent merkle tree
// account: a versioned header, the tree (change log ring buffer and
// rightmost path) and the optional canopy.
package account

import (
	"encoding/binary"
	"fmt"

	"github.com/forestrie/go-cmtree/cmt"
	"github.com/forestrie/go-cmtree/keccak"
)

type Account struct {
	Header Header
	Tree   *cmt.Tree
	// Canopy caches the top CanopyDepth levels below the root in heap order,
	// heap index k at Canopy[k-2]. Empty entries stand for empty subtrees.
	Canopy []keccak.Hash
}

// New allocates an account for cfg with an uninitialized tree.
func New(cfg Config, opts ...Option) (*Account, error) {
	if err := ValidateConfig(cfg, opts...); err != nil {
		return nil, err
	}
	tree, err := cmt.New(cfg.MaxDepth, cfg.MaxBufferSize)
	if err != nil {
		return nil, err
	}
	return &Account{
		Header: Header{
			Type:          AccountTypeConcurrentMerkleTree,
			Version:       HeaderCurrentVersion,
			MaxBufferSize: cfg.MaxBufferSize,
			MaxDepth:      cfg.MaxDepth,
			Authority:     cfg.Authority,
			CreationSlot:  cfg.CreationSlot,
		},
		Tree:   tree,
		Canopy: make([]keccak.Hash, CanopyNodeCount(cfg.CanopyDepth)),
	}, nil
}

// Decode parses account data. The data length must be exactly the size
// implied by the header shape plus a whole canopy.
func Decode(data []byte) (*Account, error) {
	a := &Account{}
	if err := a.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Account) MaxDepth() uint32 { return a.Header.MaxDepth }

func (a *Account) MaxBufferSize() uint32 { return a.Header.MaxBufferSize }

func (a *Account) CanopyDepth() uint32 {
	d, _ := CanopyDepthForNodes(uint64(len(a.Canopy)))
	return d
}

func (a *Account) Config() Config {
	return Config{
		MaxDepth:      a.Header.MaxDepth,
		MaxBufferSize: a.Header.MaxBufferSize,
		CanopyDepth:   a.CanopyDepth(),
		Authority:     a.Header.Authority,
		CreationSlot:  a.Header.CreationSlot,
	}
}

func (a *Account) Size() uint64 {
	return AccountSize(a.Header.MaxDepth, a.Header.MaxBufferSize, a.CanopyDepth())
}

func (a *Account) CurrentRoot() keccak.Hash { return a.Tree.CurrentRoot() }

func (a *Account) SequenceNumber() uint64 { return a.Tree.SequenceNumber }

func (a *Account) RightMostLeaf() keccak.Hash { return a.Tree.RightMostPath.Leaf }

func (a *Account) LeafCount() uint64 { return a.Tree.LeafCount() }

func (a *Account) Clone() *Account {
	out := &Account{
		Header: a.Header,
		Tree:   a.Tree.Clone(),
		Canopy: make([]keccak.Hash, len(a.Canopy)),
	}
	copy(out.Canopy, a.Canopy)
	return out
}

func (a *Account) MarshalBinary() ([]byte, error) {
	if uint32(len(a.Tree.ChangeLogs)) != a.Header.MaxBufferSize || a.Tree.MaxDepth != a.Header.MaxDepth {
		return nil, fmt.Errorf("%w: tree shape does not match the header", ErrInvalidConfig)
	}
	if _, err := CanopyDepthForNodes(uint64(len(a.Canopy))); err != nil {
		return nil, err
	}

	data := make([]byte, a.Size())
	if err := a.Header.encode(data); err != nil {
		return nil, err
	}
	encodeTree(a.Tree, data[HeaderEnd:])

	off := HeaderEnd + TreeSize(a.Header.MaxDepth, a.Header.MaxBufferSize)
	for _, node := range a.Canopy {
		copy(data[off:off+NodeBytes], node[:])
		off += NodeBytes
	}
	return data, nil
}

func (a *Account) UnmarshalBinary(data []byte) error {
	var h Header
	if err := DecodeHeader(&h, data); err != nil {
		return err
	}
	if h.MaxDepth == 0 || h.MaxDepth > keccak.MaxSupportedDepth || h.MaxBufferSize == 0 {
		return fmt.Errorf("%w: depth %d, buffer %d", ErrAccountSizeMismatch, h.MaxDepth, h.MaxBufferSize)
	}

	treeEnd := HeaderEnd + TreeSize(h.MaxDepth, h.MaxBufferSize)
	if uint64(len(data)) < treeEnd {
		return fmt.Errorf("%w: %d bytes, tree needs %d", ErrAccountSizeMismatch, len(data), treeEnd)
	}
	canopyBytes := uint64(len(data)) - treeEnd
	if canopyBytes%NodeBytes != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCanopyLength, canopyBytes)
	}
	canopyDepth, err := CanopyDepthForNodes(canopyBytes / NodeBytes)
	if err != nil {
		return err
	}
	if canopyDepth > h.MaxDepth {
		return fmt.Errorf("%w: canopy depth %d exceeds tree depth %d", ErrCanopyLength, canopyDepth, h.MaxDepth)
	}

	tree, err := decodeTree(h.MaxDepth, h.MaxBufferSize, data[HeaderEnd:treeEnd])
	if err != nil {
		return err
	}

	canopy := make([]keccak.Hash, canopyBytes/NodeBytes)
	off := treeEnd
	for i := range canopy {
		copy(canopy[i][:], data[off:off+NodeBytes])
		off += NodeBytes
	}

	a.Header = h
	a.Tree = tree
	a.Canopy = canopy
	return nil
}

func encodeTree(t *cmt.Tree, b []byte) {
	binary.LittleEndian.PutUint64(b[TreeSequenceNumberFirstByte:], t.SequenceNumber)
	binary.LittleEndian.PutUint64(b[TreeActiveIndexFirstByte:], t.ActiveIndex)
	binary.LittleEndian.PutUint64(b[TreeBufferSizeFirstByte:], t.BufferSize)

	off := uint64(TreeChangeLogsFirstByte)
	for i := range t.ChangeLogs {
		cl := &t.ChangeLogs[i]
		off = putNode(b, off, cl.Root)
		for _, node := range cl.Path {
			off = putNode(b, off, node)
		}
		off = putIndex(b, off, cl.Index)
	}

	rmp := &t.RightMostPath
	for _, node := range rmp.Proof {
		off = putNode(b, off, node)
	}
	off = putNode(b, off, rmp.Leaf)
	putIndex(b, off, rmp.Index)
}

func decodeTree(maxDepth, maxBufferSize uint32, b []byte) (*cmt.Tree, error) {
	t, err := cmt.New(maxDepth, maxBufferSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	t.SequenceNumber = binary.LittleEndian.Uint64(b[TreeSequenceNumberFirstByte:])
	t.ActiveIndex = binary.LittleEndian.Uint64(b[TreeActiveIndexFirstByte:])
	t.BufferSize = binary.LittleEndian.Uint64(b[TreeBufferSizeFirstByte:])

	if t.BufferSize > uint64(maxBufferSize) {
		return nil, fmt.Errorf("%w: buffer size %d > %d", ErrCorruptTree, t.BufferSize, maxBufferSize)
	}
	if t.BufferSize == 0 && (t.ActiveIndex != 0 || t.SequenceNumber != 0) {
		return nil, fmt.Errorf("%w: uninitialized tree with active index %d seq %d",
			ErrCorruptTree, t.ActiveIndex, t.SequenceNumber)
	}
	if t.BufferSize != 0 && t.ActiveIndex >= t.BufferSize {
		return nil, fmt.Errorf("%w: active index %d >= buffer size %d", ErrCorruptTree, t.ActiveIndex, t.BufferSize)
	}

	off := uint64(TreeChangeLogsFirstByte)
	for i := range t.ChangeLogs {
		cl := &t.ChangeLogs[i]
		off = getNode(b, off, &cl.Root)
		for j := range cl.Path {
			off = getNode(b, off, &cl.Path[j])
		}
		off = getIndex(b, off, &cl.Index)
	}

	rmp := &t.RightMostPath
	for j := range rmp.Proof {
		off = getNode(b, off, &rmp.Proof[j])
	}
	off = getNode(b, off, &rmp.Leaf)
	getIndex(b, off, &rmp.Index)

	if uint64(rmp.Index) > t.Capacity() {
		return nil, fmt.Errorf("%w: rightmost index %d exceeds capacity", ErrCorruptTree, rmp.Index)
	}

	// Only the live window is replayed by updates; older slots may hold
	// anything.
	size := uint64(maxBufferSize)
	for back := uint64(0); back < t.BufferSize; back++ {
		slot := (t.ActiveIndex + size - back) % size
		if index := t.ChangeLogs[slot].Index; uint64(index) >= t.Capacity() {
			return nil, fmt.Errorf("%w: change log slot %d index %d exceeds capacity", ErrCorruptTree, slot, index)
		}
	}
	return t, nil
}

func putNode(b []byte, off uint64, node keccak.Hash) uint64 {
	copy(b[off:off+NodeBytes], node[:])
	return off + NodeBytes
}

func getNode(b []byte, off uint64, node *keccak.Hash) uint64 {
	copy(node[:], b[off:off+NodeBytes])
	return off + NodeBytes
}

// putIndex writes a u32 and its u32 padding.
func putIndex(b []byte, off uint64, index uint32) uint64 {
	binary.LittleEndian.PutUint32(b[off:off+4], index)
	clear(b[off+4 : off+IndexFieldBytes])
	return off + IndexFieldBytes
}

func getIndex(b []byte, off uint64, index *uint32) uint64 {
	*index = binary.LittleEndian.Uint32(b[off : off+4])
	return off + IndexFieldBytes
}

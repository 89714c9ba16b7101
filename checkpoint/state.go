// Package checkpoint signs and verifies tree heads: a commitment to the
// root of a tree account at a particular sequence number.
//
// The root is detached from the payload after signing, so a verifier must
// recover it from the account itself. A checkpoint can therefore only be
// verified against an account that still holds the signed sequence number in
// its change log buffer.
package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
)

var (
	ErrRootNotRetained = errors.New("the account no longer holds the root for the checkpoint sequence number")
	ErrTreeMismatch    = errors.New("the checkpoint is for a different tree")
	ErrShapeMismatch   = errors.New("the checkpoint tree shape does not match the account")
	ErrStateIncomplete = errors.New("the tree state needs a tree id and root")
)

// TreeState is the signed commitment to a tree head.
type TreeState struct {
	TreeID []byte `cbor:"1,keyasint"`
	Root   []byte `cbor:"2,keyasint"`
	// SequenceNumber is the account sequence number the root was read at.
	SequenceNumber uint64 `cbor:"3,keyasint"`
	// Timestamp is the unix time (milliseconds) read at the time the root was
	// signed. Including it allows for the same root to be re-signed.
	Timestamp int64 `cbor:"4,keyasint"`

	ActiveIndex   uint64 `cbor:"5,keyasint"`
	BufferSize    uint64 `cbor:"6,keyasint"`
	LeafCount     uint64 `cbor:"7,keyasint"`
	MaxDepth      uint32 `cbor:"8,keyasint"`
	MaxBufferSize uint32 `cbor:"9,keyasint"`
}

// check confirms the state names a tree and carries that tree's root.
func (s TreeState) check() (address.Address, error) {
	treeID, err := address.FromBytes(s.TreeID)
	if err != nil {
		return treeID, fmt.Errorf("%w: %v", ErrStateIncomplete, err)
	}
	if len(s.Root) != keccak.HashBytes {
		return treeID, fmt.Errorf("%w: root of tree %s is %d bytes", ErrStateIncomplete, treeID, len(s.Root))
	}
	return treeID, nil
}

func (s TreeState) detached() TreeState {
	s.Root = nil
	return s
}

// WithRoot returns a copy of s with root attached, as VerifySigned needs.
func (s TreeState) WithRoot(root keccak.Hash) TreeState {
	s.Root = root[:]
	return s
}

// StateFromAccount captures the current head of the account.
func StateFromAccount(treeID address.Address, a *account.Account, now time.Time) TreeState {
	root := a.CurrentRoot()
	return TreeState{
		TreeID:         treeID[:],
		Root:           root[:],
		SequenceNumber: a.SequenceNumber(),
		Timestamp:      now.UnixMilli(),
		ActiveIndex:    a.Tree.ActiveIndex,
		BufferSize:     a.Tree.BufferSize,
		LeafCount:      a.LeafCount(),
		MaxDepth:       a.MaxDepth(),
		MaxBufferSize:  a.MaxBufferSize(),
	}
}

// RootAt returns the root the account had at sequence number seq, provided
// the change log for seq has not been overwritten.
func RootAt(a *account.Account, seq uint64) (keccak.Hash, error) {
	t := a.Tree
	if !t.IsInitialized() || seq > t.SequenceNumber {
		return keccak.Hash{}, ErrRootNotRetained
	}
	back := t.SequenceNumber - seq
	if back >= t.BufferSize {
		return keccak.Hash{}, ErrRootNotRetained
	}
	size := uint64(t.MaxBufferSize)
	slot := (t.ActiveIndex + size - back%size) % size
	return t.ChangeLogs[slot].Root, nil
}

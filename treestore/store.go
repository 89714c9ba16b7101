// Package treestore persists tree accounts and their signed checkpoints.
//
// Every tree lives under its own prefix:
//
//	v1/cmt/trees/{treeID}/account.bin
//	v1/cmt/trees/{treeID}/checkpoints/{seq}.sth
//	v1/cmt/trees/{treeID}/events/{seq}.cbor
//
// Account writes are guarded by etags so concurrent sequencers can not
// silently overwrite one another. Checkpoints and events are write once.
package treestore

import (
	"context"
	"time"

	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/address"
)

// StoredAccount is a tree account together with the etag that guards the
// next write of it.
type StoredAccount struct {
	TreeID       address.Address
	Account      *account.Account
	ETag         string
	LastModified time.Time
	// Creating is set until the account has been written for the first time.
	Creating bool
}

// NewStoredAccount wraps an account that has not been stored yet.
func NewStoredAccount(treeID address.Address, a *account.Account) *StoredAccount {
	return &StoredAccount{TreeID: treeID, Account: a, Creating: true}
}

func (sa *StoredAccount) Clone() *StoredAccount {
	out := *sa
	out.Account = sa.Account.Clone()
	return &out
}

type AccountStore interface {
	// GetAccount returns ErrNotFound if the tree has never been committed.
	GetAccount(ctx context.Context, treeID address.Address) (*StoredAccount, error)
	// CommitAccount writes the account, creating it if sa.Creating is set and
	// otherwise requiring sa.ETag to be current. On success sa carries the
	// new etag.
	CommitAccount(ctx context.Context, sa *StoredAccount) error
}

type CheckpointStore interface {
	// PutCheckpoint fails with ErrExistsOC if a checkpoint for seq exists.
	PutCheckpoint(ctx context.Context, treeID address.Address, seq uint64, data []byte) error
	GetCheckpoint(ctx context.Context, treeID address.Address, seq uint64) ([]byte, error)
	// LatestCheckpoint returns the checkpoint with the highest sequence
	// number, or ErrNotFound.
	LatestCheckpoint(ctx context.Context, treeID address.Address) (uint64, []byte, error)
}

// EventStore records the change log event of every accepted operation so
// indexers can replay them.
type EventStore interface {
	// PutEvent fails with ErrExistsOC if an event for seq exists.
	PutEvent(ctx context.Context, treeID address.Address, seq uint64, data []byte) error
	// ListEventSeqs returns the recorded sequence numbers >= from, ascending.
	ListEventSeqs(ctx context.Context, treeID address.Address, from uint64) ([]uint64, error)
	GetEvent(ctx context.Context, treeID address.Address, seq uint64) ([]byte, error)
}

type Store interface {
	AccountStore
	CheckpointStore
	EventStore
}

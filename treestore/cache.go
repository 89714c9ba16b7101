package treestore

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/forestrie/go-cmtree/address"
)

// DefaultCacheSize is the number of accounts CachingStore keeps by default.
const DefaultCacheSize = 64

// CachingStore keeps recently used accounts in memory. A cached account can
// be stale if another process commits the same tree, in which case the next
// CommitAccount fails its etag check and the entry is dropped. Callers see
// the conflict and reload.
type CachingStore struct {
	Store
	accounts *lru.Cache[address.Address, *StoredAccount]
}

func NewCachingStore(store Store, size int) (*CachingStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	accounts, err := lru.New[address.Address, *StoredAccount](size)
	if err != nil {
		return nil, err
	}
	return &CachingStore{Store: store, accounts: accounts}, nil
}

// GetAccount returns a private copy, so callers may modify it freely.
func (s *CachingStore) GetAccount(ctx context.Context, treeID address.Address) (*StoredAccount, error) {
	if sa, ok := s.accounts.Get(treeID); ok {
		return sa.Clone(), nil
	}
	sa, err := s.Store.GetAccount(ctx, treeID)
	if err != nil {
		return nil, err
	}
	s.accounts.Add(treeID, sa.Clone())
	return sa, nil
}

func (s *CachingStore) CommitAccount(ctx context.Context, sa *StoredAccount) error {
	if err := s.Store.CommitAccount(ctx, sa); err != nil {
		if IsConflict(err) {
			s.accounts.Remove(sa.TreeID)
		}
		return err
	}
	s.accounts.Add(sa.TreeID, sa.Clone())
	return nil
}

// Invalidate drops any cached copy of the tree.
func (s *CachingStore) Invalidate(treeID address.Address) {
	s.accounts.Remove(treeID)
}

func (s *CachingStore) Len() int { return s.accounts.Len() }

package treestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/address"
)

// BlobStore implements Store over any Objects backend.
type BlobStore struct {
	Log     logger.Logger
	Objects Objects
}

func NewBlobStore(log logger.Logger, objects Objects) *BlobStore {
	return &BlobStore{Log: log, Objects: objects}
}

// NewAzureStore stores trees in azure blob storage.
func NewAzureStore(log logger.Logger, store *azblob.Storer) *BlobStore {
	return NewBlobStore(log, NewAzureObjects(store))
}

// NewDirStore stores trees as files below root.
func NewDirStore(log logger.Logger, root string) *BlobStore {
	return NewBlobStore(log, NewDirObjects(root))
}

func (s *BlobStore) GetAccount(ctx context.Context, treeID address.Address) (*StoredAccount, error) {
	blobPath := AccountBlobPath(treeID)
	obj, err := s.Objects.Read(ctx, blobPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", blobPath, err)
	}
	a, err := account.Decode(obj.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", blobPath, err)
	}
	return &StoredAccount{
		TreeID:       treeID,
		Account:      a,
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
	}, nil
}

func (s *BlobStore) CommitAccount(ctx context.Context, sa *StoredAccount) error {
	// CRITICAL: the etag must guard every update. It is absent only when
	// creating the account.
	cond := WriteCondition{Create: true}
	if !sa.Creating {
		if sa.ETag == "" {
			return ErrETagRequired
		}
		cond = WriteCondition{ETag: sa.ETag}
	}

	data, err := sa.Account.MarshalBinary()
	if err != nil {
		return err
	}

	blobPath := AccountBlobPath(sa.TreeID)
	etag, err := s.Objects.Write(ctx, blobPath, data, cond)
	if err != nil {
		return fmt.Errorf("%s: %w", blobPath, err)
	}
	s.Log.Debugf("committed %s seq %d etag %s", blobPath, sa.Account.SequenceNumber(), etag)

	sa.ETag = etag
	sa.Creating = false
	sa.LastModified = lastModifiedNow()
	return nil
}

func (s *BlobStore) PutCheckpoint(ctx context.Context, treeID address.Address, seq uint64, data []byte) error {
	blobPath := CheckpointBlobPath(treeID, seq)
	if _, err := s.Objects.Write(ctx, blobPath, data, WriteCondition{Create: true}); err != nil {
		return fmt.Errorf("%s: %w", blobPath, err)
	}
	s.Log.Debugf("checkpoint %s", blobPath)
	return nil
}

func (s *BlobStore) GetCheckpoint(ctx context.Context, treeID address.Address, seq uint64) ([]byte, error) {
	blobPath := CheckpointBlobPath(treeID, seq)
	obj, err := s.Objects.Read(ctx, blobPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", blobPath, err)
	}
	return obj.Data, nil
}

func (s *BlobStore) LatestCheckpoint(ctx context.Context, treeID address.Address) (uint64, []byte, error) {
	prefix := CheckpointsPrefix(treeID)
	paths, err := s.Objects.List(ctx, prefix)
	if err != nil {
		return 0, nil, err
	}

	// names are zero padded so the lexically last is the latest
	for i := len(paths) - 1; i >= 0; i-- {
		seq, err := CheckpointSeqFromPath(paths[i])
		if errors.Is(err, ErrNotSequencedPath) {
			continue
		}
		if err != nil {
			return 0, nil, err
		}
		data, err := s.GetCheckpoint(ctx, treeID, seq)
		if err != nil {
			return 0, nil, err
		}
		return seq, data, nil
	}
	return 0, nil, fmt.Errorf("%s: %w", prefix, ErrNotFound)
}

func (s *BlobStore) PutEvent(ctx context.Context, treeID address.Address, seq uint64, data []byte) error {
	blobPath := EventBlobPath(treeID, seq)
	if _, err := s.Objects.Write(ctx, blobPath, data, WriteCondition{Create: true}); err != nil {
		return fmt.Errorf("%s: %w", blobPath, err)
	}
	return nil
}

func (s *BlobStore) ListEventSeqs(ctx context.Context, treeID address.Address, from uint64) ([]uint64, error) {
	paths, err := s.Objects.List(ctx, EventsPrefix(treeID))
	if err != nil {
		return nil, err
	}
	var seqs []uint64
	for _, p := range paths {
		seq, err := EventSeqFromPath(p)
		if errors.Is(err, ErrNotSequencedPath) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if seq >= from {
			seqs = append(seqs, seq)
		}
	}
	return seqs, nil
}

func (s *BlobStore) GetEvent(ctx context.Context, treeID address.Address, seq uint64) ([]byte, error) {
	blobPath := EventBlobPath(treeID, seq)
	obj, err := s.Objects.Read(ctx, blobPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", blobPath, err)
	}
	return obj.Data, nil
}

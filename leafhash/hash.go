// Package leafhash computes the content hashes committed to by tree leaves.
//
// Every function here is pure and hashes byte exact concatenations of fixed
// width fields, never intermediate structured values, so that the results
// match the on-chain program bit for bit.
package leafhash

import (
	"hash"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
)

// Metadata is implemented by both metadata schema versions.
type Metadata interface {
	MarshalBinary() ([]byte, error)
	BasisPoints() uint16
	CreatorList() []Creator
}

// DataHash returns H(H(serialize(metadata)) || u16le(basisPoints))
func DataHash(metadata Metadata) (keccak.Hash, error) {
	data, err := metadata.MarshalBinary()
	if err != nil {
		return keccak.Hash{}, err
	}
	argsHash := keccak.Sum(data)

	hasher := keccak.New()
	hasher.Write(argsHash[:])
	keccak.HashWriteUint16(hasher, metadata.BasisPoints())
	return keccak.SumHasher(hasher), nil
}

// CreatorHash hashes address || verified || share for each creator, in order.
// An empty list hashes to H().
func CreatorHash(creators []Creator) keccak.Hash {
	hasher := keccak.New()
	for _, c := range creators {
		hasher.Write(c.Address[:])
		if c.Verified {
			keccak.HashWriteUint8(hasher, 1)
		} else {
			keccak.HashWriteUint8(hasher, 0)
		}
		keccak.HashWriteUint8(hasher, c.Share)
	}
	return keccak.SumHasher(hasher)
}

// CollectionHash hashes the collection key. Pass address.Zero when the asset
// has no collection.
func CollectionHash(collection address.Address) keccak.Hash {
	return keccak.Sum(collection[:])
}

// AssetDataHash hashes optional off-metadata asset data. nil and empty data
// hash identically.
func AssetDataHash(data []byte) keccak.Hash {
	return keccak.Sum(data)
}

func DefaultCollectionHash() keccak.Hash { return CollectionHash(address.Zero) }

func DefaultAssetDataHash() keccak.Hash { return AssetDataHash(nil) }

// LeafHashV1 returns
//
//	H(u8(1) || id || owner || delegate || u64le(nonce) || dataHash || creatorHash)
func LeafHashV1(
	id, owner, delegate address.Address, nonce uint64, dataHash, creatorHash keccak.Hash,
) keccak.Hash {
	hasher := keccak.New()
	writeCommon(hasher, V1, id, owner, delegate, nonce, dataHash, creatorHash)
	return keccak.SumHasher(hasher)
}

// LeafHashV2 returns
//
//	H(u8(2) || id || owner || delegate || u64le(nonce) || dataHash ||
//	  creatorHash || collectionHash || assetDataHash || u8(flags))
//
// flags with undefined bits set are rejected.
func LeafHashV2(
	id, owner, delegate address.Address, nonce uint64,
	dataHash, creatorHash, collectionHash, assetDataHash keccak.Hash, flags Flags,
) (keccak.Hash, error) {
	if err := flags.Validate(); err != nil {
		return keccak.Hash{}, err
	}
	hasher := keccak.New()
	writeCommon(hasher, V2, id, owner, delegate, nonce, dataHash, creatorHash)
	hasher.Write(collectionHash[:])
	hasher.Write(assetDataHash[:])
	keccak.HashWriteUint8(hasher, uint8(flags))
	return keccak.SumHasher(hasher), nil
}

func writeCommon(
	hasher hash.Hash, version Version,
	id, owner, delegate address.Address, nonce uint64, dataHash, creatorHash keccak.Hash,
) {
	hasher.Write([]byte{byte(version)})
	hasher.Write(id[:])
	hasher.Write(owner[:])
	hasher.Write(delegate[:])
	keccak.HashWriteUint64(hasher, nonce)
	hasher.Write(dataHash[:])
	hasher.Write(creatorHash[:])
}

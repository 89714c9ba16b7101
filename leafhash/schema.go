package leafhash

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
)

// Version selects the leaf schema. The value is also the first byte hashed
// into the leaf.
type Version uint8

const (
	V1 Version = 1
	V2 Version = 2
)

// Flags is the v2 leaf status bitmask. Only the low three bits are defined.
type Flags uint8

const (
	FlagFrozenByOwner             Flags = 1 << 0
	FlagFrozenByPermanentDelegate Flags = 1 << 1
	FlagNonTransferable           Flags = 1 << 2

	flagsMask = FlagFrozenByOwner | FlagFrozenByPermanentDelegate | FlagNonTransferable
)

var (
	ErrInvalidFlags   = errors.New("leaf flags have bits set outside 0..2")
	ErrUnknownVersion = errors.New("unknown leaf schema version")
)

// Validate rejects any value with undefined bits. Callers must not rely on
// the hasher to mask them.
func (f Flags) Validate() error {
	if f&^flagsMask != 0 {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidFlags, uint8(f))
	}
	return nil
}

// FlagsFromUint converts a wider integer, rejecting anything outside u8 or
// with undefined bits set.
func FlagsFromUint(n uint64) (Flags, error) {
	if n > 0xff {
		return 0, fmt.Errorf("%w: %d does not fit u8", ErrInvalidFlags, n)
	}
	f := Flags(n)
	return f, f.Validate()
}

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

func (f Flags) Frozen() bool {
	return f&(FlagFrozenByOwner|FlagFrozenByPermanentDelegate) != 0
}

// LeafSchema holds the logical fields of a leaf. The V2 only fields are
// ignored when Version is V1.
type LeafSchema struct {
	Version     Version
	ID          address.Address
	Owner       address.Address
	Delegate    address.Address
	Nonce       uint64
	DataHash    keccak.Hash
	CreatorHash keccak.Hash

	CollectionHash keccak.Hash
	AssetDataHash  keccak.Hash
	Flags          Flags
}

func NewLeafSchemaV1(
	id, owner, delegate address.Address, nonce uint64, dataHash, creatorHash keccak.Hash,
) LeafSchema {
	return LeafSchema{
		Version:     V1,
		ID:          id,
		Owner:       owner,
		Delegate:    delegate,
		Nonce:       nonce,
		DataHash:    dataHash,
		CreatorHash: creatorHash,
	}
}

// NewLeafSchemaV2 returns a v2 leaf with the collection and asset data hashes
// set to their "absent" defaults.
func NewLeafSchemaV2(
	id, owner, delegate address.Address, nonce uint64, dataHash, creatorHash keccak.Hash, flags Flags,
) LeafSchema {
	return LeafSchema{
		Version:        V2,
		ID:             id,
		Owner:          owner,
		Delegate:       delegate,
		Nonce:          nonce,
		DataHash:       dataHash,
		CreatorHash:    creatorHash,
		CollectionHash: DefaultCollectionHash(),
		AssetDataHash:  DefaultAssetDataHash(),
		Flags:          flags,
	}
}

// Hash returns the leaf node value stored in the tree.
func (ls LeafSchema) Hash() (keccak.Hash, error) {
	switch ls.Version {
	case V1:
		return LeafHashV1(ls.ID, ls.Owner, ls.Delegate, ls.Nonce, ls.DataHash, ls.CreatorHash), nil
	case V2:
		return LeafHashV2(
			ls.ID, ls.Owner, ls.Delegate, ls.Nonce, ls.DataHash, ls.CreatorHash,
			ls.CollectionHash, ls.AssetDataHash, ls.Flags)
	default:
		return keccak.Hash{}, fmt.Errorf("%w: %d", ErrUnknownVersion, ls.Version)
	}
}

// WithOwner returns a copy transferred to owner. Transfers reset the delegate
// to the new owner.
func (ls LeafSchema) WithOwner(owner address.Address) LeafSchema {
	ls.Owner = owner
	ls.Delegate = owner
	return ls
}

func (ls LeafSchema) WithDelegate(delegate address.Address) LeafSchema {
	ls.Delegate = delegate
	return ls
}

func (ls LeafSchema) WithFlags(flags Flags) LeafSchema {
	ls.Flags = flags
	return ls
}

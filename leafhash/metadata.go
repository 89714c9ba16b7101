package leafhash

import (
	"github.com/near/borsh-go"

	"github.com/forestrie/go-cmtree/address"
)

type TokenStandard uint8

const (
	TokenStandardNonFungible TokenStandard = iota
	TokenStandardFungibleAsset
	TokenStandardFungible
	TokenStandardNonFungibleEdition
)

type UseMethod uint8

const (
	UseMethodBurn UseMethod = iota
	UseMethodMultiple
	UseMethodSingle
)

type TokenProgramVersion uint8

const (
	TokenProgramVersionOriginal TokenProgramVersion = iota
	TokenProgramVersionToken2022
)

type Creator struct {
	Address  address.Address
	Verified bool
	// Share is the percentage of royalties owed to this creator.
	Share uint8
}

type Collection struct {
	Verified bool
	Key      address.Address
}

type Uses struct {
	UseMethod UseMethod
	Remaining uint64
	Total     uint64
}

// MetadataArgs is the v1 core metadata committed to by a leaf's data hash.
//
// The fields are serialized in the order declared, so the order is part of
// the hash. Pointer fields are borsh options and the uint8 enums are a
// single variant byte.
type MetadataArgs struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	PrimarySaleHappened  bool
	IsMutable            bool
	EditionNonce         *uint8
	TokenStandard        *TokenStandard
	Collection           *Collection
	Uses                 *Uses
	TokenProgramVersion  TokenProgramVersion
	Creators             []Creator
}

// MetadataArgsV2 drops editions, uses and the token program version and
// carries the collection as a bare key.
type MetadataArgsV2 struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	PrimarySaleHappened  bool
	IsMutable            bool
	TokenStandard        *TokenStandard
	Creators             []Creator
	Collection           *address.Address
}

// MarshalBinary produces the canonical serialization hashed by DataHash:
// the program's borsh encoding of the fields in declaration order.
func (m MetadataArgs) MarshalBinary() ([]byte, error) {
	return borsh.Serialize(m)
}

func (m MetadataArgs) BasisPoints() uint16 { return m.SellerFeeBasisPoints }

func (m MetadataArgs) CreatorList() []Creator { return m.Creators }

func (m MetadataArgsV2) MarshalBinary() ([]byte, error) {
	return borsh.Serialize(m)
}

func (m MetadataArgsV2) BasisPoints() uint16 { return m.SellerFeeBasisPoints }

func (m MetadataArgsV2) CreatorList() []Creator { return m.Creators }

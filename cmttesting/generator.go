package cmttesting

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
	"github.com/forestrie/go-cmtree/leafhash"
	"github.com/stretchr/testify/require"
)

// TestGenerator produces the same addresses, hashes and assets for the same
// seed, so failures reproduce.
type TestGenerator struct {
	T    *testing.T
	rand *rand.Rand
}

func NewTestGenerator(t *testing.T, seed int64) *TestGenerator {
	return &TestGenerator{T: t, rand: rand.New(rand.NewSource(seed))}
}

func (g *TestGenerator) Address() address.Address {
	var a address.Address
	g.rand.Read(a[:])
	return a
}

func (g *TestGenerator) Hash() keccak.Hash {
	var h keccak.Hash
	g.rand.Read(h[:])
	return h
}

// Leaves returns n distinct non empty leaf hashes.
func (g *TestGenerator) Leaves(n int) []keccak.Hash {
	leaves := make([]keccak.Hash, n)
	for i := range leaves {
		leaves[i] = g.Hash()
	}
	return leaves
}

// NumberedLeaf is a leaf hash that depends only on i.
func NumberedLeaf(i uint64) keccak.Hash {
	hasher := keccak.New()
	keccak.HashWriteUint64(hasher, i)
	return keccak.SumHasher(hasher)
}

func (g *TestGenerator) Metadata(i uint64) leafhash.MetadataArgs {
	return leafhash.MetadataArgs{
		Name:                 fmt.Sprintf("asset %d", i),
		Symbol:               "CMT",
		URI:                  fmt.Sprintf("https://example.com/assets/%d.json", i),
		SellerFeeBasisPoints: uint16(g.rand.Intn(10000)),
		IsMutable:            true,
		TokenProgramVersion:  leafhash.TokenProgramVersionOriginal,
		Creators: []leafhash.Creator{
			{Address: g.Address(), Verified: true, Share: 100},
		},
	}
}

// Asset returns a V1 leaf for the asset minted at nonce, along with the
// metadata its data hash commits to.
func (g *TestGenerator) Asset(nonce uint64) (leafhash.LeafSchema, leafhash.MetadataArgs) {
	metadata := g.Metadata(nonce)
	dataHash, err := leafhash.DataHash(metadata)
	require.NoError(g.T, err)
	owner := g.Address()
	return leafhash.NewLeafSchemaV1(
		g.Address(), owner, owner, nonce, dataHash, leafhash.CreatorHash(metadata.Creators),
	), metadata
}

// AssetV2 is Asset for the V2 schema with the given flags.
func (g *TestGenerator) AssetV2(nonce uint64, flags leafhash.Flags) leafhash.LeafSchema {
	v1, _ := g.Asset(nonce)
	return leafhash.NewLeafSchemaV2(v1.ID, v1.Owner, v1.Delegate, nonce, v1.DataHash, v1.CreatorHash, flags)
}

func (g *TestGenerator) LeafHash(ls leafhash.LeafSchema) keccak.Hash {
	h, err := ls.Hash()
	require.NoError(g.T, err)
	return h
}

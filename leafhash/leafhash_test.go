package leafhash

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddress(seed byte) address.Address {
	var a address.Address
	for i := range a {
		a[i] = seed + byte(i)
	}
	return a
}

func testMetadata() MetadataArgs {
	nonce := uint8(7)
	standard := TokenStandardNonFungible
	return MetadataArgs{
		Name:                 "a",
		Symbol:               "",
		URI:                  "u",
		SellerFeeBasisPoints: 500,
		PrimarySaleHappened:  false,
		IsMutable:            true,
		EditionNonce:         &nonce,
		TokenStandard:        &standard,
		TokenProgramVersion:  TokenProgramVersionOriginal,
		Creators: []Creator{
			{Address: testAddress(1), Verified: true, Share: 100},
		},
	}
}

func TestMetadataArgsMarshalBinary(t *testing.T) {
	m := testMetadata()
	got, err := m.MarshalBinary()
	require.NoError(t, err)

	var want bytes.Buffer
	want.Write([]byte{1, 0, 0, 0, 'a'})
	want.Write([]byte{0, 0, 0, 0})
	want.Write([]byte{1, 0, 0, 0, 'u'})
	want.Write([]byte{0xf4, 0x01}) // 500
	want.Write([]byte{0, 1})       // primary sale, mutable
	want.Write([]byte{1, 7})       // edition nonce
	want.Write([]byte{1, 0})       // token standard
	want.Write([]byte{0})          // collection
	want.Write([]byte{0})          // uses
	want.Write([]byte{0})          // token program version
	want.Write([]byte{1, 0, 0, 0})
	a := testAddress(1)
	want.Write(a[:])
	want.Write([]byte{1, 100})

	assert.Equal(t, want.Bytes(), got)
}

func TestMetadataArgsOptionalFields(t *testing.T) {
	m := testMetadata()
	m.EditionNonce = nil
	m.TokenStandard = nil
	m.Collection = &Collection{Verified: true, Key: testAddress(9)}
	m.Uses = &Uses{UseMethod: UseMethodSingle, Remaining: 1, Total: 2}
	m.Creators = nil

	got, err := m.MarshalBinary()
	require.NoError(t, err)

	// skip the fixed prefix: name, symbol, uri, bps, two bools
	prefix := 5 + 4 + 5 + 2 + 2
	rest := got[prefix:]

	var want bytes.Buffer
	want.Write([]byte{0})    // edition nonce
	want.Write([]byte{0})    // token standard
	want.Write([]byte{1, 1}) // collection present, verified
	k := testAddress(9)
	want.Write(k[:])
	want.Write([]byte{1, 2}) // uses present, single
	var u [16]byte
	binary.LittleEndian.PutUint64(u[:8], 1)
	binary.LittleEndian.PutUint64(u[8:], 2)
	want.Write(u[:])
	want.Write([]byte{0})          // token program version
	want.Write([]byte{0, 0, 0, 0}) // no creators

	assert.Equal(t, want.Bytes(), rest)
}

func TestMetadataArgsV2MarshalBinary(t *testing.T) {
	collection := testAddress(3)
	m := MetadataArgsV2{
		Name:                 "n",
		URI:                  "",
		SellerFeeBasisPoints: 1,
		IsMutable:            true,
		Collection:           &collection,
	}
	got, err := m.MarshalBinary()
	require.NoError(t, err)

	var want bytes.Buffer
	want.Write([]byte{1, 0, 0, 0, 'n'})
	want.Write([]byte{0, 0, 0, 0})
	want.Write([]byte{0, 0, 0, 0})
	want.Write([]byte{1, 0})
	want.Write([]byte{0, 1})
	want.Write([]byte{0})          // token standard
	want.Write([]byte{0, 0, 0, 0}) // creators
	want.Write([]byte{1})
	want.Write(collection[:])
	assert.Equal(t, want.Bytes(), got)
}

func TestDataHash(t *testing.T) {
	m := testMetadata()
	data, err := m.MarshalBinary()
	require.NoError(t, err)

	inner := keccak.Sum(data)
	want := keccak.Sum(inner[:], []byte{0xf4, 0x01})

	got, err := DataHash(m)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	again, err := DataHash(m)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	m.SellerFeeBasisPoints = 501
	changed, err := DataHash(m)
	require.NoError(t, err)
	assert.NotEqual(t, got, changed)
}

func TestCreatorHash(t *testing.T) {
	assert.Equal(t, keccak.Sum(), CreatorHash(nil))
	assert.Equal(t, keccak.Sum(), CreatorHash([]Creator{}))

	a := testAddress(1)
	b := testAddress(2)
	creators := []Creator{
		{Address: a, Verified: true, Share: 60},
		{Address: b, Verified: false, Share: 40},
	}
	want := keccak.Sum(a[:], []byte{1, 60}, b[:], []byte{0, 40})
	assert.Equal(t, want, CreatorHash(creators))

	// order matters
	reversed := []Creator{creators[1], creators[0]}
	assert.NotEqual(t, want, CreatorHash(reversed))
}

func TestLeafHashV1(t *testing.T) {
	id, owner, delegate := testAddress(10), testAddress(20), testAddress(30)
	dataHash := keccak.Sum([]byte("data"))
	creatorHash := keccak.Sum([]byte("creators"))
	nonce := uint64(0x0102030405060708)

	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], nonce)
	want := keccak.Sum([]byte{1}, id[:], owner[:], delegate[:], nb[:], dataHash[:], creatorHash[:])

	got := LeafHashV1(id, owner, delegate, nonce, dataHash, creatorHash)
	assert.Equal(t, want, got)

	ls := NewLeafSchemaV1(id, owner, delegate, nonce, dataHash, creatorHash)
	fromSchema, err := ls.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, fromSchema)
}

func TestLeafHashV2(t *testing.T) {
	id, owner, delegate := testAddress(10), testAddress(20), testAddress(30)
	dataHash := keccak.Sum([]byte("data"))
	creatorHash := keccak.Sum([]byte("creators"))
	nonce := uint64(42)
	flags := FlagFrozenByOwner | FlagNonTransferable // 0b101

	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], nonce)
	collectionHash := DefaultCollectionHash()
	assetDataHash := DefaultAssetDataHash()
	want := keccak.Sum(
		[]byte{2}, id[:], owner[:], delegate[:], nb[:], dataHash[:], creatorHash[:],
		collectionHash[:], assetDataHash[:], []byte{0b101})

	ls := NewLeafSchemaV2(id, owner, delegate, nonce, dataHash, creatorHash, flags)
	got, err := ls.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, Flags(0b101), ls.Flags)

	// the shared fields alone do not make v1 and v2 collide
	v1 := LeafHashV1(id, owner, delegate, nonce, dataHash, creatorHash)
	assert.NotEqual(t, v1, got)
}

func TestDefaultHashes(t *testing.T) {
	zero := make([]byte, 32)
	assert.Equal(t, keccak.Sum(zero), DefaultCollectionHash())
	assert.Equal(t, keccak.Sum(), DefaultAssetDataHash())
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", DefaultAssetDataHash().Hex())
}

func TestFlagsValidation(t *testing.T) {
	tests := []struct {
		name    string
		value   uint64
		wantErr bool
	}{
		{"zero", 0, false},
		{"frozen by owner", 1, false},
		{"bits 0 and 2", 0b101, false},
		{"all defined", 0b111, false},
		{"bit 3", 0b1000, true},
		{"0xff", 0xff, true},
		{"does not fit u8", 0x100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := FlagsFromUint(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFlags)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint8(tt.value), uint8(f))
		})
	}
}

func TestLeafHashV2RejectsInvalidFlags(t *testing.T) {
	ls := NewLeafSchemaV2(testAddress(1), testAddress(2), testAddress(3), 0, keccak.Hash{}, keccak.Hash{}, Flags(0xff))
	_, err := ls.Hash()
	assert.ErrorIs(t, err, ErrInvalidFlags)
}

func TestFlagsPredicates(t *testing.T) {
	f := FlagFrozenByPermanentDelegate
	assert.True(t, f.Frozen())
	assert.True(t, f.Has(FlagFrozenByPermanentDelegate))
	assert.False(t, f.Has(FlagNonTransferable))
	assert.False(t, FlagNonTransferable.Frozen())
}

func TestUnknownVersion(t *testing.T) {
	ls := LeafSchema{Version: 3}
	_, err := ls.Hash()
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestWithOwnerResetsDelegate(t *testing.T) {
	ls := NewLeafSchemaV1(testAddress(1), testAddress(2), testAddress(3), 0, keccak.Hash{}, keccak.Hash{})
	next := ls.WithOwner(testAddress(4))
	assert.Equal(t, testAddress(4), next.Owner)
	assert.Equal(t, testAddress(4), next.Delegate)
	assert.Equal(t, testAddress(2), ls.Owner)
}

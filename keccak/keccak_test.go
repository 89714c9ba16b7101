package keccak

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumKnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		parts [][]byte
		want  string
	}{
		{"empty", nil, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"empty part", [][]byte{{}}, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"two zero nodes", [][]byte{make([]byte, 32), make([]byte, 32)}, "ad3228b676f7d3cd4284a5443f17f1962b36e491b30a40b2405849e597ba5fb5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sum(tt.parts...).Hex())
		})
	}
}

func TestSumIsConcatenation(t *testing.T) {
	a := []byte("hello ")
	b := []byte("world")
	assert.Equal(t, Sum([]byte("hello world")), Sum(a, b))
}

func TestEmptyNode(t *testing.T) {
	assert.Equal(t, Empty, EmptyNode(0))
	assert.Equal(t, "ad3228b676f7d3cd4284a5443f17f1962b36e491b30a40b2405849e597ba5fb5", EmptyNode(1).Hex())
	for h := uint32(1); h <= MaxSupportedDepth; h++ {
		assert.Equal(t, Parent(EmptyNode(h-1), EmptyNode(h-1)), EmptyNode(h))
	}
	assert.Panics(t, func() { EmptyNode(MaxSupportedDepth + 1) })
}

func TestHashToParent(t *testing.T) {
	left := Sum([]byte("l"))
	right := Sum([]byte("r"))

	node := left
	HashToParent(&node, right, true)
	assert.Equal(t, Parent(left, right), node)

	node = right
	HashToParent(&node, left, false)
	assert.Equal(t, Parent(left, right), node)
}

func TestBase58RoundTrip(t *testing.T) {
	h := Sum([]byte("root"))
	got, err := FromBase58(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = FromBase58("0OIl")
	assert.ErrorIs(t, err, ErrHashNotBase58)

	_, err = FromBase58("3yZe7d")
	assert.ErrorIs(t, err, ErrHashBadSize)
}

func TestFromHex(t *testing.T) {
	h := Sum([]byte("x"))
	got, err := FromHex("0x" + h.Hex())
	require.NoError(t, err)
	assert.Equal(t, h, got)

	got, err = FromHex(h.Hex())
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestTextMarshaling(t *testing.T) {
	h := Sum([]byte("text"))
	text, err := h.MarshalText()
	require.NoError(t, err)

	var got Hash
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, h, got)
}

func TestHashWriters(t *testing.T) {
	hasher := New()
	HashWriteUint8(hasher, 1)
	HashWriteUint16(hasher, 0x0201)
	HashWriteUint64(hasher, 0x0807060504030201)
	got := SumHasher(hasher)

	want := Sum([]byte{1, 1, 2, 1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, want, got)
}

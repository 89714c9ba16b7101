package keccak

import (
	"encoding/binary"
	"hash"

	"golang.org/x/crypto/sha3"
)

// The remote program encodes every fixed width integer little endian. These
// helpers write directly into a hasher so callers can build a digest field by
// field without an intermediate buffer.

func HashWriteUint8(hasher hash.Hash, value uint8) {
	hasher.Write([]byte{value})
}

func HashWriteUint16(hasher hash.Hash, value uint16) {
	b := [2]byte{}
	binary.LittleEndian.PutUint16(b[:], value)
	hasher.Write(b[:])
}

func HashWriteUint64(hasher hash.Hash, value uint64) {
	b := [8]byte{}
	binary.LittleEndian.PutUint64(b[:], value)
	hasher.Write(b[:])
}

// New returns a fresh legacy keccak hasher for callers that stream fields.
func New() hash.Hash {
	return sha3.NewLegacyKeccak256()
}

// SumHasher finalizes hasher into a Hash.
func SumHasher(hasher hash.Hash) Hash {
	var out Hash
	hasher.Sum(out[:0])
	return out
}

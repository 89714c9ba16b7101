// Package keccak provides the single digest used throughout the tree: legacy
// Keccak-256 (the pre-standard SHA3 padding). Leaf content hashes, data and
// creator hashes and interior tree nodes are all produced by it.
package keccak

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sync"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

const (
	// HashBytes is the width of every node, leaf and content hash.
	HashBytes = 32

	// MaxSupportedDepth bounds the empty node table. No tree may be deeper.
	MaxSupportedDepth = 30
)

var (
	ErrHashBadSize   = errors.New("hash value must be exactly 32 bytes")
	ErrHashNotBase58 = errors.New("hash value is not valid base58")
)

// Hash is a 32 byte keccak digest. The all zero value is the empty leaf.
type Hash [HashBytes]byte

// Empty is the value of a leaf that has never been written (or was removed).
var Empty Hash

var hasherPool = sync.Pool{
	New: func() any {
		return sha3.NewLegacyKeccak256()
	},
}

func getHasher() hash.Hash {
	h := hasherPool.Get().(hash.Hash)
	h.Reset()
	return h
}

// Sum hashes the byte exact concatenation of parts.
func Sum(parts ...[]byte) Hash {
	h := getHasher()
	defer hasherPool.Put(h)

	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// Parent returns H(left || right)
func Parent(left, right Hash) Hash {
	return Sum(left[:], right[:])
}

// HashToParent replaces node with its parent. isLeft reports whether node is
// the left child of that parent.
func HashToParent(node *Hash, sibling Hash, isLeft bool) {
	if isLeft {
		*node = Parent(*node, sibling)
		return
	}
	*node = Parent(sibling, *node)
}

var (
	emptyOnce  sync.Once
	emptyNodes [MaxSupportedDepth + 1]Hash
)

// EmptyNode returns the root of a subtree of the given height in which every
// leaf is Empty. Height 0 is Empty itself.
//
//	e(0) = 0x00..00
//	e(h) = H(e(h-1) || e(h-1))
func EmptyNode(height uint32) Hash {
	emptyOnce.Do(func() {
		for i := 1; i <= MaxSupportedDepth; i++ {
			emptyNodes[i] = Parent(emptyNodes[i-1], emptyNodes[i-1])
		}
	})
	if height > MaxSupportedDepth {
		panic(fmt.Sprintf("empty node height %d exceeds %d", height, MaxSupportedDepth))
	}
	return emptyNodes[height]
}

// FromBytes copies b into a Hash. b must be exactly HashBytes long.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashBytes {
		return h, fmt.Errorf("%w: got %d", ErrHashBadSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// FromBase58 decodes the base58 text form used by indexers and explorers.
func FromBase58(s string) (Hash, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrHashNotBase58, err)
	}
	return FromBytes(b)
}

// FromHex decodes a hex string, with or without a 0x prefix.
func FromHex(s string) (Hash, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return FromBytes(b)
}

func (h Hash) IsEmpty() bool { return h == Empty }

// String renders the hash in base58, matching how roots and proofs are
// exchanged with indexers.
func (h Hash) String() string { return base58.Encode(h[:]) }

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	v, err := FromBase58(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Hashes converts a slice of raw 32 byte values.
func Hashes(values [][]byte) ([]Hash, error) {
	out := make([]Hash, len(values))
	for i, v := range values {
		h, err := FromBytes(v)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = h
	}
	return out, nil
}

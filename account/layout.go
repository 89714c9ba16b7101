package account

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-cmtree/keccak"
)

const (
	// Account layout
	//
	// .       | type | header   | tree                                  | canopy         |
	// bytes   |  1   |   55     | 24 + maxBuffer*ChangeLog + Path       | 32 * nodes     |
	//
	// Header V1 (offsets from the start of the account)
	//
	// .       | type | version | maxBuffer | maxDepth | authority | creationSlot | batch | pad   |
	// .       |  0   |    1    |   2 - 5   |  6 - 9   |  10 - 41  |   42 - 49    |  50   | 51-55 |
	//
	// All integers are little endian. The header version byte selects the
	// layout of the remaining header bytes.

	NodeBytes = keccak.HashBytes

	DiscriminatorSize = 1
	HeaderSize        = 55
	HeaderEnd         = DiscriminatorSize + HeaderSize

	AccountTypeByte   = 0
	HeaderVersionByte = 1

	HeaderMaxBufferSizeFirstByte = 2
	HeaderMaxBufferSizeEnd       = HeaderMaxBufferSizeFirstByte + 4
	HeaderMaxDepthFirstByte      = HeaderMaxBufferSizeEnd
	HeaderMaxDepthEnd            = HeaderMaxDepthFirstByte + 4
	HeaderAuthorityFirstByte     = HeaderMaxDepthEnd
	HeaderAuthorityEnd           = HeaderAuthorityFirstByte + 32
	HeaderCreationSlotFirstByte  = HeaderAuthorityEnd
	HeaderCreationSlotEnd        = HeaderCreationSlotFirstByte + 8
	HeaderBatchInitializedByte   = HeaderCreationSlotEnd
	HeaderPaddingFirstByte       = HeaderBatchInitializedByte + 1
	HeaderPaddingSize            = 5

	// Tree fields are offsets from the end of the header.
	TreeSequenceNumberFirstByte = 0
	TreeActiveIndexFirstByte    = 8
	TreeBufferSizeFirstByte     = 16
	TreeChangeLogsFirstByte     = 24

	// index u32 plus u32 padding, in both ChangeLog and Path
	IndexFieldBytes = 8

	// MaxCanopyDepth is the deepest canopy a Config may request.
	MaxCanopyDepth = 17
)

var (
	ErrDecode               = errors.New("account decode failed")
	ErrAccountTooSmall      = fmt.Errorf("%w: too few bytes for an account header", ErrDecode)
	ErrAccountSizeMismatch  = fmt.Errorf("%w: account length does not match its shape", ErrDecode)
	ErrAccountTypeInvalid   = fmt.Errorf("%w: not a concurrent merkle tree account", ErrDecode)
	ErrUnknownHeaderVersion = fmt.Errorf("%w: unknown header version", ErrDecode)
	ErrCorruptTree          = fmt.Errorf("%w: tree counters are inconsistent", ErrDecode)
	ErrCanopyLength         = fmt.Errorf("%w: canopy is not a whole number of levels", ErrDecode)

	ErrInvalidConfig    = errors.New("invalid tree config")
	ErrUnsupportedShape = fmt.Errorf("%w: unsupported depth and buffer size", ErrInvalidConfig)
	ErrCanopyTooDeep    = fmt.Errorf("%w: canopy depth too large", ErrInvalidConfig)

	ErrCanopyNotAllocated = errors.New("account has no canopy")
	ErrCanopyRange        = errors.New("canopy nodes out of range")
	ErrCanopyRootMismatch = errors.New("canopy does not hash to the tree root")
	ErrCanopyNodesToRight = errors.New("canopy holds nodes to the right of the rightmost leaf")
)

// ChangeLogSize is [root][path * depth][index][pad]
func ChangeLogSize(maxDepth uint32) uint64 {
	return NodeBytes + NodeBytes*uint64(maxDepth) + IndexFieldBytes
}

// PathSize is [proof * depth][leaf][index][pad]
func PathSize(maxDepth uint32) uint64 {
	return NodeBytes*uint64(maxDepth) + NodeBytes + IndexFieldBytes
}

// TreeSize is the byte size of the tree section for the shape.
func TreeSize(maxDepth, maxBufferSize uint32) uint64 {
	return TreeChangeLogsFirstByte + uint64(maxBufferSize)*ChangeLogSize(maxDepth) + PathSize(maxDepth)
}

// CanopyNodeCount is max(2^(canopyDepth+1) - 2, 0)
func CanopyNodeCount(canopyDepth uint32) uint64 {
	if canopyDepth == 0 {
		return 0
	}
	return (uint64(1) << (canopyDepth + 1)) - 2
}

func CanopySize(canopyDepth uint32) uint64 {
	return NodeBytes * CanopyNodeCount(canopyDepth)
}

// AccountSize is the exact allocation for a tree of the given shape.
func AccountSize(maxDepth, maxBufferSize, canopyDepth uint32) uint64 {
	return DiscriminatorSize + HeaderSize + TreeSize(maxDepth, maxBufferSize) + CanopySize(canopyDepth)
}

// CanopyDepthForNodes recovers the canopy depth from a node count. The count
// must be 2^(d+1) - 2 for some d.
func CanopyDepthForNodes(nodes uint64) (uint32, error) {
	if nodes == 0 {
		return 0, nil
	}
	n := nodes + 2
	if n&(n-1) != 0 {
		return 0, fmt.Errorf("%w: %d nodes", ErrCanopyLength, nodes)
	}
	depth := uint32(0)
	for n > 2 {
		n >>= 1
		depth++
	}
	return depth, nil
}

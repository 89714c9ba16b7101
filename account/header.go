package account

import (
	"encoding/binary"
	"fmt"

	"github.com/forestrie/go-cmtree/address"
)

type AccountType uint8

const (
	AccountTypeUninitialized AccountType = iota
	AccountTypeConcurrentMerkleTree
)

type HeaderVersion uint8

const (
	HeaderVersionV1 HeaderVersion = iota

	HeaderCurrentVersion = HeaderVersionV1
)

// Header holds the fixed shape of a tree and who may change it. None of it
// changes after the account is created, except IsBatchInitialized which is
// set while a prepared tree is loaded.
type Header struct {
	Type               AccountType
	Version            HeaderVersion
	MaxBufferSize      uint32
	MaxDepth           uint32
	Authority          address.Address
	CreationSlot       uint64
	IsBatchInitialized bool
}

func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderEnd)
	if err := h.encode(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (h *Header) UnmarshalBinary(b []byte) error {
	return DecodeHeader(h, b)
}

func (h Header) encode(b []byte) error {
	b[AccountTypeByte] = byte(h.Type)
	b[HeaderVersionByte] = byte(h.Version)
	switch h.Version {
	case HeaderVersionV1:
		encodeHeaderV1(h, b)
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownHeaderVersion, h.Version)
	}
}

// DecodeHeader reads the account type and the versioned header from the
// start of account data. Each header version owns its own decoder.
func DecodeHeader(h *Header, b []byte) error {
	if len(b) < HeaderEnd {
		return fmt.Errorf("%w: %d < %d", ErrAccountTooSmall, len(b), HeaderEnd)
	}
	h.Type = AccountType(b[AccountTypeByte])
	if h.Type != AccountTypeConcurrentMerkleTree {
		return fmt.Errorf("%w: type %d", ErrAccountTypeInvalid, h.Type)
	}

	h.Version = HeaderVersion(b[HeaderVersionByte])
	switch h.Version {
	case HeaderVersionV1:
		decodeHeaderV1(h, b)
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownHeaderVersion, h.Version)
	}
}

func encodeHeaderV1(h Header, b []byte) {
	binary.LittleEndian.PutUint32(b[HeaderMaxBufferSizeFirstByte:HeaderMaxBufferSizeEnd], h.MaxBufferSize)
	binary.LittleEndian.PutUint32(b[HeaderMaxDepthFirstByte:HeaderMaxDepthEnd], h.MaxDepth)
	copy(b[HeaderAuthorityFirstByte:HeaderAuthorityEnd], h.Authority[:])
	binary.LittleEndian.PutUint64(b[HeaderCreationSlotFirstByte:HeaderCreationSlotEnd], h.CreationSlot)
	b[HeaderBatchInitializedByte] = 0
	if h.IsBatchInitialized {
		b[HeaderBatchInitializedByte] = 1
	}
	clear(b[HeaderPaddingFirstByte : HeaderPaddingFirstByte+HeaderPaddingSize])
}

func decodeHeaderV1(h *Header, b []byte) {
	h.MaxBufferSize = binary.LittleEndian.Uint32(b[HeaderMaxBufferSizeFirstByte:HeaderMaxBufferSizeEnd])
	h.MaxDepth = binary.LittleEndian.Uint32(b[HeaderMaxDepthFirstByte:HeaderMaxDepthEnd])
	copy(h.Authority[:], b[HeaderAuthorityFirstByte:HeaderAuthorityEnd])
	h.CreationSlot = binary.LittleEndian.Uint64(b[HeaderCreationSlotFirstByte:HeaderCreationSlotEnd])
	h.IsBatchInitialized = b[HeaderBatchInitializedByte] != 0
}

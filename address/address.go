// Package address defines the 32 byte account key used for tree ids, asset
// ids, owners, delegates and creators.
package address

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const Bytes = 32

var (
	ErrAddressBadSize   = errors.New("address must be exactly 32 bytes")
	ErrAddressNotBase58 = errors.New("address is not valid base58")
)

type Address [Bytes]byte

// Zero is the default (all zero) key. It doubles as the "no collection"
// marker when computing v2 collection hashes.
var Zero Address

func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Bytes {
		return a, fmt.Errorf("%w: got %d", ErrAddressBadSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Parse decodes the base58 text form of an address.
func Parse(s string) (Address, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrAddressNotBase58, err)
	}
	return FromBytes(b)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return base58.Encode(a[:]) }

func (a Address) IsZero() bool { return a == Zero }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

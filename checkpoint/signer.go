package checkpoint

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	dtcose "github.com/datatrails/go-datatrails-common/cose"
	"github.com/veraison/go-cose"
)

// IdentifiableCoseSigner is a cose signer that can also say which key it
// signs with, so the signed product can be verified.
type IdentifiableCoseSigner interface {
	cose.Signer
	PublicKey() (*ecdsa.PublicKey, error)
	KeyIdentifier() string
}

// KeySigner signs with an in memory ES256 key.
type KeySigner struct {
	cose.Signer
	key *ecdsa.PrivateKey
	kid string
}

func NewKeySigner(key *ecdsa.PrivateKey, kid string) (*KeySigner, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, err
	}
	return &KeySigner{Signer: signer, key: key, kid: kid}, nil
}

func (s *KeySigner) PublicKey() (*ecdsa.PublicKey, error) { return &s.key.PublicKey, nil }

func (s *KeySigner) KeyIdentifier() string { return s.kid }

// RootSigner produces signatures over tree states. Only sign a state read
// from a committed account.
type RootSigner struct {
	issuer    string
	cborCodec dtcbor.CBORCodec
}

func NewRootSigner(issuer string, cborCodec dtcbor.CBORCodec) RootSigner {
	return RootSigner{issuer: issuer, cborCodec: cborCodec}
}

// Sign1 signs state, which must carry its root, and returns the encoded COSE
// Sign1 message. The CWT subject is the base58 tree id. The signature covers
// the root but the returned payload does not hold it.
func (rs RootSigner) Sign1(
	coseSigner cose.Signer, keyIdentifier string, publicKey *ecdsa.PublicKey,
	state TreeState, external []byte,
) ([]byte, error) {
	treeID, err := state.check()
	if err != nil {
		return nil, err
	}
	attached, err := rs.cborCodec.MarshalCBOR(state)
	if err != nil {
		return nil, err
	}

	claims := dtcose.NewCNFClaim(rs.issuer, treeID.String(), keyIdentifier, coseSigner.Algorithm(), *publicKey)
	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{dtcose.HeaderLabelCWTClaims: claims},
		},
		Payload: attached,
	}
	if err := msg.Sign(rand.Reader, external, coseSigner); err != nil {
		return nil, fmt.Errorf("tree %s seq %d: %w", treeID, state.SequenceNumber, err)
	}

	if msg.Payload, err = rs.cborCodec.MarshalCBOR(state.detached()); err != nil {
		return nil, err
	}
	return msg.MarshalCBOR()
}

// Sign signs state using the key the signer identifies.
func (rs RootSigner) Sign(coseSigner IdentifiableCoseSigner, state TreeState) ([]byte, error) {
	publicKey, err := coseSigner.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("unable to get public key for signing key %w", err)
	}
	return rs.Sign1(coseSigner, coseSigner.KeyIdentifier(), publicKey, state, nil)
}

// NewStateCodec returns the deterministic codec tree states are signed
// with. Unsigned integers decode to uint64.
func NewStateCodec() (dtcbor.CBORCodec, error) {
	return dtcbor.NewCBORCodec(dtcbor.NewDeterministicEncOpts(), dtcbor.NewDeterministicDecOpts())
}

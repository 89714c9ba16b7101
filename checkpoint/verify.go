package checkpoint

import (
	"bytes"
	"crypto"
	"fmt"

	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	dtcose "github.com/datatrails/go-datatrails-common/cose"
	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/address"
	"github.com/veraison/go-cose"
)

type publicKeyProvider interface {
	PublicKey() (crypto.PublicKey, cose.Algorithm, error)
}

// DecodeSigned decodes the TreeState from a signed checkpoint. The state
// will not verify until its root is restored.
func DecodeSigned(codec dtcbor.CBORCodec, msg []byte) (*dtcose.CoseSign1Message, TreeState, error) {
	signed, err := dtcose.NewCoseSign1MessageFromCBOR(
		msg, dtcose.WithDecOptions(dtcbor.NewDeterministicDecOpts()))
	if err != nil {
		return nil, TreeState{}, err
	}

	var unverifiedState TreeState
	err = codec.UnmarshalInto(signed.Payload, &unverifiedState)
	if err != nil {
		return nil, TreeState{}, err
	}
	return signed, unverifiedState, nil
}

// VerifySigned applies the provided state, with its root restored, to the
// signed message and verifies the result.
//
// Verification is a 3 step process:
//  1. Use DecodeSigned to obtain the TreeState from the signed message.
//  2. Use TreeState.SequenceNumber to obtain the root from the account (see
//     RootAt).
//  3. Attach the root with TreeState.WithRoot and call this function.
//
// A state without its root fails with ErrStateIncomplete.
func VerifySigned(
	codec dtcbor.CBORCodec, keyProvider publicKeyProvider,
	signed *dtcose.CoseSign1Message, unverifiedState TreeState, external []byte,
) error {
	if _, err := unverifiedState.check(); err != nil {
		return err
	}
	var err error
	signed.Payload, err = codec.MarshalCBOR(unverifiedState)
	if err != nil {
		return err
	}
	return signed.VerifyWithProvider(keyProvider, external)
}

// VerifyAgainstAccount runs all three verification steps for a checkpoint
// of treeID, taking the root from a. The key is the one named in the
// message's CWT claims; callers that pin a key must compare it themselves.
func VerifyAgainstAccount(
	codec dtcbor.CBORCodec, msg []byte, treeID address.Address, a *account.Account,
) (TreeState, error) {
	signed, state, err := DecodeSigned(codec, msg)
	if err != nil {
		return TreeState{}, err
	}
	if !bytes.Equal(state.TreeID, treeID[:]) {
		return TreeState{}, fmt.Errorf("%w: %x", ErrTreeMismatch, state.TreeID)
	}
	if state.MaxDepth != a.MaxDepth() || state.MaxBufferSize != a.MaxBufferSize() {
		return TreeState{}, fmt.Errorf("%w: (%d, %d)", ErrShapeMismatch, state.MaxDepth, state.MaxBufferSize)
	}
	root, err := RootAt(a, state.SequenceNumber)
	if err != nil {
		return TreeState{}, fmt.Errorf("%w: seq %d", err, state.SequenceNumber)
	}
	state = state.WithRoot(root)
	if err := VerifySigned(codec, dtcose.NewCWTPublicKeyProvider(signed), signed, state, nil); err != nil {
		return TreeState{}, err
	}
	return state, nil
}

package checkpoint

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/datatrails/go-datatrails-common/azkeys"
	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/stretchr/testify/require"
)

func TestGenerateECKey(t *testing.T, curve elliptic.Curve) ecdsa.PrivateKey {
	privateKey, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	return *privateKey
}

func TestNewRootSigner(t *testing.T, issuer string) RootSigner {
	cborCodec, err := NewStateCodec()
	require.NoError(t, err)
	return NewRootSigner(issuer, cborCodec)
}

// TestSignerContext bundles a throw away signing key with a root signer.
type TestSignerContext struct {
	Key        ecdsa.PrivateKey
	RootSigner RootSigner
	CoseSigner *azkeys.TestCoseSigner
	Codec      dtcbor.CBORCodec
}

func NewTestSignerContext(t *testing.T, issuer string) *TestSignerContext {
	key := TestGenerateECKey(t, elliptic.P256())
	codec, err := NewStateCodec()
	require.NoError(t, err)
	return &TestSignerContext{
		Key:        key,
		RootSigner: TestNewRootSigner(t, issuer),
		CoseSigner: azkeys.NewTestCoseSigner(t, key),
		Codec:      codec,
	}
}

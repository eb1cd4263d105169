package identity

import (
	"crypto/ed25519"

	"github.com/meshpay/meshledger/common"
)

// Verifier is the only capability the ledger needs from identity.
type Verifier interface {
	Verify(pubKey string, message, signature []byte) bool
}

// Ed25519Verifier checks signatures of base58 encoded ed25519 keys.
type Ed25519Verifier struct{}

func NewEd25519Verifier() *Ed25519Verifier {
	return &Ed25519Verifier{}
}

func (v *Ed25519Verifier) Verify(pubKey string, message, signature []byte) bool {
	pub, err := common.DecodePubKey(pubKey)
	if err != nil {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, signature)
}

// VerifierFunc adapts a plain function to the Verifier interface.
type VerifierFunc func(pubKey string, message, signature []byte) bool

func (f VerifierFunc) Verify(pubKey string, message, signature []byte) bool {
	return f(pubKey, message, signature)
}

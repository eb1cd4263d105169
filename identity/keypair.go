package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/meshpay/meshledger/common"
)

// KeyPair is an ed25519 signing identity.
type KeyPair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// GenerateKeyPair creates a fresh random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}
	return &KeyPair{priv: priv, pub: pub}, nil
}

// KeyPairFromSeed derives a deterministic key pair, mainly for tests and
// simulations.
func KeyPairFromSeed(seed string) *KeyPair {
	sum := sha256.Sum256([]byte(seed))
	priv := ed25519.NewKeyFromSeed(sum[:])
	return &KeyPair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// KeyPairFromPrivateKey wraps an existing private key.
func KeyPairFromPrivateKey(priv ed25519.PrivateKey) (*KeyPair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(priv))
	}
	return &KeyPair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// LoadKeyPair reads a hex encoded private key file.
func LoadKeyPair(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("private key is not hex: %w", err)
	}
	return KeyPairFromPrivateKey(ed25519.PrivateKey(key))
}

// Save writes the private key as hex with owner-only permissions.
func (k *KeyPair) Save(path string) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(k.priv)), 0o600)
}

func (k *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// PublicKey returns the base58 owner key.
func (k *KeyPair) PublicKey() string {
	return common.EncodePubKey(k.pub)
}

func (k *KeyPair) PrivateKey() ed25519.PrivateKey {
	return k.priv
}

func (k *KeyPair) DID() string {
	return DID(k.PublicKey())
}

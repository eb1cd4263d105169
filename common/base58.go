package common

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// EncodeBytesToBase58 encodes bytes directly to base58
func EncodeBytesToBase58(bytes []byte) string {
	return base58.Encode(bytes)
}

// DecodeBase58ToBytes decodes base58 string to bytes
func DecodeBase58ToBytes(base58Str string) ([]byte, error) {
	bytes, err := base58.Decode(base58Str)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base58 string: %w", err)
	}
	return bytes, nil
}

// IsValidBase58 checks if a string is valid base58
func IsValidBase58(str string) bool {
	decoded, err := base58.Decode(str)
	return err == nil && len(decoded) > 0
}

// EncodePubKey renders an ed25519 public key as the base58 owner key used
// throughout the ledger.
func EncodePubKey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// DecodePubKey parses a base58 owner key and checks its length.
func DecodePubKey(key string) (ed25519.PublicKey, error) {
	b, err := base58.Decode(key)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid pubkey %q", key)
	}
	return ed25519.PublicKey(b), nil
}

// IsValidPubKey reports whether key decodes to an ed25519 public key.
func IsValidPubKey(key string) bool {
	_, err := DecodePubKey(key)
	return err == nil
}

// HexToBase58 converts a hex encoded key (as written by keygen) to base58.
func HexToBase58(hexStr string) (string, error) {
	if len(hexStr) >= 2 && hexStr[:2] == "0x" {
		hexStr = hexStr[2:]
	}

	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex string: %w", err)
	}

	return base58.Encode(bytes), nil
}

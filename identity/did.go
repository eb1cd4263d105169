package identity

import (
	"fmt"
	"strings"

	"github.com/meshpay/meshledger/common"
)

const didPrefix = "did:mesh:"

// DID renders an owner key as a decentralized identifier.
func DID(pubKey string) string {
	return didPrefix + pubKey
}

// ParseDID returns the base58 owner key carried by did.
func ParseDID(did string) (string, error) {
	parts := strings.Split(did, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid DID %q: expected 3 parts separated by ':', got %d", did, len(parts))
	}
	if parts[0] != "did" || parts[1] != "mesh" {
		return "", fmt.Errorf("invalid DID %q: expected did:mesh scheme", did)
	}
	if !common.IsValidPubKey(parts[2]) {
		return "", fmt.Errorf("invalid DID %q: bad public key", did)
	}
	return parts[2], nil
}

// ResolveOwner accepts either a DID or a bare base58 key.
func ResolveOwner(s string) (string, error) {
	if strings.HasPrefix(s, "did:") {
		return ParseDID(s)
	}
	if !common.IsValidPubKey(s) {
		return "", fmt.Errorf("invalid owner key %q", s)
	}
	return s, nil
}

package p2p

import (
	"crypto/ed25519"
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

func UnmarshalEd25519PrivateKey(private ed25519.PrivateKey) (crypto.PrivKey, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length")
	}
	return crypto.UnmarshalEd25519PrivateKey(private)
}

// NodeIDFromPrivKey returns the peer id the node announces for key. It is
// also the origin the node stamps on the deltas it exports, so offline
// tools and the running node agree on it.
func NodeIDFromPrivKey(private ed25519.PrivateKey) (string, error) {
	priv, err := UnmarshalEd25519PrivateKey(private)
	if err != nil {
		return "", err
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("failed to derive peer id: %w", err)
	}
	return id.String(), nil
}

func (ln *Libp2pNetwork) GetOwnAddress() string {
	addrs := ln.host.Addrs()
	if len(addrs) > 0 {
		return fmt.Sprintf("%s/p2p/%s", addrs[0].String(), ln.host.ID().String())
	}
	return ""
}

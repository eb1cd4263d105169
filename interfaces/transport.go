package interfaces

import (
	"context"

	"github.com/meshpay/meshledger/codec"
)

// Transport carries deltas between nodes. Peers are addressed by the same
// string the ledger uses as delta origin.
type Transport interface {
	Broadcaster
	// RequestSync sends req to peerID and waits for its sync response
	RequestSync(ctx context.Context, peerID string, req *codec.Envelope) (*codec.Envelope, error)
	Peers() []string
	PeerCount() int
}

// DeltaHandler consumes what the transport receives.
type DeltaHandler interface {
	HandleGossip(ctx context.Context, from string, data []byte) error
	HandleSyncRequest(ctx context.Context, from string, req *codec.Envelope) (*codec.Envelope, error)
	// OnPeerConnected is called once for every new connection
	OnPeerConnected(ctx context.Context, peerID string)
}

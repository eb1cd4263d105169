package p2p

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/meshpay/meshledger/codec"
	"github.com/meshpay/meshledger/interfaces"
	"github.com/meshpay/meshledger/ratelimit"
	ma "github.com/multiformats/go-multiaddr"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
)

type Libp2pNetwork struct {
	host   host.Host
	pubsub *pubsub.PubSub

	topicName    string
	syncProtocol string
	topicDeltas  *pubsub.Topic
	subDeltas    *pubsub.Subscription

	handler     interfaces.DeltaHandler
	seen        *codec.SeenCache
	syncLimiter *ratelimit.Limiter

	peers            map[peer.ID]*PeerInfo
	peersMu          sync.RWMutex
	bootstrapPeerIDs map[peer.ID]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// PeerInfo stores information about connected peers
type PeerInfo struct {
	ID          peer.ID
	Addrs       []ma.Multiaddr
	ConnectedAt time.Time
}

// Config holds configuration for the network
type Config struct {
	PrivKey        ed25519.PrivateKey
	ListenAddr     string
	BootstrapPeers []string
	Topic          string
	SyncProtocol   string
	SeenCacheSize  int

	// SyncRequestsPerMinute caps sync requests served per peer; zero
	// disables the limit.
	SyncRequestsPerMinute int
}

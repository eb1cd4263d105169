package p2p

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/meshpay/meshledger/codec"
	"github.com/meshpay/meshledger/config"
	"github.com/meshpay/meshledger/exception"
	"github.com/meshpay/meshledger/interfaces"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/monitoring"
	"github.com/meshpay/meshledger/ratelimit"
	ma "github.com/multiformats/go-multiaddr"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
)

func NewNetwork(cfg Config) (*Libp2pNetwork, error) {
	privKey, err := UnmarshalEd25519PrivateKey(cfg.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ed25519 private key: %w", err)
	}

	if cfg.Topic == "" {
		cfg.Topic = config.DefaultTopic
	}
	if cfg.SyncProtocol == "" {
		cfg.SyncProtocol = config.DefaultSyncProtocol
	}
	if cfg.SeenCacheSize <= 0 {
		cfg.SeenCacheSize = config.DefaultSeenCacheSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrStrings(cfg.ListenAddr),
		libp2p.NATPortMap(),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithMaxMessageSize(codec.MaxMessageSize),
		pubsub.WithValidateQueueSize(PubsubQueueSize),
		pubsub.WithPeerOutboundQueueSize(PubsubQueueSize),
	)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}

	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		MaxRequests: cfg.SyncRequestsPerMinute,
		WindowSize:  time.Minute,
	})
	ln := &Libp2pNetwork{
		host:             h,
		pubsub:           ps,
		topicName:        cfg.Topic,
		syncProtocol:     cfg.SyncProtocol,
		seen:             codec.NewSeenCache(cfg.SeenCacheSize),
		syncLimiter:      limiter,
		peers:            make(map[peer.ID]*PeerInfo),
		bootstrapPeerIDs: make(map[peer.ID]struct{}),
		ctx:              ctx,
		cancel:           cancel,
	}

	logx.Info("NETWORK", fmt.Sprintf("Libp2p network started with ID: %s", h.ID().String()))
	for _, addr := range h.Addrs() {
		logx.Info("NETWORK", "Listening on:", addr.String())
	}
	return ln, nil
}

// Start wires handler to the delta topic and the sync protocol, then dials
// the bootstrap peers. A node with no reachable peer keeps running: it
// simply works offline until someone connects.
func (ln *Libp2pNetwork) Start(handler interfaces.DeltaHandler, bootstrapPeers []string) error {
	if handler == nil {
		return fmt.Errorf("delta handler cannot be nil")
	}
	ln.handler = handler

	ln.host.SetStreamHandler(protocol.ID(ln.syncProtocol), ln.handleSyncStream)
	ln.host.Network().Notify(&network.NotifyBundle{
		ConnectedF:    ln.onConnected,
		DisconnectedF: ln.onDisconnected,
	})

	if err := ln.setupPubSubTopic(); err != nil {
		return err
	}

	for _, addr := range bootstrapPeers {
		if addr == "" {
			continue
		}
		if err := ln.connectBootstrap(addr); err != nil {
			logx.Warn("NETWORK:SETUP", "Failed to connect to bootstrap:", addr, err.Error())
		}
	}

	logx.Info("NETWORK:SETUP", fmt.Sprintf("Listening on addresses: %v", ln.host.Addrs()))
	return nil
}

func (ln *Libp2pNetwork) connectBootstrap(addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("invalid bootstrap address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("invalid bootstrap peer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ln.ctx, BootstrapTimeout)
	defer cancel()
	if err := ln.host.Connect(ctx, *info); err != nil {
		return err
	}

	ln.peersMu.Lock()
	ln.bootstrapPeerIDs[info.ID] = struct{}{}
	ln.peersMu.Unlock()
	logx.Info("NETWORK:SETUP", "Connected to bootstrap peer:", addr)
	return nil
}

func (ln *Libp2pNetwork) onConnected(_ network.Network, conn network.Conn) {
	pid := conn.RemotePeer()

	ln.peersMu.Lock()
	_, known := ln.peers[pid]
	if !known {
		ln.peers[pid] = &PeerInfo{
			ID:          pid,
			Addrs:       []ma.Multiaddr{conn.RemoteMultiaddr()},
			ConnectedAt: time.Now(),
		}
	}
	count := len(ln.peers)
	ln.peersMu.Unlock()

	monitoring.SetPeerCount(count)
	if known || ln.handler == nil {
		return
	}
	logx.Info("NETWORK:PEER", "Peer connected:", pid.String())
	exception.SafeGo(PeerConnectedWorker, func() {
		ln.handler.OnPeerConnected(ln.ctx, pid.String())
	})
}

func (ln *Libp2pNetwork) onDisconnected(_ network.Network, conn network.Conn) {
	pid := conn.RemotePeer()
	if ln.host.Network().Connectedness(pid) == network.Connected {
		return
	}

	ln.peersMu.Lock()
	delete(ln.peers, pid)
	count := len(ln.peers)
	ln.peersMu.Unlock()

	monitoring.SetPeerCount(count)
	logx.Info("NETWORK:PEER", "Peer disconnected:", pid.String())
}

// Close stops the host and every goroutine started by the network
func (ln *Libp2pNetwork) Close() {
	ln.cancel()
	ln.syncLimiter.Stop()
	if ln.subDeltas != nil {
		ln.subDeltas.Cancel()
	}
	if ln.topicDeltas != nil {
		ln.topicDeltas.Close()
	}
	ln.host.Close()
}

func (ln *Libp2pNetwork) ID() string {
	return ln.host.ID().String()
}

func (ln *Libp2pNetwork) PeerCount() int {
	ln.peersMu.RLock()
	defer ln.peersMu.RUnlock()
	return len(ln.peers)
}

// Peers returns the connected peer ids, sorted
func (ln *Libp2pNetwork) Peers() []string {
	ln.peersMu.RLock()
	defer ln.peersMu.RUnlock()
	ids := make([]string, 0, len(ln.peers))
	for pid := range ln.peers {
		ids = append(ids, pid.String())
	}
	sort.Strings(ids)
	return ids
}

func (ln *Libp2pNetwork) GetPeerInfo(peerID peer.ID) (*PeerInfo, bool) {
	ln.peersMu.RLock()
	defer ln.peersMu.RUnlock()
	if peerInfo, exists := ln.peers[peerID]; exists {
		return peerInfo, true
	}
	return nil, false
}

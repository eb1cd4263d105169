package p2p

import "time"

const (
	SyncStreamTimeout   = 20 * time.Second
	BootstrapTimeout    = 10 * time.Second
	PubsubQueueSize     = 128
	PeerConnectedWorker = "PeerConnected"
)

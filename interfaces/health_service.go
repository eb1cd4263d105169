package interfaces

import (
	"context"

	"github.com/meshpay/meshledger/ledger"
)

type HealthStatus struct {
	Status         string            `json:"status"`
	Digest         string            `json:"digest"`
	UptimeSec      uint64            `json:"uptime_sec"`
	ConnectedPeers int               `json:"connected_peers"`
	Stats          ledger.Statistics `json:"stats"`
}

type HealthService interface {
	Check(ctx context.Context) (*HealthStatus, error)
}

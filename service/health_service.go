package service

import (
	"context"
	"time"

	"github.com/meshpay/meshledger/interfaces"
	"github.com/meshpay/meshledger/ledger"
	"github.com/pkg/errors"
)

const (
	StatusServing    = "serving"
	StatusNotServing = "not_serving"
)

type HealthServiceImpl struct {
	svc       *LedgerService
	startedAt time.Time
}

func NewHealthService(svc *LedgerService) *HealthServiceImpl {
	return &HealthServiceImpl{svc: svc, startedAt: time.Now()}
}

func (hs *HealthServiceImpl) Check(ctx context.Context) (*interfaces.HealthStatus, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "health check timeout")
	default:
	}

	resp := &interfaces.HealthStatus{
		Status:    StatusServing,
		UptimeSec: uint64(time.Since(hs.startedAt).Seconds()),
	}
	if hs.svc == nil || hs.svc.Ledger() == nil {
		resp.Status = StatusNotServing
		return resp, nil
	}

	ld := hs.svc.Ledger()
	resp.Stats = ld.Statistics()
	resp.ConnectedPeers = hs.svc.PeerCount()
	resp.Digest = ledger.DigestHex(ld.Digest())
	return resp, nil
}

package p2p

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/meshpay/meshledger/codec"
	"github.com/meshpay/meshledger/exception"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/monitoring"
	"github.com/meshpay/meshledger/ratelimit"
)

// handleSyncStream answers one sync request per stream.
func (ln *Libp2pNetwork) handleSyncStream(s network.Stream) {
	defer s.Close()
	defer exception.Recover("HandleSyncStream")

	from := s.Conn().RemotePeer().String()
	if !ln.syncLimiter.Allow(from) {
		logx.Warn("NETWORK:SYNC", ratelimit.NewRateLimitError("sync", from).Error())
		monitoring.IncreaseGossipMessage("dropped", codec.MsgSyncRequest.String())
		s.Reset()
		return
	}
	_ = s.SetDeadline(time.Now().Add(SyncStreamTimeout))

	req, err := codec.ReadEnvelope(bufio.NewReader(s))
	if err != nil {
		logx.Error("NETWORK:SYNC", "Failed to read sync request from", from, ":", err)
		s.Reset()
		return
	}
	monitoring.IncreaseGossipMessage("in", req.Type.String())

	ctx, cancel := context.WithTimeout(ln.ctx, SyncStreamTimeout)
	defer cancel()
	resp, err := ln.handler.HandleSyncRequest(ctx, from, req)
	if err != nil {
		logx.Warn("NETWORK:SYNC", "Refused sync request from", from, ":", err)
		s.Reset()
		return
	}

	if err := codec.WriteEnvelope(s, resp); err != nil {
		logx.Error("NETWORK:SYNC", "Failed to send sync response to", from, ":", err)
		s.Reset()
		return
	}
	monitoring.IncreaseGossipMessage("out", resp.Type.String())
}

// RequestSync opens a sync stream to peerID, sends req and waits for the
// response envelope.
func (ln *Libp2pNetwork) RequestSync(ctx context.Context, peerID string, req *codec.Envelope) (*codec.Envelope, error) {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return nil, fmt.Errorf("invalid peer id %s: %w", peerID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, SyncStreamTimeout)
	defer cancel()

	s, err := ln.host.NewStream(ctx, pid, protocol.ID(ln.syncProtocol))
	if err != nil {
		return nil, fmt.Errorf("failed to open sync stream to %s: %w", peerID, err)
	}
	defer s.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}

	if err := codec.WriteEnvelope(s, req); err != nil {
		s.Reset()
		return nil, err
	}
	if err := s.CloseWrite(); err != nil {
		s.Reset()
		return nil, fmt.Errorf("failed to close sync request: %w", err)
	}
	monitoring.IncreaseGossipMessage("out", req.Type.String())

	resp, err := codec.ReadEnvelope(bufio.NewReader(s))
	if err != nil {
		s.Reset()
		return nil, err
	}
	if resp.Type != codec.MsgSyncResponse {
		return nil, fmt.Errorf("unexpected %s in reply to sync request", resp.Type)
	}
	monitoring.IncreaseGossipMessage("in", resp.Type.String())
	return resp, nil
}

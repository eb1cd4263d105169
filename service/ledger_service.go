package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/meshpay/meshledger/codec"
	"github.com/meshpay/meshledger/config"
	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/events"
	"github.com/meshpay/meshledger/exception"
	"github.com/meshpay/meshledger/interfaces"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/monitoring"
	"github.com/meshpay/meshledger/store"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
	"github.com/pkg/errors"
)

// LedgerService drives a ledger from the outside world: it persists every
// change, publishes events and metrics, and exchanges deltas with peers.
// The transport is optional; without it the node works purely offline.
type LedgerService struct {
	ledger    interfaces.Ledger
	store     store.LedgerStore
	meta      store.StateMetaStore
	router    *events.EventRouter
	transport interfaces.Transport
	cfg       *config.GossipConfig
	seen      *codec.SeenCache

	persistMu sync.Mutex
	committed uint64

	publishMu     sync.Mutex
	lastPublished uint64
}

func NewLedgerService(ld interfaces.Ledger, ls store.LedgerStore, meta store.StateMetaStore, router *events.EventRouter, transport interfaces.Transport, cfg *config.GossipConfig) *LedgerService {
	if cfg == nil {
		cfg = config.DefaultGossipConfig()
	}
	return &LedgerService{
		ledger:    ld,
		store:     ls,
		meta:      meta,
		router:    router,
		transport: transport,
		cfg:       cfg,
		seen:      codec.NewSeenCache(cfg.SeenCacheSize),
	}
}

func (s *LedgerService) Ledger() interfaces.Ledger {
	return s.ledger
}

// PeerCount returns the number of connected peers, zero when offline.
func (s *LedgerService) PeerCount() int {
	if s.transport == nil {
		return 0
	}
	return s.transport.PeerCount()
}

// SubmitTransaction applies a transaction created on this node and
// persists the result. The returned error carries the reject code.
func (s *LedgerService) SubmitTransaction(ctx context.Context, tx *transaction.Transaction) (ledger.ApplyResult, error) {
	res, err := s.ledger.ValidateAndApply(tx)
	if res.Duplicate {
		return res, err
	}

	if err != nil {
		logx.Warn("LEDGER:SUBMIT", fmt.Sprintf("Transaction %s refused: %v", transaction.ShortID(res.TxID), err))
		monitoring.RecordRejectedTx(monitoring.ReasonFromCode(lerrors.CodeOf(err)))
	} else {
		logx.Info("LEDGER:SUBMIT", fmt.Sprintf("Transaction %s accepted", transaction.ShortID(res.TxID)))
		monitoring.RecordAcceptedTx(string(events.SourceLocal), 1)
	}
	monitoring.RecordResolvedConflicts(res.ResolvedConflicts)
	if s.router != nil {
		s.router.PublishApplyResult(tx, res, err)
	}

	if perr := s.Persist(); perr != nil {
		return res, perr
	}
	return res, err
}

// HandleGossip processes one message received on the delta topic.
func (s *LedgerService) HandleGossip(ctx context.Context, from string, data []byte) error {
	if !s.seen.Add(codec.MessageID(data)) {
		return nil
	}
	env, err := codec.Unmarshal(data)
	if err != nil {
		return err
	}
	if env.Type != codec.MsgDeltaAnnounce {
		return errors.Errorf("unexpected %s on delta topic", env.Type)
	}
	if env.Origin == s.ledger.NodeID() {
		return nil
	}
	d, err := env.Delta()
	if err != nil {
		return err
	}

	_, err = s.importDelta(d)
	if lerrors.CodeOf(err) == lerrors.CodeStaleRegistry {
		logx.Info("LEDGER:GOSSIP", fmt.Sprintf("Delta from %s is ahead of us, requesting full sync", d.Origin))
		return s.recoverStale(ctx, d, from)
	}
	return err
}

// recoverStale pulls the full state of the delta origin, then retries the
// delta. When the origin cannot be reached the relaying peer is synced
// instead and the delta is merged on top of its state, which moves the
// origin watermark to the delta epoch.
func (s *LedgerService) recoverStale(ctx context.Context, d *ledger.Delta, from string) error {
	originErr := s.SyncFrom(ctx, d.Origin, 0)
	if originErr == nil {
		_, err := s.importDelta(d)
		if lerrors.CodeOf(err) != lerrors.CodeStaleRegistry {
			return err
		}
	}

	if from == "" || from == d.Origin {
		if originErr != nil {
			return originErr
		}
		return lerrors.NewError(lerrors.CodeStaleRegistry, fmt.Sprintf(lerrors.ErrMsgStaleRegistry, d.Origin, d.BaseEpoch, s.ledger.PeerEpoch(d.Origin)))
	}
	if originErr != nil {
		logx.Info("LEDGER:SYNC", fmt.Sprintf("Origin %s unreachable (%v), syncing through %s", d.Origin, originErr, from))
	}
	if err := s.SyncFrom(ctx, from, 0); err != nil {
		if originErr != nil {
			return errors.Wrapf(err, "origin %s: %v", d.Origin, originErr)
		}
		return err
	}
	_, err := s.mergeDelta(d, true)
	return err
}

// SyncFrom asks peerID for everything it changed after since and merges
// the answer.
func (s *LedgerService) SyncFrom(ctx context.Context, peerID string, since uint64) error {
	if s.transport == nil {
		return errors.New("no transport configured")
	}
	req, err := codec.NewSyncRequest(s.ledger.NodeID(), since)
	if err != nil {
		return err
	}
	resp, err := s.transport.RequestSync(ctx, peerID, req)
	if err != nil {
		return errors.Wrapf(err, "sync with %s failed", peerID)
	}
	d, err := resp.Delta()
	if err != nil {
		return err
	}
	summary, err := s.importDelta(d)
	if err != nil {
		return err
	}
	logx.Info("LEDGER:SYNC", fmt.Sprintf("Synced from %s since epoch %d: %d accepted, %d rejected, %d orphaned",
		peerID, since, summary.AcceptedTxCount, summary.RejectedTxCount, summary.OrphanedTxCount))
	return nil
}

// HandleSyncRequest answers a peer asking for our changes.
func (s *LedgerService) HandleSyncRequest(ctx context.Context, from string, req *codec.Envelope) (*codec.Envelope, error) {
	body, err := req.SyncRequest()
	if err != nil {
		return nil, err
	}
	d := s.ledger.ExportDelta(body.Since)
	logx.Debug("LEDGER:SYNC", fmt.Sprintf("Serving %s since epoch %d: %d outputs, %d transactions",
		from, body.Since, len(d.Outputs), len(d.Transactions)))
	return codec.NewSyncResponse(s.ledger.NodeID(), d)
}

// OnPeerConnected catches up with a newly connected peer. Only what the
// peer changed since its last delta we merged is requested.
func (s *LedgerService) OnPeerConnected(ctx context.Context, peerID string) {
	since := s.ledger.PeerEpoch(peerID)
	if err := s.SyncFrom(ctx, peerID, since); err != nil {
		logx.Warn("LEDGER:SYNC", fmt.Sprintf("Initial sync with %s failed: %v", peerID, err))
	}
}

// ImportDelta merges a delta obtained out of band, such as a delta file.
func (s *LedgerService) ImportDelta(d *ledger.Delta) (ledger.MergeSummary, error) {
	return s.importDelta(d)
}

func (s *LedgerService) importDelta(d *ledger.Delta) (ledger.MergeSummary, error) {
	return s.mergeDelta(d, false)
}

func (s *LedgerService) mergeDelta(d *ledger.Delta, relayed bool) (ledger.MergeSummary, error) {
	start := time.Now()
	var (
		summary ledger.MergeSummary
		err     error
	)
	if relayed {
		summary, err = s.ledger.ImportRelayedDelta(d)
	} else {
		summary, err = s.ledger.ImportDelta(d)
	}
	if err != nil {
		monitoring.RecordRejectedTx(monitoring.ReasonFromCode(lerrors.CodeOf(err)))
		return summary, err
	}
	monitoring.RecordMergeDuration(time.Since(start))
	monitoring.RecordDeltaSize(len(d.Transactions))
	monitoring.RecordAcceptedTx(string(events.SourceGossip), summary.AcceptedTxCount)
	monitoring.RecordResolvedConflicts(summary.ResolvedConflictCount)
	for _, dis := range summary.Discarded {
		monitoring.RecordRejectedTx(monitoring.ReasonFromCode(dis.Reason))
	}
	monitoring.SetOrphanedTx(summary.OrphanedTxCount)

	if summary.IgnoredOutputCount > 0 {
		logx.Debug("LEDGER:MERGE", fmt.Sprintf("Ignored %d unverifiable outputs from %s", summary.IgnoredOutputCount, d.Origin))
	}
	if summary.Changed() {
		logx.Info("LEDGER:MERGE", fmt.Sprintf("Merged delta from %s: %d accepted, %d rejected, %d conflicts resolved",
			d.Origin, summary.AcceptedTxCount, summary.RejectedTxCount, summary.ResolvedConflictCount))
	}
	if s.router != nil {
		s.router.PublishMergeSummary(summary, s.ledger.Epoch())
	}
	return summary, s.Persist()
}

// PublishPending gossips everything changed since the last publication.
// Large deltas are split so every message stays under MaxDeltaTxs
// transactions.
func (s *LedgerService) PublishPending(ctx context.Context) error {
	if s.transport == nil {
		return nil
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	d := s.ledger.ExportDelta(s.lastPublished)
	if d.IsEmpty() {
		return nil
	}
	for _, part := range SplitDelta(d, s.cfg.MaxDeltaTxs) {
		env, err := codec.NewDeltaAnnounce(s.ledger.NodeID(), part)
		if err != nil {
			return err
		}
		if err := s.transport.PublishDelta(ctx, env); err != nil {
			return err
		}
	}
	logx.Debug("LEDGER:GOSSIP", fmt.Sprintf("Published epochs %d..%d (%d transactions)", d.BaseEpoch, d.Epoch, len(d.Transactions)))
	s.lastPublished = d.Epoch
	return nil
}

// SplitDelta cuts d into parts holding at most maxTxs transactions each.
// Every part keeps the epochs of d, and each output travels with the part
// carrying its creating transaction.
func SplitDelta(d *ledger.Delta, maxTxs int) []*ledger.Delta {
	if maxTxs <= 0 || len(d.Transactions) <= maxTxs {
		return []*ledger.Delta{d}
	}

	byCreator := make(map[string][]*types.Output)
	for _, out := range d.Outputs {
		byCreator[out.CreatedBy] = append(byCreator[out.CreatedBy], out)
	}

	var parts []*ledger.Delta
	for start := 0; start < len(d.Transactions); start += maxTxs {
		end := start + maxTxs
		if end > len(d.Transactions) {
			end = len(d.Transactions)
		}
		part := &ledger.Delta{
			Origin:       d.Origin,
			BaseEpoch:    d.BaseEpoch,
			Epoch:        d.Epoch,
			Transactions: d.Transactions[start:end],
		}
		for _, tx := range part.Transactions {
			part.Outputs = append(part.Outputs, byCreator[tx.ID]...)
			delete(byCreator, tx.ID)
		}
		parts = append(parts, part)
	}

	var rest []*types.Output
	for _, outs := range byCreator {
		rest = append(rest, outs...)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].ID < rest[j].ID })
	parts[0].Outputs = append(rest, parts[0].Outputs...)
	return parts
}

// Run publishes pending changes on every tick until ctx is done.
func (s *LedgerService) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.PublishIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Duration(config.DefaultPublishInterval) * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.PublishPending(context.Background()); err != nil {
				logx.Warn("LEDGER:GOSSIP", "Final publish failed: ", err)
			}
			return
		case <-ticker.C:
			s.publishTick(ctx)
		}
	}
}

func (s *LedgerService) publishTick(ctx context.Context) {
	defer exception.Recover("PublishPending")
	if err := s.PublishPending(ctx); err != nil {
		logx.Warn("LEDGER:GOSSIP", "Publish failed: ", err)
	}
	if s.transport != nil {
		monitoring.SetPeerCount(s.transport.PeerCount())
	}
	if n := s.ledger.CleanupExpiredReservations(); n > 0 {
		logx.Debug("LEDGER", fmt.Sprintf("Dropped %d expired reservations", n))
	}
}

// Persist commits the ledger state if it moved since the last commit and
// refreshes the state gauges.
func (s *LedgerService) Persist() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	epoch := s.ledger.Epoch()
	if epoch == s.committed {
		return nil
	}

	if s.store != nil {
		if err := s.store.Commit(s.ledger.Snapshot()); err != nil {
			logx.Error("LEDGER:PERSIST", "Failed to commit ledger: ", err)
			return err
		}
	}
	digest := s.ledger.Digest()
	if s.meta != nil {
		if err := s.meta.SetDigest(epoch, digest); err != nil {
			logx.Error("LEDGER:PERSIST", "Failed to record digest: ", err)
			return err
		}
	}
	s.committed = epoch
	s.updateGauges()
	return nil
}

func (s *LedgerService) updateGauges() {
	stats := s.ledger.Statistics()
	monitoring.SetRegistryEpoch(stats.Epoch)
	monitoring.SetRegistryOutputs(types.StatusUnspent.String(), stats.Unspent)
	monitoring.SetRegistryOutputs(types.StatusPending.String(), stats.Pending)
	monitoring.SetRegistryOutputs(types.StatusSpent.String(), stats.Spent)
	monitoring.SetRegistryOutputs(types.StatusInvalidated.String(), stats.Invalidated)
	monitoring.SetOrphanedTx(stats.Orphans)
	if v, ok := parseAmount(stats.TotalUnspent); ok {
		monitoring.SetUnspentValue(v)
	}
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

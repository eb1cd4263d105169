package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
)

type Options struct {
	MaxOrphans int
	// ReservationTTL is used when a reservation is made without a TTL.
	ReservationTTL time.Duration
}

// ApplyResult reports what happened to a locally submitted transaction.
type ApplyResult struct {
	TxID              string         `json:"tx_id"`
	Status            TxStatus       `json:"status"`
	Duplicate         bool           `json:"duplicate"`
	ResolvedConflicts int            `json:"resolved_conflicts"`
	Changes           []StatusChange `json:"changes,omitempty"`
}

// Ledger is the single writer over a registry. Mutations take the write
// lock, queries the read lock. Nothing here performs I/O; persistence and
// gossip happen in the caller once the lock is released.
type Ledger struct {
	mu         sync.RWMutex
	nodeID     string
	registry   *Registry
	validator  *Validator
	resolver   *Resolver
	merger     *MergeEngine
	vault      *Vault
	peerEpochs map[string]uint64
}

func NewLedger(nodeID string, verifier identity.Verifier, opts Options) *Ledger {
	validator := NewValidator(verifier)
	resolver := NewResolver()
	return &Ledger{
		nodeID:     nodeID,
		registry:   NewRegistry(),
		validator:  validator,
		resolver:   resolver,
		merger:     NewMergeEngine(validator, resolver, opts.MaxOrphans),
		vault:      NewVault(opts.ReservationTTL),
		peerEpochs: make(map[string]uint64),
	}
}

func (l *Ledger) NodeID() string {
	return l.nodeID
}

// InitGenesis issues the genesis allocation. Allocations already present
// are skipped, so calling it on a restored ledger is harmless.
func (l *Ledger) InitGenesis(allocs []types.TxOutput) error {
	normalized := make([]types.TxOutput, len(allocs))
	for i, a := range allocs {
		if a.Amount == 0 {
			return fmt.Errorf("genesis allocation %d has zero amount", i)
		}
		owner, err := identity.ResolveOwner(a.Owner)
		if err != nil {
			return fmt.Errorf("genesis allocation %d: %w", i, err)
		}
		normalized[i] = types.TxOutput{Owner: owner, Amount: a.Amount}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registry.AddGenesis(normalized)
	return nil
}

// ValidateAndApply runs the full validation pipeline on a transaction
// originated by this node and, if it passes, adds it and resolves. A
// transaction that passes validation but loses a conflict to an earlier
// claim is kept and reported as DoubleSpend.
func (l *Ledger) ValidateAndApply(tx *transaction.Transaction) (ApplyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.validateAndApplyWithoutLocking(tx)
}

// validateAndApplyWithoutLocking is split out for callers already holding
// the write lock.
func (l *Ledger) validateAndApplyWithoutLocking(tx *transaction.Transaction) (ApplyResult, error) {
	if tx != nil {
		if rec, ok := l.registry.txs[tx.ID]; ok {
			res := ApplyResult{TxID: tx.ID, Status: rec.status, Duplicate: true}
			if rec.status == TxRejected {
				return res, lerrors.NewError(rec.reason, rec.detail)
			}
			return res, nil
		}
	}
	if err := l.validator.Validate(tx, l.registry, ModeLocal); err != nil {
		return ApplyResult{TxID: txID(tx), Status: TxRejected}, err
	}

	l.registry.addTransaction(tx)
	changes, resolved := l.resolver.Resolve(l.registry)
	rec := l.registry.txs[tx.ID]
	res := ApplyResult{
		TxID:              tx.ID,
		Status:            rec.status,
		ResolvedConflicts: resolved,
		Changes:           changes,
	}
	if rec.status == TxRejected {
		return res, lerrors.NewError(rec.reason, rec.detail)
	}
	return res, nil
}

func txID(tx *transaction.Transaction) string {
	if tx == nil {
		return ""
	}
	return tx.ID
}

// DryRun reports what ValidateAndApply would do without touching the
// ledger, by applying tx to a private copy of the registry.
func (l *Ledger) DryRun(tx *transaction.Transaction) (ApplyResult, error) {
	l.mu.RLock()
	session := &Ledger{
		nodeID:     l.nodeID,
		registry:   l.registry.Clone(),
		validator:  l.validator,
		resolver:   l.resolver,
		vault:      NewVault(0),
		peerEpochs: map[string]uint64{},
	}
	l.mu.RUnlock()
	return session.validateAndApplyWithoutLocking(tx)
}

// ImportDelta merges a delta received from a peer. A delta built on top of
// an epoch this node has not yet seen from its origin is refused as a whole
// with StaleRegistry; the caller should fetch the origin's full state.
func (l *Ledger) ImportDelta(d *Delta) (MergeSummary, error) {
	return l.importDelta(d, true)
}

// ImportRelayedDelta merges d without comparing its base epoch to what was
// seen from its origin. It is used once the missing base has been fetched
// through another peer, which leaves the origin watermark behind. Any
// transaction whose parents are still missing is parked as an orphan.
func (l *Ledger) ImportRelayedDelta(d *Delta) (MergeSummary, error) {
	return l.importDelta(d, false)
}

func (l *Ledger) importDelta(d *Delta, checkBase bool) (MergeSummary, error) {
	if d == nil {
		return MergeSummary{}, lerrors.NewError(lerrors.CodeMalformed, lerrors.ErrMsgMalformedDelta)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if checkBase && d.Origin != "" && d.BaseEpoch > 0 {
		seen := l.peerEpochs[d.Origin]
		if d.BaseEpoch > seen {
			return MergeSummary{}, lerrors.NewError(lerrors.CodeStaleRegistry,
				fmt.Sprintf(lerrors.ErrMsgStaleRegistry, d.Origin, d.BaseEpoch, seen))
		}
	}

	summary := l.merger.Merge(l.registry, d)
	if d.Origin != "" && d.Epoch > l.peerEpochs[d.Origin] {
		l.peerEpochs[d.Origin] = d.Epoch
	}
	return summary, nil
}

// ExportDelta returns everything that changed after since, stamped with
// this node as origin.
func (l *Ledger) ExportDelta(since uint64) *Delta {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ExportDelta(l.registry, l.nodeID, since)
}

func (l *Ledger) Balance(owner string) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.vault.Balance(owner, l.registry)
}

func (l *Ledger) SelectOutputs(owner string, amount uint64) ([]*types.Output, *uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.vault.SelectOutputs(owner, amount, l.registry)
}

// ReserveOutputs selects outputs of owner covering amount and holds them
// for ttl, or the configured default when ttl is zero. SelectOutputs and
// later reservations skip held outputs until ReleaseReservation is called
// or the reservation expires.
func (l *Ledger) ReserveOutputs(owner string, amount uint64, ttl time.Duration) (*Reservation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.vault.Reserve(owner, amount, ttl, l.registry, l.nextLogicalClockWithoutLocking(owner))
}

func (l *Ledger) ReleaseReservation(id string) error {
	return l.vault.Release(id)
}

func (l *Ledger) CleanupExpiredReservations() int {
	return l.vault.CleanupExpired()
}

// ReservedBalance is the part of the balance of owner held by live
// reservations.
func (l *Ledger) ReservedBalance(owner string) *uint256.Int {
	return l.vault.Reserved(owner)
}

// UnspentOutputs lists copies of the Unspent outputs of owner.
func (l *Ledger) UnspentOutputs(owner string) []*types.Output {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var outs []*types.Output
	for _, id := range sortedKeys(l.registry.outputs) {
		o := l.registry.outputs[id]
		if o.Owner == owner && o.State.Status == types.StatusUnspent {
			outs = append(outs, o.Clone())
		}
	}
	return outs
}

func (l *Ledger) GetOutput(id string) (*types.Output, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o := l.registry.Get(id)
	if o == nil {
		return nil, false
	}
	return o.Clone(), true
}

func (l *Ledger) GetTransaction(id string) (*transaction.Transaction, TxStatus, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, status, ok := l.registry.Transaction(id)
	if !ok {
		return nil, TxUnknown, false
	}
	return tx.Clone(), status, true
}

// NextLogicalClock returns the clock owner should stamp on its next
// transaction: one past the highest clock among transactions it signed
// first.
func (l *Ledger) NextLogicalClock(owner string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextLogicalClockWithoutLocking(owner)
}

func (l *Ledger) nextLogicalClockWithoutLocking(owner string) uint64 {
	var highest uint64
	for _, rec := range l.registry.txs {
		if len(rec.owners) > 0 && rec.owners[0] == owner && rec.tx.LogicalClock > highest {
			highest = rec.tx.LogicalClock
		}
	}
	return highest + 1
}

func (l *Ledger) Epoch() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.registry.Epoch()
}

// PeerEpoch returns the highest epoch imported from origin.
func (l *Ledger) PeerEpoch(origin string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.peerEpochs[origin]
}

func (l *Ledger) Statistics() Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stats := collectStatistics(l.registry)
	stats.NodeID = l.nodeID
	stats.Orphans = len(l.merger.orphans)
	stats.Blacklisted = len(l.merger.blacklist)
	stats.Peers = len(l.peerEpochs)
	return stats
}

// Digest identifies the settled state; converged nodes report equal digests.
func (l *Ledger) Digest() [32]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ComputeRegistryDigest(l.registry)
}

// TxEntry is a known transaction with its settled status, as stored in a
// snapshot.
type TxEntry struct {
	Tx     *transaction.Transaction `json:"tx" msgpack:"tx"`
	Status TxStatus                 `json:"status" msgpack:"status"`
	Reason lerrors.RejectCode       `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Detail string                   `json:"detail,omitempty" msgpack:"detail,omitempty"`
	Epoch  uint64                   `json:"epoch" msgpack:"epoch"`
}

// Snapshot is the full persistent state of a ledger.
type Snapshot struct {
	Epoch        uint64                     `json:"epoch" msgpack:"epoch"`
	Outputs      []*types.Output            `json:"outputs" msgpack:"outputs"`
	Transactions []TxEntry                  `json:"transactions" msgpack:"transactions"`
	Orphans      []*transaction.Transaction `json:"orphans,omitempty" msgpack:"orphans,omitempty"`
	Blacklist    []string                   `json:"blacklist,omitempty" msgpack:"blacklist,omitempty"`
	PeerEpochs   map[string]uint64          `json:"peer_epochs,omitempty" msgpack:"peer_epochs,omitempty"`
}

func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r := l.registry
	s := &Snapshot{
		Epoch:      r.epoch,
		Outputs:    make([]*types.Output, 0, len(r.outputs)),
		Orphans:    l.merger.Orphans(),
		Blacklist:  l.merger.Blacklist(),
		PeerEpochs: make(map[string]uint64, len(l.peerEpochs)),
	}
	for _, id := range sortedKeys(r.outputs) {
		s.Outputs = append(s.Outputs, r.outputs[id].Clone())
	}
	for _, id := range sortedKeys(r.txs) {
		rec := r.txs[id]
		s.Transactions = append(s.Transactions, TxEntry{
			Tx:     rec.tx.Clone(),
			Status: rec.status,
			Reason: rec.reason,
			Detail: rec.detail,
			Epoch:  rec.epoch,
		})
	}
	for k, v := range l.peerEpochs {
		s.PeerEpochs[k] = v
	}
	return s
}

// Restore replaces the ledger state with s. Indexes are rebuilt from the
// stored transactions and the statuses are resolved again, so a snapshot
// written by an older node still yields a consistent registry.
func (l *Ledger) Restore(s *Snapshot) error {
	if s == nil {
		return fmt.Errorf("nil snapshot")
	}
	r := NewRegistry()
	for _, o := range s.Outputs {
		if o == nil || o.ID == "" {
			return fmt.Errorf("snapshot contains an invalid output")
		}
		r.outputs[o.ID] = o.Clone()
	}
	for _, e := range s.Transactions {
		if e.Tx == nil {
			return fmt.Errorf("snapshot contains an empty transaction entry")
		}
		for _, in := range e.Tx.Inputs {
			if r.outputs[in] == nil {
				return fmt.Errorf("snapshot transaction %s spends unknown output %s", e.Tx.ShortID(), in)
			}
		}
	}
	for _, e := range s.Transactions {
		rec := r.addTransaction(e.Tx.Clone())
		rec.status = e.Status
		rec.reason = e.Reason
		rec.detail = e.Detail
		rec.epoch = e.Epoch
	}
	r.epoch = s.Epoch
	if _, resolved := l.resolver.Resolve(r); resolved > 0 {
		logx.Warn("LEDGER", fmt.Sprintf("Restore resolved %d conflicts missing from the snapshot", resolved))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.registry = r
	l.merger.restore(s.Orphans, s.Blacklist)
	l.peerEpochs = make(map[string]uint64, len(s.PeerEpochs))
	for k, v := range s.PeerEpochs {
		l.peerEpochs[k] = v
	}
	l.vault.Reset()
	return nil
}

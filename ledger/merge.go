package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
)

const DefaultMaxOrphans = 4096

// Delta is the unit exchanged between peers: the outputs and transactions
// that changed on Origin after BaseEpoch, up to Epoch.
type Delta struct {
	Origin       string                     `json:"origin" msgpack:"origin"`
	BaseEpoch    uint64                     `json:"base_epoch" msgpack:"base_epoch"`
	Epoch        uint64                     `json:"epoch" msgpack:"epoch"`
	Outputs      []*types.Output            `json:"outputs" msgpack:"outputs"`
	Transactions []*transaction.Transaction `json:"transactions" msgpack:"transactions"`
}

// IsEmpty reports whether the delta carries nothing to merge.
func (d *Delta) IsEmpty() bool {
	return len(d.Outputs) == 0 && len(d.Transactions) == 0
}

// Discarded describes a remote transaction dropped during a merge.
type Discarded struct {
	TxID   string             `json:"tx_id"`
	Reason lerrors.RejectCode `json:"reason"`
	Detail string             `json:"detail"`
}

type MergeSummary struct {
	AcceptedTxCount       int            `json:"accepted_tx_count"`
	RejectedTxCount       int            `json:"rejected_tx_count"`
	ResolvedConflictCount int            `json:"resolved_conflict_count"`
	DuplicateTxCount      int            `json:"duplicate_tx_count"`
	OrphanedTxCount       int            `json:"orphaned_tx_count"`
	IgnoredOutputCount    int            `json:"ignored_output_count"`
	Changes               []StatusChange `json:"changes,omitempty"`
	Discarded             []Discarded    `json:"discarded,omitempty"`
}

// Changed reports whether the merge altered the registry.
func (s MergeSummary) Changed() bool {
	return len(s.Changes) > 0 || s.AcceptedTxCount > 0 || s.RejectedTxCount > 0
}

// MergeEngine folds remote deltas into a registry. Transactions whose
// inputs are not known yet are parked and retried on every merge; exact
// replays of transactions that failed verification are dropped unseen.
type MergeEngine struct {
	validator  *Validator
	resolver   *Resolver
	orphans    map[string]*transaction.Transaction
	blacklist  map[string]lerrors.RejectCode
	maxOrphans int
}

func NewMergeEngine(validator *Validator, resolver *Resolver, maxOrphans int) *MergeEngine {
	if maxOrphans <= 0 {
		maxOrphans = DefaultMaxOrphans
	}
	return &MergeEngine{
		validator:  validator,
		resolver:   resolver,
		orphans:    make(map[string]*transaction.Transaction),
		blacklist:  make(map[string]lerrors.RejectCode),
		maxOrphans: maxOrphans,
	}
}

// Fingerprint identifies the exact bytes of a transaction, signatures
// included, so a corrupted copy never shadows a valid one with the same id.
func Fingerprint(tx *transaction.Transaction) string {
	sum := sha256.Sum256(tx.Bytes())
	return hex.EncodeToString(sum[:])
}

// Merge unions d into r and recomputes every status. Applying the same
// deltas in any order, any number of times, yields the same registry.
func (m *MergeEngine) Merge(r *Registry, d *Delta) MergeSummary {
	var summary MergeSummary

	summary.IgnoredOutputCount = m.checkOutputs(r, d)

	// Copies sharing an id but differing in bytes are kept as alternates and
	// tried in turn, so a corrupted copy listed first cannot hide a valid one.
	pending := make(map[string]*transaction.Transaction)
	alternates := make(map[string][]*transaction.Transaction)
	fingerprints := make(map[string]struct{})
	var replayed []*transaction.Transaction
	for _, tx := range d.Transactions {
		if tx == nil {
			continue
		}
		if r.HasTransaction(tx.ID) {
			summary.DuplicateTxCount++
			continue
		}
		fp := Fingerprint(tx)
		if _, bad := m.blacklist[fp]; bad {
			summary.DuplicateTxCount++
			replayed = append(replayed, tx)
			continue
		}
		if _, seen := fingerprints[fp]; seen {
			summary.DuplicateTxCount++
			continue
		}
		fingerprints[fp] = struct{}{}
		if _, ok := pending[tx.ID]; ok {
			alternates[tx.ID] = append(alternates[tx.ID], tx)
			continue
		}
		pending[tx.ID] = tx
	}
	for id, tx := range m.orphans {
		delete(m.orphans, id)
		if r.HasTransaction(id) {
			continue
		}
		if _, ok := pending[id]; !ok {
			pending[id] = tx
		} else if _, seen := fingerprints[Fingerprint(tx)]; !seen {
			alternates[id] = append(alternates[id], tx)
		}
	}

	// output id -> id of the delta transaction creating it
	producer := make(map[string]string)
	discarded := make(map[string]struct{})
	for _, tx := range replayed {
		if _, ok := pending[tx.ID]; ok {
			continue
		}
		discarded[tx.ID] = struct{}{}
		for _, out := range tx.OutputIDs() {
			producer[out] = tx.ID
		}
	}
	for id, tx := range pending {
		for _, out := range tx.OutputIDs() {
			producer[out] = id
		}
	}

	for progress := true; progress && len(pending) > 0; {
		progress = false
		for _, id := range sortedKeys(pending) {
			tx := pending[id]
			if cause, ok := dependsOn(tx, producer, discarded); ok {
				delete(pending, id)
				discarded[id] = struct{}{}
				summary.RejectedTxCount++
				summary.Discarded = append(summary.Discarded, Discarded{
					TxID:   id,
					Reason: lerrors.CodeBadSignature,
					Detail: "depends on discarded transaction " + cause,
				})
				progress = true
				continue
			}

			err := m.validator.Validate(tx, r, ModeMerge)
			switch lerrors.CodeOf(err) {
			case "":
				r.addTransaction(tx)
				delete(pending, id)
				progress = true
			case lerrors.CodeUnknownInput:
			default:
				m.blacklist[Fingerprint(tx)] = lerrors.CodeOf(err)
				if alt := alternates[id]; len(alt) > 0 {
					pending[id] = alt[0]
					alternates[id] = alt[1:]
					progress = true
					continue
				}
				delete(pending, id)
				discarded[id] = struct{}{}
				summary.RejectedTxCount++
				summary.Discarded = append(summary.Discarded, Discarded{
					TxID:   id,
					Reason: lerrors.CodeOf(err),
					Detail: err.Error(),
				})
				progress = true
			}
		}
	}

	for _, id := range sortedKeys(pending) {
		if len(m.orphans) >= m.maxOrphans {
			break
		}
		m.orphans[id] = pending[id]
	}
	summary.OrphanedTxCount = len(pending)

	changes, resolved := m.resolver.Resolve(r)
	summary.Changes = changes
	summary.ResolvedConflictCount = resolved
	for _, c := range changes {
		switch c.To {
		case TxAccepted:
			summary.AcceptedTxCount++
		case TxRejected:
			summary.RejectedTxCount++
		}
	}
	return summary
}

// checkOutputs counts remote outputs that carry no information this node
// can use: genesis outputs it was not configured with, outputs of unknown
// creators, and outputs that disagree with their creating transaction.
// Remote states are never applied; they are recomputed locally.
func (m *MergeEngine) checkOutputs(r *Registry, d *Delta) int {
	creators := make(map[string]*transaction.Transaction, len(d.Transactions))
	for _, tx := range d.Transactions {
		if tx != nil {
			creators[tx.ID] = tx
		}
	}
	ignored := 0
	for _, out := range d.Outputs {
		if out == nil {
			ignored++
			continue
		}
		if local := r.Get(out.ID); local != nil {
			if local.Owner != out.Owner || local.Amount != out.Amount {
				ignored++
			}
			continue
		}
		tx, ok := creators[out.CreatedBy]
		if !ok || int(out.Index) >= len(tx.Outputs) || types.OutputID(tx.ID, out.Index) != out.ID {
			ignored++
			continue
		}
		if tx.Outputs[out.Index].Owner != out.Owner || tx.Outputs[out.Index].Amount != out.Amount {
			ignored++
		}
	}
	return ignored
}

func dependsOn(tx *transaction.Transaction, producer map[string]string, discarded map[string]struct{}) (string, bool) {
	for _, in := range tx.Inputs {
		if p, ok := producer[in]; ok {
			if _, bad := discarded[p]; bad {
				return p, true
			}
		}
	}
	return "", false
}

// Orphans returns the parked transactions sorted by id.
func (m *MergeEngine) Orphans() []*transaction.Transaction {
	out := make([]*transaction.Transaction, 0, len(m.orphans))
	for _, id := range sortedKeys(m.orphans) {
		out = append(out, m.orphans[id])
	}
	return out
}

// Blacklist returns the fingerprints of transactions that failed
// verification, sorted.
func (m *MergeEngine) Blacklist() []string {
	return sortedKeys(m.blacklist)
}

func (m *MergeEngine) restore(orphans []*transaction.Transaction, blacklist []string) {
	m.orphans = make(map[string]*transaction.Transaction, len(orphans))
	for _, tx := range orphans {
		if len(m.orphans) >= m.maxOrphans {
			break
		}
		m.orphans[tx.ID] = tx
	}
	m.blacklist = make(map[string]lerrors.RejectCode, len(blacklist))
	for _, fp := range blacklist {
		m.blacklist[fp] = lerrors.CodeBadSignature
	}
}

// ExportDelta collects everything that changed in r after since. Every
// transaction named by an exported output travels with it so the receiver
// can verify the claim instead of trusting it. A local transaction that
// passed validation but lost a conflict is part of the registry and is
// exported with the rest; transactions refused by validation never enter
// the registry and so are never exported.
func ExportDelta(r *Registry, origin string, since uint64) *Delta {
	d := &Delta{Origin: origin, BaseEpoch: since, Epoch: r.epoch}

	txIDs := make(map[string]struct{})
	for _, out := range r.outputs {
		if out.Epoch <= since {
			continue
		}
		d.Outputs = append(d.Outputs, out.Clone())
		if out.CreatedBy != types.GenesisTxID {
			txIDs[out.CreatedBy] = struct{}{}
		}
		for _, id := range out.State.Claimants() {
			txIDs[id] = struct{}{}
		}
		for _, id := range r.claims[out.ID] {
			txIDs[id] = struct{}{}
		}
	}
	for id, rec := range r.txs {
		if rec.epoch > since {
			txIDs[id] = struct{}{}
		}
	}
	sort.Slice(d.Outputs, func(i, j int) bool { return d.Outputs[i].ID < d.Outputs[j].ID })

	for _, id := range sortedKeys(txIDs) {
		if rec, ok := r.txs[id]; ok {
			d.Transactions = append(d.Transactions, rec.tx.Clone())
		}
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

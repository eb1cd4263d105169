package ledger

import (
	"sort"

	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
)

type TxStatus uint8

const (
	// TxUnknown is the status of a record that has not been resolved yet
	TxUnknown TxStatus = iota
	TxAccepted
	TxRejected
)

func (s TxStatus) String() string {
	switch s {
	case TxAccepted:
		return "accepted"
	case TxRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// txRecord is an arena entry. Records point at each other only by id so
// the registry stays trivially serializable.
type txRecord struct {
	tx *transaction.Transaction
	// distinct input owners in order of first appearance; owners[0] is the
	// primary signer
	owners []string
	// distinct ids of the transactions that created the inputs
	parents []string
	status  TxStatus
	reason  lerrors.RejectCode
	detail  string
	epoch   uint64
}

// Registry holds every output ever created plus the arena of known
// transactions. It is not safe for concurrent use; Ledger serializes access.
type Registry struct {
	outputs map[string]*types.Output
	txs     map[string]*txRecord
	// output id -> ids of every known transaction spending it
	claims map[string][]string
	// parent tx id -> ids of transactions spending its outputs
	children map[string][]string
	epoch    uint64
}

func NewRegistry() *Registry {
	return &Registry{
		outputs:  make(map[string]*types.Output),
		txs:      make(map[string]*txRecord),
		claims:   make(map[string][]string),
		children: make(map[string][]string),
	}
}

// Get returns the stored output or nil. Callers outside the package get a
// copy through Ledger.
func (r *Registry) Get(id string) *types.Output {
	return r.outputs[id]
}

// Upsert stores o and bumps the epoch.
func (r *Registry) Upsert(o *types.Output) {
	r.epoch++
	o.Epoch = r.epoch
	r.outputs[o.ID] = o
}

// Iterate visits every output until fn returns false. Order is unspecified.
func (r *Registry) Iterate(fn func(*types.Output) bool) {
	for _, o := range r.outputs {
		if !fn(o) {
			return
		}
	}
}

func (r *Registry) Epoch() uint64 {
	return r.epoch
}

func (r *Registry) Len() int {
	return len(r.outputs)
}

func (r *Registry) TxCount() int {
	return len(r.txs)
}

// HasTransaction reports whether id is in the arena.
func (r *Registry) HasTransaction(id string) bool {
	_, ok := r.txs[id]
	return ok
}

// Transaction returns a known transaction and its status.
func (r *Registry) Transaction(id string) (*transaction.Transaction, TxStatus, bool) {
	rec, ok := r.txs[id]
	if !ok {
		return nil, TxUnknown, false
	}
	return rec.tx, rec.status, true
}

// Claimants returns the ids of all known transactions spending output id.
func (r *Registry) Claimants(id string) []string {
	return append([]string(nil), r.claims[id]...)
}

// AddGenesis issues the genesis allocation. Output ids depend only on the
// allocation order, so every node configured with the same allocation
// derives the same outputs.
func (r *Registry) AddGenesis(allocs []types.TxOutput) {
	for i, a := range allocs {
		out := types.NewOutput(types.GenesisTxID, uint32(i), a)
		if _, exists := r.outputs[out.ID]; exists {
			continue
		}
		r.Upsert(out)
	}
}

// inputOwners lists the distinct owners of tx's inputs, all of which must
// be present.
func (r *Registry) inputOwners(tx *transaction.Transaction) []string {
	seen := make(map[string]struct{}, len(tx.Inputs))
	owners := make([]string, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		out := r.outputs[in]
		if out == nil {
			continue
		}
		if _, ok := seen[out.Owner]; ok {
			continue
		}
		seen[out.Owner] = struct{}{}
		owners = append(owners, out.Owner)
	}
	return owners
}

// addTransaction puts a validated transaction into the arena and inserts
// its outputs as Unspent. The resolver decides the final states.
func (r *Registry) addTransaction(tx *transaction.Transaction) *txRecord {
	if rec, ok := r.txs[tx.ID]; ok {
		return rec
	}
	r.epoch++
	rec := &txRecord{
		tx:     tx,
		owners: r.inputOwners(tx),
		epoch:  r.epoch,
	}
	seenParent := make(map[string]struct{})
	for _, in := range tx.Inputs {
		r.claims[in] = insertSorted(r.claims[in], tx.ID)
		out := r.outputs[in]
		if out == nil || out.CreatedBy == types.GenesisTxID {
			continue
		}
		if _, ok := seenParent[out.CreatedBy]; ok {
			continue
		}
		seenParent[out.CreatedBy] = struct{}{}
		rec.parents = append(rec.parents, out.CreatedBy)
		r.children[out.CreatedBy] = insertSorted(r.children[out.CreatedBy], tx.ID)
	}
	r.txs[tx.ID] = rec
	for _, out := range tx.CreatedOutputs() {
		if _, exists := r.outputs[out.ID]; !exists {
			r.Upsert(out)
		}
	}
	return rec
}

// Clone deep-copies the registry, used to evaluate merges off to the side.
func (r *Registry) Clone() *Registry {
	cp := NewRegistry()
	cp.epoch = r.epoch
	for id, o := range r.outputs {
		cp.outputs[id] = o.Clone()
	}
	for id, rec := range r.txs {
		c := *rec
		c.owners = append([]string(nil), rec.owners...)
		c.parents = append([]string(nil), rec.parents...)
		cp.txs[id] = &c
	}
	for id, ids := range r.claims {
		cp.claims[id] = append([]string(nil), ids...)
	}
	for id, ids := range r.children {
		cp.children[id] = append([]string(nil), ids...)
	}
	return cp
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

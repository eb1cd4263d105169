package ledger

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	lerrors "github.com/meshpay/meshledger/errors"
)

type HistoryFilter uint8

const (
	HistoryAll HistoryFilter = iota
	HistorySent
	HistoryReceived
)

func ParseHistoryFilter(s string) (HistoryFilter, error) {
	switch s {
	case "", "all":
		return HistoryAll, nil
	case "sent":
		return HistorySent, nil
	case "received":
		return HistoryReceived, nil
	}
	return HistoryAll, fmt.Errorf("unknown history filter %q", s)
}

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// HistoryEntry is one transaction as seen by an owner. A transaction the
// owner signed is sent: Amount is what it paid to others and Fee what the
// inputs held beyond all outputs. Otherwise it is received and Amount is
// what it paid to the owner. Amounts are decimal strings.
type HistoryEntry struct {
	TxID         string             `json:"tx_id"`
	Direction    string             `json:"direction"`
	Status       string             `json:"status"`
	Reason       lerrors.RejectCode `json:"reason,omitempty"`
	Amount       string             `json:"amount"`
	Fee          string             `json:"fee,omitempty"`
	LogicalClock uint64             `json:"logical_clock"`
	Timestamp    uint64             `json:"timestamp"`
	Epoch        uint64             `json:"epoch"`
}

// TransactionHistory lists the transactions touching owner, oldest first
// by creation timestamp. Rejected transactions are included with their
// reason.
func (l *Ledger) TransactionHistory(owner string, filter HistoryFilter) []HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var entries []HistoryEntry
	for _, rec := range l.registry.txs {
		e, ok := historyEntry(l.registry, rec, owner)
		if !ok {
			continue
		}
		if (filter == HistorySent && e.Direction != DirectionSent) ||
			(filter == HistoryReceived && e.Direction != DirectionReceived) {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		if entries[i].LogicalClock != entries[j].LogicalClock {
			return entries[i].LogicalClock < entries[j].LogicalClock
		}
		return entries[i].TxID < entries[j].TxID
	})
	return entries
}

func historyEntry(r *Registry, rec *txRecord, owner string) (HistoryEntry, bool) {
	signed := false
	for _, o := range rec.owners {
		if o == owner {
			signed = true
			break
		}
	}

	toOwner := uint256.NewInt(0)
	toOthers := uint256.NewInt(0)
	outputs := uint256.NewInt(0)
	for _, out := range rec.tx.Outputs {
		amount := uint256.NewInt(out.Amount)
		outputs.Add(outputs, amount)
		if out.Owner == owner {
			toOwner.Add(toOwner, amount)
		} else {
			toOthers.Add(toOthers, amount)
		}
	}
	if !signed && toOwner.IsZero() {
		return HistoryEntry{}, false
	}

	e := HistoryEntry{
		TxID:         rec.tx.ID,
		Status:       rec.status.String(),
		Reason:       rec.reason,
		LogicalClock: rec.tx.LogicalClock,
		Timestamp:    rec.tx.Timestamp,
		Epoch:        rec.epoch,
	}
	if !signed {
		e.Direction = DirectionReceived
		e.Amount = toOwner.Dec()
		return e, true
	}

	e.Direction = DirectionSent
	e.Amount = toOthers.Dec()
	inputs := uint256.NewInt(0)
	for _, in := range rec.tx.Inputs {
		if o := r.outputs[in]; o != nil {
			inputs.Add(inputs, uint256.NewInt(o.Amount))
		}
	}
	if inputs.Gt(outputs) {
		e.Fee = new(uint256.Int).Sub(inputs, outputs).Dec()
	}
	return e, true
}

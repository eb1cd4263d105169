package types

import (
	"encoding/binary"
	"encoding/hex"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// GenesisTxID marks outputs issued by the genesis allocation rather than by
// a transaction.
const GenesisTxID = "genesis"

type OutputStatus uint8

const (
	StatusUnspent OutputStatus = iota
	StatusPending
	StatusSpent
	// StatusInvalidated is the tombstone of an output whose creating
	// transaction was rejected.
	StatusInvalidated
)

func (s OutputStatus) String() string {
	switch s {
	case StatusUnspent:
		return "unspent"
	case StatusPending:
		return "pending"
	case StatusSpent:
		return "spent"
	case StatusInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// OutputState is the lifecycle position of an output. SpentBy is set only
// for StatusSpent, ClaimedBy only for StatusPending and is kept sorted.
type OutputState struct {
	Status    OutputStatus `json:"status" msgpack:"status"`
	SpentBy   string       `json:"spent_by,omitempty" msgpack:"spent_by,omitempty"`
	ClaimedBy []string     `json:"claimed_by,omitempty" msgpack:"claimed_by,omitempty"`
}

func Unspent() OutputState {
	return OutputState{Status: StatusUnspent}
}

func Pending(claimedBy ...string) OutputState {
	ids := append([]string(nil), claimedBy...)
	sort.Strings(ids)
	return OutputState{Status: StatusPending, ClaimedBy: ids}
}

func Spent(by string) OutputState {
	return OutputState{Status: StatusSpent, SpentBy: by}
}

func Invalidated() OutputState {
	return OutputState{Status: StatusInvalidated}
}

func (s OutputState) Equal(o OutputState) bool {
	if s.Status != o.Status || s.SpentBy != o.SpentBy || len(s.ClaimedBy) != len(o.ClaimedBy) {
		return false
	}
	for i := range s.ClaimedBy {
		if s.ClaimedBy[i] != o.ClaimedBy[i] {
			return false
		}
	}
	return true
}

// Claimants returns every transaction id the state names.
func (s OutputState) Claimants() []string {
	switch s.Status {
	case StatusSpent:
		return []string{s.SpentBy}
	case StatusPending:
		return append([]string(nil), s.ClaimedBy...)
	default:
		return nil
	}
}

// Output is one unit of spendable value. Amount never changes after
// creation, only State does.
type Output struct {
	ID        string      `json:"id" msgpack:"id"`
	Owner     string      `json:"owner" msgpack:"owner"`
	Amount    uint64      `json:"amount" msgpack:"amount"`
	CreatedBy string      `json:"created_by" msgpack:"created_by"`
	Index     uint32      `json:"index" msgpack:"index"`
	State     OutputState `json:"state" msgpack:"state"`
	// Epoch is the registry epoch of the last change to this output.
	Epoch uint64 `json:"epoch" msgpack:"epoch"`
}

func (o *Output) Clone() *Output {
	cp := *o
	cp.State.ClaimedBy = append([]string(nil), o.State.ClaimedBy...)
	return &cp
}

// TxOutput is an output as written in a transaction, before it has an id.
type TxOutput struct {
	Owner  string `json:"owner" msgpack:"owner"`
	Amount uint64 `json:"amount" msgpack:"amount"`
}

// OutputID derives the id of the index-th output created by createdBy.
func OutputID(createdBy string, index uint32) string {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	h, _ := blake2b.New256(nil)
	h.Write([]byte(createdBy))
	h.Write(idx[:])
	return hex.EncodeToString(h.Sum(nil))
}

// NewOutput builds the Unspent output for position index of a transaction.
func NewOutput(createdBy string, index uint32, out TxOutput) *Output {
	return &Output{
		ID:        OutputID(createdBy, index),
		Owner:     out.Owner,
		Amount:    out.Amount,
		CreatedBy: createdBy,
		Index:     index,
		State:     Unspent(),
	}
}

package interfaces

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
)

// Ledger interface defines the methods required for ledger operations
type Ledger interface {
	NodeID() string
	// ValidateAndApply admits a locally submitted transaction
	ValidateAndApply(tx *transaction.Transaction) (ledger.ApplyResult, error)
	// ImportDelta merges a delta received from a peer
	ImportDelta(d *ledger.Delta) (ledger.MergeSummary, error)
	// ImportRelayedDelta merges a delta whose base was fetched from a relay
	ImportRelayedDelta(d *ledger.Delta) (ledger.MergeSummary, error)
	// ExportDelta returns everything changed after since
	ExportDelta(since uint64) *ledger.Delta
	Balance(owner string) *uint256.Int
	SelectOutputs(owner string, amount uint64) ([]*types.Output, *uint256.Int, error)
	// ReserveOutputs holds outputs of owner for a transaction being built
	ReserveOutputs(owner string, amount uint64, ttl time.Duration) (*ledger.Reservation, error)
	ReleaseReservation(id string) error
	CleanupExpiredReservations() int
	ReservedBalance(owner string) *uint256.Int
	UnspentOutputs(owner string) []*types.Output
	TransactionHistory(owner string, filter ledger.HistoryFilter) []ledger.HistoryEntry
	GetOutput(id string) (*types.Output, bool)
	GetTransaction(id string) (*transaction.Transaction, ledger.TxStatus, bool)
	NextLogicalClock(owner string) uint64
	Epoch() uint64
	PeerEpoch(origin string) uint64
	Statistics() ledger.Statistics
	Digest() [32]byte
	Snapshot() *ledger.Snapshot
}

package interfaces

import (
	"context"

	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/types"
)

type AccountInfo struct {
	Owner            string          `json:"owner"`
	Balance          string          `json:"balance"`
	// Reserved is the part of Balance held by transfers in progress.
	Reserved         string          `json:"reserved"`
	NextLogicalClock uint64          `json:"next_logical_clock"`
	Outputs          []*types.Output `json:"outputs,omitempty"`
}

// AccountHistory lists the transactions touching an owner, oldest first.
type AccountHistory struct {
	Owner   string                `json:"owner"`
	Filter  string                `json:"filter"`
	Total   int                   `json:"total"`
	Entries []ledger.HistoryEntry `json:"entries"`
}

// TransferRequest pays Amount from the signer's unspent outputs to To.
// Whatever the selected outputs hold beyond Amount plus Fee returns to
// the signer as change.
type TransferRequest struct {
	Signer *identity.KeyPair
	To     string
	Amount uint64
	Fee    uint64
}

type AccountService interface {
	GetAccount(ctx context.Context, owner string, withOutputs bool) (*AccountInfo, error)
	// GetHistory returns up to limit of the newest entries; limit <= 0 means all
	GetHistory(ctx context.Context, owner string, filter string, limit int) (*AccountHistory, error)
}

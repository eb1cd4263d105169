package interfaces

import (
	"context"

	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/transaction"
)

type TxInfo struct {
	Tx     *transaction.Transaction `json:"tx"`
	Status string                   `json:"status"`
}

type TxService interface {
	SubmitTransaction(ctx context.Context, tx *transaction.Transaction) (ledger.ApplyResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*transaction.Transaction, ledger.ApplyResult, error)
	GetTransaction(ctx context.Context, id string) (*TxInfo, error)
}

package service

import (
	"context"
	"fmt"

	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/interfaces"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/transaction"
	"github.com/pkg/errors"
)

type TxServiceImpl struct {
	svc *LedgerService
}

func NewTxService(svc *LedgerService) *TxServiceImpl {
	return &TxServiceImpl{svc: svc}
}

func (s *TxServiceImpl) SubmitTransaction(ctx context.Context, tx *transaction.Transaction) (ledger.ApplyResult, error) {
	return s.svc.SubmitTransaction(ctx, tx)
}

// Transfer reserves unspent outputs of the signer, builds a payment with
// change back to the signer and submits it. The reservation keeps a
// concurrent transfer of the same signer away from those outputs and hands
// out the next logical clock, and is released once the transaction has
// been applied.
func (s *TxServiceImpl) Transfer(ctx context.Context, req interfaces.TransferRequest) (*transaction.Transaction, ledger.ApplyResult, error) {
	if req.Signer == nil {
		return nil, ledger.ApplyResult{}, errors.New("signer is required")
	}
	if req.Amount == 0 {
		return nil, ledger.ApplyResult{}, errors.New("amount must be positive")
	}
	to, err := identity.ResolveOwner(req.To)
	if err != nil {
		return nil, ledger.ApplyResult{}, err
	}
	need := req.Amount + req.Fee
	if need < req.Amount {
		return nil, ledger.ApplyResult{}, errors.New("amount plus fee overflows")
	}

	ld := s.svc.Ledger()
	from := req.Signer.PublicKey()
	res, err := ld.ReserveOutputs(from, need, 0)
	if err != nil {
		return nil, ledger.ApplyResult{}, err
	}
	defer func() {
		if err := ld.ReleaseReservation(res.ID); err != nil {
			logx.Debug("TX", fmt.Sprintf("Reservation %s already gone: %v", res.ID, err))
		}
	}()
	if !res.Total.IsUint64() {
		return nil, ledger.ApplyResult{}, errors.New("selected outputs exceed the amount range")
	}

	b := transaction.NewBuilder().Clock(res.Clock).Spend(res.OutputIDs()...)
	tx, err := b.Pay(to, req.Amount).Change(from, res.Total.Uint64()-need).Build(req.Signer)
	if err != nil {
		return nil, ledger.ApplyResult{}, errors.Wrap(err, "failed to build transaction")
	}
	logx.Info("TX", fmt.Sprintf("Transfer %s: %d from %s to %s using %d outputs", tx.ShortID(), req.Amount, from, to, len(res.Outputs)))

	applied, err := s.svc.SubmitTransaction(ctx, tx)
	return tx, applied, err
}

func (s *TxServiceImpl) GetTransaction(ctx context.Context, id string) (*interfaces.TxInfo, error) {
	tx, status, ok := s.svc.Ledger().GetTransaction(id)
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", id)
	}
	return &interfaces.TxInfo{Tx: tx, Status: status.String()}, nil
}

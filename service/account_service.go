package service

import (
	"context"

	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/interfaces"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/logx"
)

type AccountServiceImpl struct {
	svc *LedgerService
}

func NewAccountService(svc *LedgerService) *AccountServiceImpl {
	return &AccountServiceImpl{svc: svc}
}

func (s *AccountServiceImpl) GetAccount(ctx context.Context, owner string, withOutputs bool) (*interfaces.AccountInfo, error) {
	key, err := identity.ResolveOwner(owner)
	if err != nil {
		logx.Error("ACCOUNT", "Invalid owner: ", err)
		return nil, err
	}
	ld := s.svc.Ledger()
	info := &interfaces.AccountInfo{
		Owner:            key,
		Balance:          ld.Balance(key).Dec(),
		Reserved:         ld.ReservedBalance(key).Dec(),
		NextLogicalClock: ld.NextLogicalClock(key),
	}
	if withOutputs {
		info.Outputs = ld.UnspentOutputs(key)
	}
	return info, nil
}

func (s *AccountServiceImpl) GetHistory(ctx context.Context, owner string, filter string, limit int) (*interfaces.AccountHistory, error) {
	key, err := identity.ResolveOwner(owner)
	if err != nil {
		logx.Error("ACCOUNT", "Invalid owner: ", err)
		return nil, err
	}
	f, err := ledger.ParseHistoryFilter(filter)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		filter = "all"
	}
	entries := s.svc.Ledger().TransactionHistory(key, f)
	total := len(entries)
	if limit > 0 && total > limit {
		entries = entries[total-limit:]
	}
	return &interfaces.AccountHistory{Owner: key, Filter: filter, Total: total, Entries: entries}, nil
}

package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/meshpay/meshledger/types"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

type cachedBalance struct {
	epoch  uint64
	amount *uint256.Int
}

// Vault answers per-owner queries over the registry. Balances are cached
// per owner and dropped as soon as the registry epoch moves. The vault also
// holds output reservations, which live only in memory.
type Vault struct {
	mu    sync.Mutex
	cache map[string]cachedBalance

	reservations map[string]*Reservation
	// output id -> reservation id
	locked map[string]string
	ttl    time.Duration
	now    func() time.Time
}

func NewVault(reservationTTL time.Duration) *Vault {
	if reservationTTL <= 0 {
		reservationTTL = DefaultReservationTTL
	}
	return &Vault{
		cache:        make(map[string]cachedBalance),
		reservations: make(map[string]*Reservation),
		locked:       make(map[string]string),
		ttl:          reservationTTL,
		now:          time.Now,
	}
}

// Balance sums the Unspent outputs owned by owner.
func (v *Vault) Balance(owner string, r *Registry) *uint256.Int {
	epoch := r.Epoch()

	v.mu.Lock()
	if c, ok := v.cache[owner]; ok && c.epoch == epoch {
		v.mu.Unlock()
		return new(uint256.Int).Set(c.amount)
	}
	v.mu.Unlock()

	sum := uint256.NewInt(0)
	r.Iterate(func(o *types.Output) bool {
		if o.Owner == owner && o.State.Status == types.StatusUnspent {
			sum.Add(sum, uint256.NewInt(o.Amount))
		}
		return true
	})

	v.mu.Lock()
	v.cache[owner] = cachedBalance{epoch: epoch, amount: new(uint256.Int).Set(sum)}
	v.mu.Unlock()
	return sum
}

// Reset drops every cached balance.
func (v *Vault) Reset() {
	v.mu.Lock()
	v.cache = make(map[string]cachedBalance)
	v.mu.Unlock()
}

// SelectOutputs picks Unspent outputs of owner covering amount: a single
// exact match if one exists, otherwise largest first. Outputs held by a
// live reservation are skipped. It returns copies and their total.
func (v *Vault) SelectOutputs(owner string, amount uint64, r *Registry) ([]*types.Output, *uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selectWithoutLocking(owner, amount, r, v.now())
}

func (v *Vault) selectWithoutLocking(owner string, amount uint64, r *Registry, now time.Time) ([]*types.Output, *uint256.Int, error) {
	if amount == 0 {
		return nil, nil, fmt.Errorf("amount must be positive")
	}
	var candidates []*types.Output
	r.Iterate(func(o *types.Output) bool {
		if o.Owner == owner && o.State.Status == types.StatusUnspent && !v.isLocked(o.ID, now) {
			candidates = append(candidates, o)
		}
		return true
	})
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Amount != candidates[j].Amount {
			return candidates[i].Amount > candidates[j].Amount
		}
		return candidates[i].ID < candidates[j].ID
	})

	for _, o := range candidates {
		if o.Amount == amount {
			return []*types.Output{o.Clone()}, uint256.NewInt(amount), nil
		}
	}

	target := uint256.NewInt(amount)
	total := uint256.NewInt(0)
	var picked []*types.Output
	for _, o := range candidates {
		picked = append(picked, o.Clone())
		total.Add(total, uint256.NewInt(o.Amount))
		if !total.Lt(target) {
			return picked, total, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: have %s, need %d", ErrInsufficientFunds, total.Dec(), amount)
}

// Statistics is a point-in-time summary of the ledger.
type Statistics struct {
	NodeID       string `json:"node_id"`
	Epoch        uint64 `json:"epoch"`
	Outputs      int    `json:"outputs"`
	Unspent      int    `json:"unspent"`
	Pending      int    `json:"pending"`
	Spent        int    `json:"spent"`
	Invalidated  int    `json:"invalidated"`
	Transactions int    `json:"transactions"`
	AcceptedTx   int    `json:"accepted_tx"`
	RejectedTx   int    `json:"rejected_tx"`
	Orphans      int    `json:"orphans"`
	Blacklisted  int    `json:"blacklisted"`
	Owners       int    `json:"owners"`
	Peers        int    `json:"peers"`
	// TotalUnspent is a decimal string since it may exceed uint64.
	TotalUnspent string `json:"total_unspent"`
}

func collectStatistics(r *Registry) Statistics {
	stats := Statistics{Epoch: r.Epoch(), Outputs: r.Len(), Transactions: r.TxCount()}
	total := uint256.NewInt(0)
	owners := make(map[string]struct{})
	r.Iterate(func(o *types.Output) bool {
		switch o.State.Status {
		case types.StatusUnspent:
			stats.Unspent++
			total.Add(total, uint256.NewInt(o.Amount))
			owners[o.Owner] = struct{}{}
		case types.StatusPending:
			stats.Pending++
		case types.StatusSpent:
			stats.Spent++
		case types.StatusInvalidated:
			stats.Invalidated++
		}
		return true
	})
	for _, rec := range r.txs {
		switch rec.status {
		case TxAccepted:
			stats.AcceptedTx++
		case TxRejected:
			stats.RejectedTx++
		}
	}
	stats.Owners = len(owners)
	stats.TotalUnspent = total.Dec()
	return stats
}

package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/meshpay/meshledger/types"
)

const DefaultReservationTTL = 30 * time.Second

var ErrUnknownReservation = errors.New("unknown reservation")

// Reservation holds outputs of one owner for a transaction being built, so
// a concurrent transfer cannot select them too. Clock is the logical clock
// the transaction should carry; concurrent reservations of the same owner
// get distinct clocks.
type Reservation struct {
	ID      string          `json:"id"`
	Owner   string          `json:"owner"`
	Outputs []*types.Output `json:"outputs"`
	Total   *uint256.Int    `json:"total"`
	Clock   uint64          `json:"clock"`
	Expires time.Time       `json:"expires"`
}

// OutputIDs returns the reserved output ids in selection order.
func (r *Reservation) OutputIDs() []string {
	ids := make([]string, len(r.Outputs))
	for i, o := range r.Outputs {
		ids[i] = o.ID
	}
	return ids
}

func (r *Reservation) clone() *Reservation {
	c := *r
	c.Outputs = make([]*types.Output, len(r.Outputs))
	for i, o := range r.Outputs {
		c.Outputs[i] = o.Clone()
	}
	c.Total = new(uint256.Int).Set(r.Total)
	return &c
}

// Reserve selects outputs of owner covering amount and locks them until
// the reservation is released or expires. clock is the next clock the
// registry allows for owner.
func (v *Vault) Reserve(owner string, amount uint64, ttl time.Duration, r *Registry, clock uint64) (*Reservation, error) {
	if ttl <= 0 {
		ttl = v.ttl
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	v.expireWithoutLocking(now)
	outs, total, err := v.selectWithoutLocking(owner, amount, r, now)
	if err != nil {
		return nil, err
	}
	for _, res := range v.reservations {
		if res.Owner == owner && res.Clock >= clock {
			clock = res.Clock + 1
		}
	}

	res := &Reservation{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Owner:   owner,
		Outputs: outs,
		Total:   total,
		Clock:   clock,
		Expires: now.Add(ttl),
	}
	v.reservations[res.ID] = res
	for _, o := range outs {
		v.locked[o.ID] = res.ID
	}
	return res.clone(), nil
}

// Release unlocks the outputs of a reservation.
func (v *Vault) Release(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	res, ok := v.reservations[id]
	if !ok {
		return ErrUnknownReservation
	}
	v.dropWithoutLocking(res)
	return nil
}

// CleanupExpired drops every expired reservation and returns how many
// there were.
func (v *Vault) CleanupExpired() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expireWithoutLocking(v.now())
}

// Reserved sums the outputs of owner held by live reservations.
func (v *Vault) Reserved(owner string) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	sum := uint256.NewInt(0)
	for _, res := range v.reservations {
		if res.Owner == owner && now.Before(res.Expires) {
			sum.Add(sum, res.Total)
		}
	}
	return sum
}

func (v *Vault) isLocked(outputID string, now time.Time) bool {
	id, ok := v.locked[outputID]
	if !ok {
		return false
	}
	res, ok := v.reservations[id]
	return ok && now.Before(res.Expires)
}

func (v *Vault) expireWithoutLocking(now time.Time) int {
	expired := 0
	for _, res := range v.reservations {
		if !now.Before(res.Expires) {
			v.dropWithoutLocking(res)
			expired++
		}
	}
	return expired
}

func (v *Vault) dropWithoutLocking(res *Reservation) {
	delete(v.reservations, res.ID)
	for _, o := range res.Outputs {
		if v.locked[o.ID] == res.ID {
			delete(v.locked, o.ID)
		}
	}
}

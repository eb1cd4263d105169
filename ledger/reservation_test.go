package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/meshpay/meshledger/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitAlice(t *testing.T, l *Ledger, amounts ...uint64) *transaction.Transaction {
	t.Helper()
	parts := make([]payment, len(amounts))
	for i, a := range amounts {
		parts[i] = pay(alice, a)
	}
	tx := buildTx(t, 1, []string{genesisOut(0)}, parts, alice)
	_, err := l.ValidateAndApply(tx)
	require.NoError(t, err)
	return tx
}

func TestReserveOutputsHoldsSelection(t *testing.T) {
	l := newTestLedger(t, "node-a")
	splitAlice(t, l, 50, 30, 20)
	owner := alice.PublicKey()

	first, err := l.ReserveOutputs(owner, 30, 0)
	require.NoError(t, err)
	require.Len(t, first.Outputs, 1)
	assert.Equal(t, uint64(30), first.Outputs[0].Amount)
	assert.Equal(t, uint64(2), first.Clock)
	assert.Equal(t, "30", l.ReservedBalance(owner).Dec())

	// the exact match is held, so selection falls back to largest first
	outs, _, err := l.SelectOutputs(owner, 30)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, uint64(50), outs[0].Amount)

	second, err := l.ReserveOutputs(owner, 60, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), second.Total.Uint64())
	assert.Equal(t, uint64(3), second.Clock)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = l.ReserveOutputs(owner, 1, 0)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	// the balance itself is untouched
	assert.Equal(t, uint64(100), l.Balance(owner).Uint64())

	require.NoError(t, l.ReleaseReservation(first.ID))
	assert.ErrorIs(t, l.ReleaseReservation(first.ID), ErrUnknownReservation)
	again, err := l.ReserveOutputs(owner, 30, 0)
	require.NoError(t, err)
	assert.Equal(t, first.OutputIDs(), again.OutputIDs())
}

func TestReservationExpires(t *testing.T) {
	l := newTestLedger(t, "node-a")
	now := time.Unix(1700000000, 0)
	l.vault.now = func() time.Time { return now }
	owner := alice.PublicKey()

	res, err := l.ReserveOutputs(owner, 100, time.Second)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Second), res.Expires)
	_, _, err = l.SelectOutputs(owner, 100)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	now = now.Add(2 * time.Second)
	outs, _, err := l.SelectOutputs(owner, 100)
	require.NoError(t, err)
	assert.Equal(t, res.OutputIDs()[0], outs[0].ID)
	assert.True(t, l.ReservedBalance(owner).IsZero())
	assert.Equal(t, 1, l.CleanupExpiredReservations())
	assert.Equal(t, 0, l.CleanupExpiredReservations())
	assert.ErrorIs(t, l.ReleaseReservation(res.ID), ErrUnknownReservation)
}

func TestReservationDefaultTTL(t *testing.T) {
	l := NewLedger("node-a", nil, Options{ReservationTTL: time.Minute})
	require.NoError(t, l.InitGenesis(genesisAllocs()))
	now := time.Unix(1700000000, 0)
	l.vault.now = func() time.Time { return now }

	res, err := l.ReserveOutputs(bob.PublicKey(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), res.Expires)
	assert.Equal(t, DefaultReservationTTL, NewVault(0).ttl)
}

func TestConcurrentReservationsAreDisjoint(t *testing.T) {
	l := newTestLedger(t, "node-a")
	splitAlice(t, l, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10)

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		held  = make(map[string]string)
		clock = make(map[uint64]bool)
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.ReserveOutputs(alice.PublicKey(), 10, 0)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range res.OutputIDs() {
				assert.NotContains(t, held, id)
				held[id] = res.ID
			}
			assert.False(t, clock[res.Clock])
			clock[res.Clock] = true
		}()
	}
	wg.Wait()

	assert.Len(t, held, 10)
	assert.Len(t, clock, 10)
	_, err := l.ReserveOutputs(alice.PublicKey(), 10, 0)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

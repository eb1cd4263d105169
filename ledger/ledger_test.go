package ledger

import (
	"sync"
	"testing"

	"github.com/holiman/uint256"
	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisBalances(t *testing.T) {
	l := newTestLedger(t, "node-a")

	assert.Equal(t, uint64(100), l.Balance(alice.PublicKey()).Uint64())
	assert.Equal(t, uint64(50), l.Balance(bob.PublicKey()).Uint64())
	assert.True(t, l.Balance(carol.PublicKey()).IsZero())

	// re-issuing the same allocation is a no-op
	epoch := l.Epoch()
	require.NoError(t, l.InitGenesis(genesisAllocs()))
	assert.Equal(t, epoch, l.Epoch())
}

func TestInitGenesisRejectsBadAllocation(t *testing.T) {
	l := NewLedger("node-a", identity.NewEd25519Verifier(), Options{})
	assert.Error(t, l.InitGenesis([]types.TxOutput{{Owner: alice.PublicKey(), Amount: 0}}))
	assert.Error(t, l.InitGenesis([]types.TxOutput{{Owner: "nobody", Amount: 1}}))
	require.NoError(t, l.InitGenesis([]types.TxOutput{{Owner: alice.DID(), Amount: 7}}))
	assert.Equal(t, uint64(7), l.Balance(alice.PublicKey()).Uint64())
}

func TestValidateAndApplyTransfer(t *testing.T) {
	l := newTestLedger(t, "node-a")
	tx := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 60), pay(alice, 40)}, alice)

	res, err := l.ValidateAndApply(tx)
	require.NoError(t, err)
	assert.Equal(t, TxAccepted, res.Status)
	assert.False(t, res.Duplicate)

	assert.Equal(t, uint64(40), l.Balance(alice.PublicKey()).Uint64())
	assert.Equal(t, uint64(110), l.Balance(bob.PublicKey()).Uint64())

	in, ok := l.GetOutput(genesisOut(0))
	require.True(t, ok)
	assert.Equal(t, types.Pending(tx.ID), in.State)

	for _, id := range tx.OutputIDs() {
		out, ok := l.GetOutput(id)
		require.True(t, ok)
		assert.Equal(t, types.StatusUnspent, out.State.Status)
	}

	again, err := l.ValidateAndApply(tx)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
}

func TestValidateAndApplyRejections(t *testing.T) {
	l := newTestLedger(t, "node-a")

	unknown := buildTx(t, 1, []string{types.OutputID("missing", 0)}, []payment{pay(bob, 1)}, alice)
	_, err := l.ValidateAndApply(unknown)
	assert.ErrorIs(t, err, lerrors.ErrUnknownInput)
	assert.True(t, lerrors.IsRetryable(err))

	forged := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(carol, 100)}, carol)
	_, err = l.ValidateAndApply(forged)
	assert.ErrorIs(t, err, lerrors.ErrBadSignature)

	tooMuch := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 101)}, alice)
	_, err = l.ValidateAndApply(tooMuch)
	assert.ErrorIs(t, err, lerrors.ErrMalformed)

	tampered := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 10)}, alice)
	tampered.Outputs[0].Amount = 90
	_, err = l.ValidateAndApply(tampered)
	assert.ErrorIs(t, err, lerrors.ErrMalformed)

	_, err = l.ValidateAndApply(nil)
	assert.ErrorIs(t, err, lerrors.ErrMalformed)

	assert.Equal(t, uint64(100), l.Balance(alice.PublicKey()).Uint64())
}

func TestLocalDoubleSpend(t *testing.T) {
	l := newTestLedger(t, "node-a")
	t1 := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 100)}, alice)
	t2 := buildTx(t, 2, []string{genesisOut(0)}, []payment{pay(carol, 100)}, alice)

	_, err := l.ValidateAndApply(t1)
	require.NoError(t, err)

	// the input is only Pending, so t2 validates but loses the conflict
	res, err := l.ValidateAndApply(t2)
	assert.ErrorIs(t, err, lerrors.ErrDoubleSpend)
	assert.Equal(t, TxRejected, res.Status)
	assert.Equal(t, 1, res.ResolvedConflicts)

	in, _ := l.GetOutput(genesisOut(0))
	assert.Equal(t, types.Spent(t1.ID), in.State)

	// once Spent, a third spend is refused by validation
	t3 := buildTx(t, 3, []string{genesisOut(0)}, []payment{pay(carol, 100)}, alice)
	_, err = l.ValidateAndApply(t3)
	assert.ErrorIs(t, err, lerrors.ErrDoubleSpend)
	_, _, known := l.GetTransaction(t3.ID)
	assert.False(t, known)

	assert.Equal(t, uint64(150), l.Balance(bob.PublicKey()).Uint64())
	assert.True(t, l.Balance(carol.PublicKey()).IsZero())
}

func TestSpendingInvalidatedOutputIsDoubleSpend(t *testing.T) {
	l := newTestLedger(t, "node-a")
	t1 := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 100)}, alice)
	t2 := buildTx(t, 2, []string{genesisOut(0)}, []payment{pay(carol, 100)}, alice)
	_, err := l.ValidateAndApply(t1)
	require.NoError(t, err)
	_, err = l.ValidateAndApply(t2)
	require.Error(t, err)

	out, _ := l.GetOutput(t2.OutputIDs()[0])
	assert.Equal(t, types.StatusInvalidated, out.State.Status)

	child := buildTx(t, 1, []string{t2.OutputIDs()[0]}, []payment{pay(alice, 100)}, carol)
	_, err = l.ValidateAndApply(child)
	assert.ErrorIs(t, err, lerrors.ErrDoubleSpend)
}

func TestDryRunLeavesLedgerUntouched(t *testing.T) {
	l := newTestLedger(t, "node-a")
	tx := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 100)}, alice)
	digest := l.Digest()

	res, err := l.DryRun(tx)
	require.NoError(t, err)
	assert.Equal(t, TxAccepted, res.Status)
	assert.Equal(t, digest, l.Digest())
	_, _, known := l.GetTransaction(tx.ID)
	assert.False(t, known)
}

func TestSelectOutputs(t *testing.T) {
	l := newTestLedger(t, "node-a")
	split := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(alice, 50), pay(alice, 30), pay(alice, 20)}, alice)
	_, err := l.ValidateAndApply(split)
	require.NoError(t, err)

	outs, total, err := l.SelectOutputs(alice.PublicKey(), 30)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, uint64(30), outs[0].Amount)
	assert.Equal(t, uint64(30), total.Uint64())

	outs, total, err = l.SelectOutputs(alice.PublicKey(), 60)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, uint64(50), outs[0].Amount)
	assert.Equal(t, uint64(30), outs[1].Amount)
	assert.Equal(t, uint64(80), total.Uint64())

	_, _, err = l.SelectOutputs(alice.PublicKey(), 101)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, _, err = l.SelectOutputs(alice.PublicKey(), 0)
	assert.Error(t, err)
}

func TestNextLogicalClock(t *testing.T) {
	l := newTestLedger(t, "node-a")
	assert.Equal(t, uint64(1), l.NextLogicalClock(alice.PublicKey()))

	tx := buildTx(t, 7, []string{genesisOut(0)}, []payment{pay(bob, 100)}, alice)
	_, err := l.ValidateAndApply(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), l.NextLogicalClock(alice.PublicKey()))
	assert.Equal(t, uint64(1), l.NextLogicalClock(bob.PublicKey()))
}

func TestStatistics(t *testing.T) {
	l := newTestLedger(t, "node-a")
	t1 := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 90)}, alice)
	t2 := buildTx(t, 2, []string{genesisOut(0)}, []payment{pay(carol, 90)}, alice)
	_, err := l.ValidateAndApply(t1)
	require.NoError(t, err)
	_, _ = l.ValidateAndApply(t2)

	stats := l.Statistics()
	assert.Equal(t, "node-a", stats.NodeID)
	assert.Equal(t, 4, stats.Outputs)
	assert.Equal(t, 2, stats.Unspent)
	assert.Equal(t, 1, stats.Spent)
	assert.Equal(t, 1, stats.Invalidated)
	assert.Equal(t, 2, stats.Transactions)
	assert.Equal(t, 1, stats.AcceptedTx)
	assert.Equal(t, 1, stats.RejectedTx)
	assert.Equal(t, 1, stats.Owners)
	// the 10 left over by t1 is the fee and is burned
	assert.Equal(t, "140", stats.TotalUnspent)
}

func TestSnapshotRestore(t *testing.T) {
	l := newTestLedger(t, "node-a")
	t1 := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 60), pay(alice, 40)}, alice)
	t2 := buildTx(t, 2, []string{genesisOut(0)}, []payment{pay(carol, 100)}, alice)
	_, err := l.ValidateAndApply(t1)
	require.NoError(t, err)
	_, _ = l.ValidateAndApply(t2)
	_, err = l.ImportDelta(&Delta{Origin: "node-b", Epoch: 9})
	require.NoError(t, err)

	snap := l.Snapshot()
	restored := NewLedger("node-a", identity.NewEd25519Verifier(), Options{})
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, l.Digest(), restored.Digest())
	assert.Equal(t, l.Epoch(), restored.Epoch())
	assert.Equal(t, uint64(9), restored.PeerEpoch("node-b"))
	assert.Equal(t, l.Balance(bob.PublicKey()), restored.Balance(bob.PublicKey()))

	_, status, ok := restored.GetTransaction(t2.ID)
	require.True(t, ok)
	assert.Equal(t, TxRejected, status)

	// restored ledger keeps working
	t3 := buildTx(t, 3, []string{t1.OutputIDs()[0]}, []payment{pay(carol, 60)}, bob)
	_, err = restored.ValidateAndApply(t3)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), restored.Balance(carol.PublicKey()).Uint64())
}

func TestRestoreRejectsInconsistentSnapshot(t *testing.T) {
	l := NewLedger("node-a", identity.NewEd25519Verifier(), Options{})
	tx := &transaction.Transaction{ID: "x", Inputs: []string{"missing"}}
	err := l.Restore(&Snapshot{Transactions: []TxEntry{{Tx: tx}}})
	assert.Error(t, err)
	assert.Error(t, l.Restore(nil))
}

func TestBalanceCacheFollowsEpoch(t *testing.T) {
	l := newTestLedger(t, "node-a")
	before := l.Balance(bob.PublicKey())
	before.Add(before, uint256.NewInt(1000))
	assert.Equal(t, uint64(50), l.Balance(bob.PublicKey()).Uint64())

	tx := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 100)}, alice)
	_, err := l.ValidateAndApply(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), l.Balance(bob.PublicKey()).Uint64())
}

func TestConcurrentImportAndQueries(t *testing.T) {
	parts := make([]payment, 10)
	for i := range parts {
		parts[i] = pay(alice, 10)
	}
	split := buildTx(t, 1, []string{genesisOut(0)}, parts, alice)
	txs := []*transaction.Transaction{split}
	for i, out := range split.OutputIDs() {
		txs = append(txs, buildTx(t, uint64(i+2), []string{out}, []payment{pay(bob, 10)}, alice))
	}

	sequential := newTestLedger(t, "node-s")
	_, err := sequential.ImportDelta(deltaOf("node-b", txs...))
	require.NoError(t, err)

	l := newTestLedger(t, "node-a")
	var (
		wg   sync.WaitGroup
		done = make(chan struct{})
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				bal := l.Balance(bob.PublicKey()).Uint64()
				assert.GreaterOrEqual(t, bal, uint64(50))
				assert.LessOrEqual(t, bal, uint64(150))
				stats := l.Statistics()
				assert.LessOrEqual(t, stats.AcceptedTx, len(txs))
			}
		}()
	}

	var importers sync.WaitGroup
	for _, tx := range txs {
		importers.Add(1)
		go func(tx *transaction.Transaction) {
			defer importers.Done()
			_, err := l.ImportDelta(deltaOf("node-b", tx))
			assert.NoError(t, err)
		}(tx)
	}
	importers.Wait()
	close(done)
	wg.Wait()

	assert.Equal(t, sequential.Digest(), l.Digest())
	assert.Equal(t, uint64(150), l.Balance(bob.PublicKey()).Uint64())
	stats := l.Statistics()
	assert.Equal(t, len(txs), stats.AcceptedTx)
	assert.Zero(t, stats.Orphans)
}

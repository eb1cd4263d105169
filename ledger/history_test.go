package ledger

import (
	"testing"

	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txIDs(entries []HistoryEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.TxID
	}
	return ids
}

func TestTransactionHistory(t *testing.T) {
	l := newTestLedger(t, "node-a")
	// alice pays bob 60, keeps 30 and leaves 10 as fee
	t1 := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 60), pay(alice, 30)}, alice)
	_, err := l.ValidateAndApply(t1)
	require.NoError(t, err)
	t2 := buildTx(t, 5, []string{t1.OutputIDs()[0]}, []payment{pay(carol, 60)}, bob)
	_, err = l.ValidateAndApply(t2)
	require.NoError(t, err)
	t3 := buildTx(t, 7, []string{genesisOut(0)}, []payment{pay(carol, 100)}, alice)
	_, err = l.ValidateAndApply(t3)
	require.ErrorIs(t, err, lerrors.ErrDoubleSpend)

	history := l.TransactionHistory(alice.PublicKey(), HistoryAll)
	require.Equal(t, []string{t1.ID, t3.ID}, txIDs(history))
	assert.Equal(t, DirectionSent, history[0].Direction)
	assert.Equal(t, "60", history[0].Amount)
	assert.Equal(t, "10", history[0].Fee)
	assert.Equal(t, TxAccepted.String(), history[0].Status)
	assert.Equal(t, TxRejected.String(), history[1].Status)
	assert.Equal(t, lerrors.CodeDoubleSpend, history[1].Reason)
	assert.Empty(t, l.TransactionHistory(alice.PublicKey(), HistoryReceived))

	bobAll := l.TransactionHistory(bob.PublicKey(), HistoryAll)
	assert.Equal(t, []string{t1.ID, t2.ID}, txIDs(bobAll))
	received := l.TransactionHistory(bob.PublicKey(), HistoryReceived)
	require.Len(t, received, 1)
	assert.Equal(t, t1.ID, received[0].TxID)
	assert.Equal(t, "60", received[0].Amount)
	assert.Empty(t, received[0].Fee)
	sent := l.TransactionHistory(bob.PublicKey(), HistorySent)
	require.Len(t, sent, 1)
	assert.Equal(t, t2.ID, sent[0].TxID)
	assert.Empty(t, sent[0].Fee)

	// carol sees the rejected payment too
	carolAll := l.TransactionHistory(carol.PublicKey(), HistoryAll)
	assert.Equal(t, []string{t2.ID, t3.ID}, txIDs(carolAll))
	assert.Equal(t, DirectionReceived, carolAll[1].Direction)

	assert.Empty(t, l.TransactionHistory("nobody", HistoryAll))
}

func TestParseHistoryFilter(t *testing.T) {
	for in, want := range map[string]HistoryFilter{
		"":         HistoryAll,
		"all":      HistoryAll,
		"sent":     HistorySent,
		"received": HistoryReceived,
	} {
		got, err := ParseHistoryFilter(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseHistoryFilter("incoming")
	assert.Error(t, err)
}

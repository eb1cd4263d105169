package ledger

import (
	"testing"

	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
	"github.com/stretchr/testify/require"
)

var (
	alice = identity.KeyPairFromSeed("alice")
	bob   = identity.KeyPairFromSeed("bob")
	carol = identity.KeyPairFromSeed("carol")
)

func genesisAllocs() []types.TxOutput {
	return []types.TxOutput{
		{Owner: alice.PublicKey(), Amount: 100},
		{Owner: bob.PublicKey(), Amount: 50},
	}
}

func genesisOut(i uint32) string {
	return types.OutputID(types.GenesisTxID, i)
}

func newTestLedger(t *testing.T, nodeID string) *Ledger {
	t.Helper()
	l := NewLedger(nodeID, identity.NewEd25519Verifier(), Options{})
	require.NoError(t, l.InitGenesis(genesisAllocs()))
	return l
}

type payment struct {
	to     *identity.KeyPair
	amount uint64
}

func pay(to *identity.KeyPair, amount uint64) payment {
	return payment{to: to, amount: amount}
}

func buildTx(t *testing.T, clock uint64, inputs []string, payments []payment, signers ...*identity.KeyPair) *transaction.Transaction {
	t.Helper()
	b := transaction.NewBuilder().Timestamp(1700000000000).Clock(clock).Spend(inputs...)
	for _, p := range payments {
		b.Pay(p.to.PublicKey(), p.amount)
	}
	tx, err := b.Build(signers...)
	require.NoError(t, err)
	return tx
}

func deltaOf(origin string, txs ...*transaction.Transaction) *Delta {
	return &Delta{Origin: origin, Transactions: txs}
}

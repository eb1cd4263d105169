package transaction

import (
	"math"
	"testing"

	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDCoversContent(t *testing.T) {
	alice := identity.KeyPairFromSeed("alice")
	tx, err := NewBuilder().Spend("in-1").Pay(alice.PublicKey(), 5).Clock(1).Nonce(7).Timestamp(100).Build()
	require.NoError(t, err)
	assert.Equal(t, tx.ComputeID(), tx.ID)

	changed := []func(*Transaction){
		func(t *Transaction) { t.Inputs = append(t.Inputs, "in-2") },
		func(t *Transaction) { t.Outputs[0].Amount = 6 },
		func(t *Transaction) { t.Timestamp++ },
		func(t *Transaction) { t.Nonce++ },
		func(t *Transaction) { t.LogicalClock++ },
	}
	for i, mutate := range changed {
		cp := tx.Clone()
		mutate(cp)
		assert.NotEqual(t, tx.ID, cp.ComputeID(), "mutation %d kept the id", i)
	}
}

func TestSignaturesAreNotPartOfID(t *testing.T) {
	alice := identity.KeyPairFromSeed("alice")
	tx, err := NewBuilder().Spend("in-1").Pay(alice.PublicKey(), 5).Build(alice)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 1)
	assert.Equal(t, tx.ID, tx.ComputeID())

	sig, err := tx.DecodeSignature(0)
	require.NoError(t, err)
	assert.True(t, identity.NewEd25519Verifier().Verify(alice.PublicKey(), tx.SigningBytes(), sig))
}

func TestBuilderRejectsEmpty(t *testing.T) {
	_, err := NewBuilder().Pay("x", 1).Build()
	assert.Error(t, err)
	_, err = NewBuilder().Spend("a").Build()
	assert.Error(t, err)
	_, err = NewBuilder().Spend("a").Pay("x", 0).Build()
	assert.Error(t, err)
}

func TestOutputSumOverflow(t *testing.T) {
	tx := &Transaction{Outputs: []types.TxOutput{{Owner: "a", Amount: math.MaxUint64}, {Owner: "b", Amount: 1}}}
	_, overflow := tx.OutputSum()
	assert.True(t, overflow)

	tx.Outputs[1].Amount = 0
	sum, overflow := tx.OutputSum()
	assert.False(t, overflow)
	assert.Equal(t, uint64(math.MaxUint64), sum.Uint64())
}

func TestCreatedOutputs(t *testing.T) {
	tx, err := NewBuilder().Spend("in").Pay("a", 3).Pay("b", 4).Build()
	require.NoError(t, err)

	outs := tx.CreatedOutputs()
	require.Len(t, outs, 2)
	assert.Equal(t, tx.OutputIDs(), []string{outs[0].ID, outs[1].ID})
	assert.Equal(t, types.OutputID(tx.ID, 1), outs[1].ID)
	assert.Equal(t, types.StatusUnspent, outs[0].State.Status)
	assert.Equal(t, tx.ID, outs[1].CreatedBy)
}

func TestParseRoundTrip(t *testing.T) {
	alice := identity.KeyPairFromSeed("alice")
	tx, err := NewBuilder().Spend("in").Pay(alice.PublicKey(), 9).Clock(3).Build(alice)
	require.NoError(t, err)

	parsed, err := Parse(tx.Bytes())
	require.NoError(t, err)
	assert.Equal(t, tx, parsed)
}

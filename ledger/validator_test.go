package ledger

import (
	"testing"

	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateInputIsMalformed(t *testing.T) {
	l := newTestLedger(t, "node-a")
	dup := buildTx(t, 1, []string{genesisOut(0), genesisOut(0)}, []payment{pay(bob, 200)}, alice)

	_, err := l.ValidateAndApply(dup)
	assert.ErrorIs(t, err, lerrors.ErrMalformed)
	assert.Equal(t, uint64(100), l.Balance(alice.PublicKey()).Uint64())

	// the same transaction arriving from a peer is discarded too
	summary, err := newTestLedger(t, "node-b").ImportDelta(deltaOf("node-a", dup))
	require.NoError(t, err)
	require.Len(t, summary.Discarded, 1)
	assert.Equal(t, lerrors.CodeMalformed, summary.Discarded[0].Reason)
}

func TestValidationStopsAtFirstFailingCheck(t *testing.T) {
	l := newTestLedger(t, "node-a")
	missing := types.OutputID("missing", 0)

	// existence is checked before signatures
	unknownForged := buildTx(t, 1, []string{genesisOut(0), missing}, []payment{pay(carol, 10)}, carol)
	_, err := l.ValidateAndApply(unknownForged)
	assert.ErrorIs(t, err, lerrors.ErrUnknownInput)

	// value is checked before signatures
	excessForged := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(carol, 101)}, carol)
	_, err = l.ValidateAndApply(excessForged)
	assert.ErrorIs(t, err, lerrors.ErrMalformed)

	t1 := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 100)}, alice)
	t2 := buildTx(t, 2, []string{genesisOut(0)}, []payment{pay(carol, 100)}, alice)
	_, err = l.ValidateAndApply(t1)
	require.NoError(t, err)
	_, err = l.ValidateAndApply(t2)
	require.ErrorIs(t, err, lerrors.ErrDoubleSpend)
	in, _ := l.GetOutput(genesisOut(0))
	require.Equal(t, types.StatusSpent, in.State.Status)

	// signatures are checked before availability
	spentForged := buildTx(t, 3, []string{genesisOut(0)}, []payment{pay(carol, 100)}, carol)
	_, err = l.ValidateAndApply(spentForged)
	assert.ErrorIs(t, err, lerrors.ErrBadSignature)

	spentSigned := buildTx(t, 3, []string{genesisOut(0)}, []payment{pay(carol, 100)}, alice)
	_, err = l.ValidateAndApply(spentSigned)
	assert.ErrorIs(t, err, lerrors.ErrDoubleSpend)
}

func TestMergeModeSkipsAvailability(t *testing.T) {
	l := newTestLedger(t, "node-a")
	t1 := buildTx(t, 1, []string{genesisOut(0)}, []payment{pay(bob, 100)}, alice)
	t2 := buildTx(t, 2, []string{genesisOut(0)}, []payment{pay(carol, 100)}, alice)
	_, err := l.ValidateAndApply(t1)
	require.NoError(t, err)
	_, err = l.ValidateAndApply(t2)
	require.Error(t, err)

	late := buildTx(t, 3, []string{genesisOut(0)}, []payment{pay(carol, 100)}, alice)
	assert.NoError(t, l.validator.Validate(late, l.registry, ModeMerge))
	assert.ErrorIs(t, l.validator.Validate(late, l.registry, ModeLocal), lerrors.ErrDoubleSpend)
}

package codec

import (
	"bytes"
	"testing"

	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack"
)

func sampleDelta(t *testing.T) *ledger.Delta {
	t.Helper()
	alice := identity.KeyPairFromSeed("alice")
	bob := identity.KeyPairFromSeed("bob")
	in := types.NewOutput(types.GenesisTxID, 0, types.TxOutput{Owner: alice.PublicKey(), Amount: 10})
	tx, err := transaction.NewBuilder().Clock(3).Spend(in.ID).Pay(bob.PublicKey(), 10).Build(alice)
	require.NoError(t, err)
	in.State = types.Pending(tx.ID)
	return &ledger.Delta{
		Origin:       "node-a",
		BaseEpoch:    2,
		Epoch:        9,
		Outputs:      []*types.Output{in},
		Transactions: []*transaction.Transaction{tx},
	}
}

func TestDeltaAnnounceSurvivesTheWire(t *testing.T) {
	d := sampleDelta(t)
	env, err := NewDeltaAnnounce("node-a", d)
	require.NoError(t, err)
	data, err := env.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, MsgDeltaAnnounce, got.Type)
	assert.Equal(t, "node-a", got.Origin)

	decoded, err := got.Delta()
	require.NoError(t, err)
	assert.Equal(t, d.Epoch, decoded.Epoch)
	require.Len(t, decoded.Transactions, 1)
	assert.Equal(t, d.Transactions[0].ID, decoded.Transactions[0].ID)
	assert.Equal(t, d.Transactions[0].ComputeID(), decoded.Transactions[0].ComputeID())
	assert.Equal(t, d.Outputs[0].State, decoded.Outputs[0].State)

	_, err = got.SyncRequest()
	assert.Error(t, err)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("not msgpack"))
	assert.Error(t, err)

	data, err := msgpack.Marshal(&Envelope{Version: 99, Type: MsgSyncRequest})
	require.NoError(t, err)
	_, err = Unmarshal(data)
	assert.Error(t, err)

	data, err = msgpack.Marshal(&Envelope{Version: WireVersion, Type: 42})
	require.NoError(t, err)
	_, err = Unmarshal(data)
	assert.Error(t, err)
}

func TestStreamFraming(t *testing.T) {
	var buf bytes.Buffer
	req, err := NewSyncRequest("node-b", 5)
	require.NoError(t, err)
	resp, err := NewSyncResponse("node-a", sampleDelta(t))
	require.NoError(t, err)
	require.NoError(t, WriteEnvelope(&buf, req))
	require.NoError(t, WriteEnvelope(&buf, resp))

	first, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	sr, err := first.SyncRequest()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sr.Since)

	second, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	d, err := second.Delta()
	require.NoError(t, err)
	assert.Equal(t, "node-a", d.Origin)
}

func TestSeenCache(t *testing.T) {
	c := NewSeenCache(2)
	assert.True(t, c.Add(MessageID([]byte("a"))))
	assert.False(t, c.Add(MessageID([]byte("a"))))
	assert.True(t, c.Add(MessageID([]byte("b"))))
	assert.True(t, c.Add(MessageID([]byte("c"))))
	assert.Equal(t, 2, c.Len())
	// "a" was evicted
	assert.True(t, c.Add(MessageID([]byte("a"))))
}

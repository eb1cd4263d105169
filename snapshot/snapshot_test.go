package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/jsonx"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = identity.KeyPairFromSeed("alice")
	bob   = identity.KeyPairFromSeed("bob")
)

func newLedger(t *testing.T, nodeID string) *ledger.Ledger {
	t.Helper()
	l := ledger.NewLedger(nodeID, identity.NewEd25519Verifier(), ledger.Options{})
	require.NoError(t, l.InitGenesis([]types.TxOutput{{Owner: alice.PublicKey(), Amount: 100}}))
	return l
}

func pay(t *testing.T, l *ledger.Ledger, amount uint64) {
	t.Helper()
	outs, total, err := l.SelectOutputs(alice.PublicKey(), amount)
	require.NoError(t, err)
	b := transaction.NewBuilder().Clock(l.NextLogicalClock(alice.PublicKey())).
		Pay(bob.PublicKey(), amount).
		Change(alice.PublicKey(), total.Uint64()-amount)
	for _, o := range outs {
		b.Spend(o.ID)
	}
	tx, err := b.Build(alice)
	require.NoError(t, err)
	_, err = l.ValidateAndApply(tx)
	require.NoError(t, err)
}

func TestDeltaFileCarriesStateBetweenOfflineNodes(t *testing.T) {
	dir := t.TempDir()
	src := newLedger(t, "node-a")
	pay(t, src, 30)
	pay(t, src, 20)

	path, err := WriteDeltaFile(dir, src.ExportDelta(0), src.Digest())
	require.NoError(t, err)
	assert.Equal(t, FileName("node-a", src.Epoch()), filepath.Base(path))

	f, err := ReadDeltaFile(path)
	require.NoError(t, err)
	assert.Equal(t, "node-a", f.Meta.Origin)
	assert.Equal(t, ledger.DigestHex(src.Digest()), f.Meta.Digest)

	dst := newLedger(t, "node-b")
	_, err = dst.ImportDelta(f.Delta)
	require.NoError(t, err)
	assert.Equal(t, f.Meta.Digest, ledger.DigestHex(dst.Digest()))
	assert.Equal(t, uint64(50), dst.Balance(bob.PublicKey()).Uint64())
}

func TestReadDeltaFileDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	src := newLedger(t, "node-a")
	pay(t, src, 30)

	path, err := WriteDeltaFile(dir, src.ExportDelta(0), src.Digest())
	require.NoError(t, err)

	f, err := ReadDeltaFile(path)
	require.NoError(t, err)
	f.Delta.Transactions[0].Outputs[0].Amount = 31
	data, err := jsonx.MarshalIndent(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	_, err = ReadDeltaFile(path)
	assert.ErrorContains(t, err, "checksum")

	f.Delta.Transactions[0].Outputs[0].Amount = 30
	f.Meta.Epoch++
	data, err = jsonx.MarshalIndent(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	_, err = ReadDeltaFile(path)
	assert.ErrorContains(t, err, "metadata")

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
	_, err = ReadDeltaFile(path)
	assert.Error(t, err)

	_, err = WriteDeltaFile(dir, nil, [32]byte{})
	assert.Error(t, err)
}

func TestCleanupOldDeltaFiles(t *testing.T) {
	dir := t.TempDir()
	src := newLedger(t, "node-a")
	other := newLedger(t, "node-b")

	first, err := WriteDeltaFile(dir, src.ExportDelta(0), src.Digest())
	require.NoError(t, err)
	pay(t, src, 10)
	latest, err := WriteDeltaFile(dir, src.ExportDelta(0), src.Digest())
	require.NoError(t, err)
	foreign, err := WriteDeltaFile(dir, other.ExportDelta(0), other.Digest())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	paths, err := ListDeltaFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{first, latest, foreign}, paths)

	require.NoError(t, CleanupOldDeltaFiles(dir, "node-a", latest))
	paths, err = ListDeltaFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{latest, foreign}, paths)
}

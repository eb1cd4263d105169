package store

import (
	"path/filepath"
	"testing"

	"github.com/meshpay/meshledger/db"
	"github.com/meshpay/meshledger/identity"
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

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.NewLedger("node-a", identity.NewEd25519Verifier(), ledger.Options{})
	require.NoError(t, l.InitGenesis([]types.TxOutput{{Owner: alice.PublicKey(), Amount: 100}}))
	return l
}

func transfer(t *testing.T, l *ledger.Ledger, from, to *identity.KeyPair, amount uint64) *transaction.Transaction {
	t.Helper()
	outs, total, err := l.SelectOutputs(from.PublicKey(), amount)
	require.NoError(t, err)
	b := transaction.NewBuilder().Clock(l.NextLogicalClock(from.PublicKey())).Pay(to.PublicKey(), amount).Change(from.PublicKey(), total.Uint64()-amount)
	for _, o := range outs {
		b.Spend(o.ID)
	}
	tx, err := b.Build(from)
	require.NoError(t, err)
	_, err = l.ValidateAndApply(tx)
	require.NoError(t, err)
	return tx
}

func newMemStore(t *testing.T) (*GenericLedgerStore, db.IterableProvider) {
	t.Helper()
	p, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	s, err := NewGenericLedgerStore(p)
	require.NoError(t, err)
	return s, p
}

func TestLoadEmptyStore(t *testing.T) {
	s, _ := newMemStore(t)
	snap, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCommitAndLoad(t *testing.T) {
	s, _ := newMemStore(t)
	l := newLedger(t)
	transfer(t, l, alice, bob, 30)
	_, err := l.ImportDelta(&ledger.Delta{Origin: "node-b", Epoch: 4})
	require.NoError(t, err)
	require.NoError(t, s.Commit(l.Snapshot()))

	transfer(t, l, bob, alice, 10)
	require.NoError(t, s.Commit(l.Snapshot()))

	snap, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, snap)

	restored := ledger.NewLedger("node-a", identity.NewEd25519Verifier(), ledger.Options{})
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, l.Digest(), restored.Digest())
	assert.Equal(t, l.Epoch(), restored.Epoch())
	assert.Equal(t, uint64(4), restored.PeerEpoch("node-b"))
	assert.Equal(t, uint64(20), restored.Balance(bob.PublicKey()).Uint64())
	assert.Equal(t, uint64(80), restored.Balance(alice.PublicKey()).Uint64())
}

func TestCommitReplacesOrphans(t *testing.T) {
	s, _ := newMemStore(t)
	l := newLedger(t)

	orphan, err := transaction.NewBuilder().Spend(types.OutputID("unknown", 0)).Pay(bob.PublicKey(), 1).Build(alice)
	require.NoError(t, err)
	_, err = l.ImportDelta(&ledger.Delta{Origin: "node-b", Transactions: []*transaction.Transaction{orphan}})
	require.NoError(t, err)
	require.NoError(t, s.Commit(l.Snapshot()))

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Orphans, 1)
	assert.Equal(t, orphan.ID, snap.Orphans[0].ID)

	fresh := newLedger(t)
	require.NoError(t, s.Commit(fresh.Snapshot()))
	snap, err = s.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Orphans)
}

func TestFactoryCreatesStores(t *testing.T) {
	_, _, err := CreateStore(&StoreConfig{Type: "rocksdb", Directory: "x"})
	assert.Error(t, err)
	_, _, err = CreateStore(&StoreConfig{Type: LevelDBStoreType})
	assert.Error(t, err)
	_, _, err = CreateStore(nil)
	assert.Error(t, err)

	ls, meta, err := CreateStore(&StoreConfig{Type: LevelDBStoreType, Directory: filepath.Join(t.TempDir(), "ledger")})
	require.NoError(t, err)
	defer ls.MustClose()

	l := newLedger(t)
	require.NoError(t, ls.Commit(l.Snapshot()))
	require.NoError(t, meta.SetDigest(l.Epoch(), l.Digest()))

	epoch, digest, ok, err := meta.LatestDigest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, l.Epoch(), epoch)
	assert.Equal(t, l.Digest(), digest)

	_, ok, err = meta.GetDigest(epoch + 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

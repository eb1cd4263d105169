package store

import (
	"encoding/binary"
	"sync"

	"github.com/meshpay/meshledger/db"
	"github.com/meshpay/meshledger/jsonx"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
	"github.com/pkg/errors"
)

type LedgerStore interface {
	// Load returns the persisted state, or nil when the store is empty.
	Load() (*ledger.Snapshot, error)
	// Commit persists s atomically. Only entries changed since the last
	// commit are rewritten.
	Commit(s *ledger.Snapshot) error
	MustClose()
}

type GenericLedgerStore struct {
	mu         sync.Mutex
	dbProvider db.IterableProvider
	txManager  *db.DBTxManager
	committed  uint64
}

func NewGenericLedgerStore(dbProvider db.IterableProvider) (*GenericLedgerStore, error) {
	if dbProvider == nil {
		return nil, errors.New("provider cannot be nil")
	}

	return &GenericLedgerStore{
		dbProvider: dbProvider,
		txManager:  db.NewDBTxManager(dbProvider),
	}, nil
}

func (ls *GenericLedgerStore) Load() (*ledger.Snapshot, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	raw, err := ls.dbProvider.Get([]byte(MetaKeyEpoch))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read ledger epoch")
	}
	if raw == nil {
		return nil, nil
	}
	if len(raw) != 8 {
		return nil, errors.Errorf("invalid epoch record length %d", len(raw))
	}

	s := &ledger.Snapshot{
		Epoch:      binary.BigEndian.Uint64(raw),
		PeerEpochs: make(map[string]uint64),
	}

	var decodeErr error
	iterErr := ls.dbProvider.IteratePrefix([]byte(PrefixOutput), func(key, value []byte) bool {
		var out types.Output
		if decodeErr = jsonx.Unmarshal(value, &out); decodeErr != nil {
			decodeErr = errors.Wrapf(decodeErr, "failed to unmarshal output %s", key)
			return false
		}
		s.Outputs = append(s.Outputs, &out)
		return true
	})
	if err := firstErr(iterErr, decodeErr); err != nil {
		return nil, err
	}

	iterErr = ls.dbProvider.IteratePrefix([]byte(PrefixTx), func(key, value []byte) bool {
		var entry ledger.TxEntry
		if decodeErr = jsonx.Unmarshal(value, &entry); decodeErr != nil {
			decodeErr = errors.Wrapf(decodeErr, "failed to unmarshal transaction %s", key)
			return false
		}
		s.Transactions = append(s.Transactions, entry)
		return true
	})
	if err := firstErr(iterErr, decodeErr); err != nil {
		return nil, err
	}

	iterErr = ls.dbProvider.IteratePrefix([]byte(PrefixOrphan), func(key, value []byte) bool {
		var tx transaction.Transaction
		if decodeErr = jsonx.Unmarshal(value, &tx); decodeErr != nil {
			decodeErr = errors.Wrapf(decodeErr, "failed to unmarshal orphan %s", key)
			return false
		}
		s.Orphans = append(s.Orphans, &tx)
		return true
	})
	if err := firstErr(iterErr, decodeErr); err != nil {
		return nil, err
	}

	iterErr = ls.dbProvider.IteratePrefix([]byte(PrefixBlacklist), func(key, _ []byte) bool {
		s.Blacklist = append(s.Blacklist, string(key[len(PrefixBlacklist):]))
		return true
	})
	if iterErr != nil {
		return nil, errors.Wrap(iterErr, "failed to read blacklist")
	}

	iterErr = ls.dbProvider.IteratePrefix([]byte(PrefixPeerEpoch), func(key, value []byte) bool {
		if len(value) != 8 {
			decodeErr = errors.Errorf("invalid peer epoch record %s", key)
			return false
		}
		s.PeerEpochs[string(key[len(PrefixPeerEpoch):])] = binary.BigEndian.Uint64(value)
		return true
	})
	if err := firstErr(iterErr, decodeErr); err != nil {
		return nil, err
	}

	ls.committed = s.Epoch
	logx.Info("STORE", "Loaded ledger at epoch ", s.Epoch, ": ", len(s.Outputs), " outputs, ", len(s.Transactions), " transactions")
	return s, nil
}

func (ls *GenericLedgerStore) Commit(s *ledger.Snapshot) error {
	if s == nil {
		return errors.New("snapshot cannot be nil")
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	since := ls.committed
	if s.Epoch < since {
		since = 0
	}

	var staleOrphans [][]byte
	err := ls.dbProvider.IteratePrefix([]byte(PrefixOrphan), func(key, _ []byte) bool {
		staleOrphans = append(staleOrphans, append([]byte(nil), key...))
		return true
	})
	if err != nil {
		return errors.Wrap(err, "failed to scan orphans")
	}

	written := 0
	err = ls.txManager.WithBatch(func(batch db.DatabaseBatch) error {
		for _, out := range s.Outputs {
			if out.Epoch <= since {
				continue
			}
			data, err := jsonx.Marshal(out)
			if err != nil {
				return errors.Wrapf(err, "failed to marshal output %s", out.ID)
			}
			batch.Put(ls.key(PrefixOutput, out.ID), data)
			written++
		}
		for _, entry := range s.Transactions {
			if entry.Epoch <= since {
				continue
			}
			data, err := jsonx.Marshal(entry)
			if err != nil {
				return errors.Wrapf(err, "failed to marshal transaction %s", entry.Tx.ID)
			}
			batch.Put(ls.key(PrefixTx, entry.Tx.ID), data)
			written++
		}

		for _, key := range staleOrphans {
			batch.Delete(key)
		}
		for _, tx := range s.Orphans {
			data, err := jsonx.Marshal(tx)
			if err != nil {
				return errors.Wrapf(err, "failed to marshal orphan %s", tx.ID)
			}
			batch.Put(ls.key(PrefixOrphan, tx.ID), data)
		}
		for _, fp := range s.Blacklist {
			batch.Put(ls.key(PrefixBlacklist, fp), nil)
		}
		for origin, epoch := range s.PeerEpochs {
			batch.Put(ls.key(PrefixPeerEpoch, origin), encodeUint64(epoch))
		}
		batch.Put([]byte(MetaKeyEpoch), encodeUint64(s.Epoch))
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to commit ledger at epoch %d", s.Epoch)
	}

	ls.committed = s.Epoch
	logx.Debug("STORE", "Committed epoch ", s.Epoch, " (", written, " records)")
	return nil
}

// MustClose closes the underlying provider and panics on failure
func (ls *GenericLedgerStore) MustClose() {
	if err := ls.dbProvider.Close(); err != nil {
		logx.Error("STORE", "Failed to close provider: ", err)
		panic(err)
	}
}

func (ls *GenericLedgerStore) key(prefix, id string) []byte {
	return []byte(prefix + id)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

package db

import (
	"github.com/pkg/errors"
)

// DBTxManager runs a group of writes as one atomic batch on the shared
// DatabaseProvider.
type DBTxManager struct {
	provider DatabaseProvider
}

// NewDBTxManager creates a new transaction manager with the given provider
func NewDBTxManager(provider DatabaseProvider) *DBTxManager {
	return &DBTxManager{provider: provider}
}

// WithBatch executes fn within a batch context.
// If fn returns nil, the batch is committed; otherwise, it's discarded.
func (tm *DBTxManager) WithBatch(fn func(batch DatabaseBatch) error) error {
	batch := tm.provider.Batch()
	defer batch.Close()

	if err := fn(batch); err != nil {
		batch.Reset()
		return errors.Wrap(err, "transaction failed")
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "commit failed")
	}

	return nil
}

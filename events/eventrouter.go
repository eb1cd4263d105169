package events

import (
	"fmt"
	"sync"

	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/transaction"
)

// EventRouter turns ledger results into events on the bus
type EventRouter struct {
	eventBus *EventBus
	mu       sync.RWMutex
}

// NewEventRouter creates a new EventRouter instance
func NewEventRouter(eventBus *EventBus) *EventRouter {
	return &EventRouter{
		eventBus: eventBus,
	}
}

// PublishApplyResult publishes the outcome of a locally submitted
// transaction, plus every other status the submission flipped.
func (er *EventRouter) PublishApplyResult(tx *transaction.Transaction, res ledger.ApplyResult, err error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	if res.Duplicate {
		return
	}
	if err != nil {
		er.eventBus.Publish(NewTxRejected(res.TxID, lerrors.CodeOf(err), err.Error(), SourceLocal))
	}
	er.publishChanges(res.Changes, tx, SourceLocal)
	if res.ResolvedConflicts > 0 {
		er.eventBus.Publish(NewConflictResolved(res.ResolvedConflicts, 0))
	}
}

// PublishMergeSummary publishes what an imported delta changed
func (er *EventRouter) PublishMergeSummary(summary ledger.MergeSummary, epoch uint64) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	for _, d := range summary.Discarded {
		er.eventBus.Publish(NewTxRejected(d.TxID, d.Reason, d.Detail, SourceGossip))
	}
	er.publishChanges(summary.Changes, nil, SourceGossip)
	if summary.ResolvedConflictCount > 0 {
		logx.Info("EVENTROUTER", fmt.Sprintf("Merge resolved %d conflicts at epoch %d", summary.ResolvedConflictCount, epoch))
		er.eventBus.Publish(NewConflictResolved(summary.ResolvedConflictCount, epoch))
	}
}

func (er *EventRouter) publishChanges(changes []ledger.StatusChange, tx *transaction.Transaction, source Source) {
	for _, c := range changes {
		switch {
		case c.From == ledger.TxUnknown && c.To == ledger.TxAccepted:
			var payload *transaction.Transaction
			if tx != nil && tx.ID == c.TxID {
				payload = tx
			}
			er.eventBus.Publish(NewTxAccepted(c.TxID, payload, source))
		case c.From == ledger.TxUnknown && c.To == ledger.TxRejected:
			if tx != nil && tx.ID == c.TxID {
				// already published from the returned error
				continue
			}
			er.eventBus.Publish(NewTxRejected(c.TxID, c.Reason, c.Detail, source))
		default:
			er.eventBus.Publish(NewTxStatusChanged(c.TxID, c.From.String(), c.To.String()))
		}
	}
}

// PublishTransactionEvent publishes a transaction-specific event
func (er *EventRouter) PublishTransactionEvent(event LedgerEvent) {
	er.eventBus.Publish(event)
}

// Subscribe subscribes to the given event types, all of them when none
// is named
func (er *EventRouter) Subscribe(types ...EventType) (SubscriberID, chan LedgerEvent) {
	return er.eventBus.Subscribe(types...)
}

// Unsubscribe removes a subscription
func (er *EventRouter) Unsubscribe(id SubscriberID) bool {
	return er.eventBus.Unsubscribe(id)
}

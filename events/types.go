package events

import (
	"time"

	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/transaction"
)

// EventType is an enum-like string type for ledger events
type EventType string

const (
	EventTxAccepted       EventType = "TxAccepted"
	EventTxRejected       EventType = "TxRejected"
	EventTxStatusChanged  EventType = "TxStatusChanged"
	EventConflictResolved EventType = "ConflictResolved"
)

// Source tells where a transaction entered the node
type Source string

const (
	SourceLocal  Source = "local"
	SourceGossip Source = "gossip"
)

// LedgerEvent represents anything observable that happens to the ledger
type LedgerEvent interface {
	Type() EventType
	Timestamp() time.Time
	TxID() string
}

// TxAccepted event when a transaction is added and accepted
type TxAccepted struct {
	txID      string
	tx        *transaction.Transaction
	source    Source
	timestamp time.Time
}

func NewTxAccepted(txID string, tx *transaction.Transaction, source Source) *TxAccepted {
	return &TxAccepted{
		txID:      txID,
		tx:        tx,
		source:    source,
		timestamp: time.Now(),
	}
}

func (e *TxAccepted) Type() EventType {
	return EventTxAccepted
}

func (e *TxAccepted) Timestamp() time.Time {
	return e.timestamp
}

func (e *TxAccepted) TxID() string {
	return e.txID
}

// Transaction may be nil when the acceptance came from a merge
func (e *TxAccepted) Transaction() *transaction.Transaction {
	return e.tx
}

func (e *TxAccepted) Source() Source {
	return e.source
}

// TxRejected event when a transaction is refused or loses a conflict
type TxRejected struct {
	txID      string
	code      lerrors.RejectCode
	detail    string
	source    Source
	timestamp time.Time
}

func NewTxRejected(txID string, code lerrors.RejectCode, detail string, source Source) *TxRejected {
	return &TxRejected{
		txID:      txID,
		code:      code,
		detail:    detail,
		source:    source,
		timestamp: time.Now(),
	}
}

func (e *TxRejected) Type() EventType {
	return EventTxRejected
}

func (e *TxRejected) Timestamp() time.Time {
	return e.timestamp
}

func (e *TxRejected) TxID() string {
	return e.txID
}

func (e *TxRejected) Code() lerrors.RejectCode {
	return e.code
}

func (e *TxRejected) Detail() string {
	return e.detail
}

func (e *TxRejected) Source() Source {
	return e.source
}

// TxStatusChanged event when new information flips a settled transaction
type TxStatusChanged struct {
	txID      string
	from      string
	to        string
	timestamp time.Time
}

func NewTxStatusChanged(txID, from, to string) *TxStatusChanged {
	return &TxStatusChanged{
		txID:      txID,
		from:      from,
		to:        to,
		timestamp: time.Now(),
	}
}

func (e *TxStatusChanged) Type() EventType {
	return EventTxStatusChanged
}

func (e *TxStatusChanged) Timestamp() time.Time {
	return e.timestamp
}

func (e *TxStatusChanged) TxID() string {
	return e.txID
}

func (e *TxStatusChanged) From() string {
	return e.from
}

func (e *TxStatusChanged) To() string {
	return e.to
}

// ConflictResolved event when a resolve pass settles outputs as Spent
type ConflictResolved struct {
	count     int
	epoch     uint64
	timestamp time.Time
}

func NewConflictResolved(count int, epoch uint64) *ConflictResolved {
	return &ConflictResolved{
		count:     count,
		epoch:     epoch,
		timestamp: time.Now(),
	}
}

func (e *ConflictResolved) Type() EventType {
	return EventConflictResolved
}

func (e *ConflictResolved) Timestamp() time.Time {
	return e.timestamp
}

// TxID is empty, the event concerns the registry as a whole
func (e *ConflictResolved) TxID() string {
	return ""
}

func (e *ConflictResolved) Count() int {
	return e.count
}

func (e *ConflictResolved) Epoch() uint64 {
	return e.epoch
}

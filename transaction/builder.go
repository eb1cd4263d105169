package transaction

import (
	"fmt"
	"time"

	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/types"
)

// Builder assembles and signs a transaction.
type Builder struct {
	tx  Transaction
	err error
}

func NewBuilder() *Builder {
	return &Builder{tx: Transaction{Timestamp: uint64(time.Now().UnixMilli())}}
}

// Spend adds inputs in order.
func (b *Builder) Spend(outputIDs ...string) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, outputIDs...)
	return b
}

// Pay adds an output.
func (b *Builder) Pay(owner string, amount uint64) *Builder {
	if amount == 0 {
		b.err = fmt.Errorf("zero amount payment to %s", owner)
		return b
	}
	b.tx.Outputs = append(b.tx.Outputs, types.TxOutput{Owner: owner, Amount: amount})
	return b
}

// Change returns the remainder to owner; a zero remainder adds nothing.
func (b *Builder) Change(owner string, amount uint64) *Builder {
	if amount == 0 {
		return b
	}
	return b.Pay(owner, amount)
}

func (b *Builder) Clock(clock uint64) *Builder {
	b.tx.LogicalClock = clock
	return b
}

func (b *Builder) Nonce(nonce uint64) *Builder {
	b.tx.Nonce = nonce
	return b
}

func (b *Builder) Timestamp(ts uint64) *Builder {
	b.tx.Timestamp = ts
	return b
}

// Build seals the transaction and signs it with signers, which must be
// given in the order the input owners first appear.
func (b *Builder) Build(signers ...*identity.KeyPair) (*Transaction, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.tx.Inputs) == 0 {
		return nil, fmt.Errorf("transaction has no inputs")
	}
	if len(b.tx.Outputs) == 0 {
		return nil, fmt.Errorf("transaction has no outputs")
	}
	tx := b.tx.Clone()
	tx.Signatures = nil
	tx.Seal()
	for _, s := range signers {
		tx.AddSignature(s.Sign(tx.SigningBytes()))
	}
	return tx, nil
}

package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/meshpay/meshledger/common"
	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
)

// Mode selects how much of the validation pipeline runs.
type Mode uint8

const (
	// ModeLocal runs every check, including input availability. Used for
	// transactions originated on this node.
	ModeLocal Mode = iota
	// ModeMerge skips availability; spends of already claimed outputs are
	// settled by the conflict resolver instead.
	ModeMerge
)

type Validator struct {
	verifier identity.Verifier
}

func NewValidator(verifier identity.Verifier) *Validator {
	return &Validator{verifier: verifier}
}

// Validate returns nil when tx is acceptable against r, otherwise a
// *errors.RejectError. It never mutates r.
func (v *Validator) Validate(tx *transaction.Transaction, r *Registry, mode Mode) error {
	if err := checkStructure(tx); err != nil {
		return err
	}

	inputs, err := resolveInputs(tx, r)
	if err != nil {
		return err
	}
	if err := checkValue(tx, inputs); err != nil {
		return err
	}

	if err := v.checkSignatures(tx, inputs); err != nil {
		return err
	}

	if mode == ModeLocal {
		return checkAvailability(inputs)
	}
	return nil
}

func checkStructure(tx *transaction.Transaction) error {
	if tx == nil {
		return lerrors.NewError(lerrors.CodeMalformed, "nil transaction")
	}
	if len(tx.Inputs) == 0 {
		return lerrors.NewError(lerrors.CodeMalformed, lerrors.ErrMsgEmptyInputs)
	}
	if len(tx.Inputs) > transaction.MaxInputs {
		return lerrors.NewError(lerrors.CodeMalformed, fmt.Sprintf("too many inputs: %d > %d", len(tx.Inputs), transaction.MaxInputs))
	}
	if len(tx.Outputs) == 0 {
		return lerrors.NewError(lerrors.CodeMalformed, "Transaction has no outputs")
	}
	if len(tx.Outputs) > transaction.MaxOutputs {
		return lerrors.NewError(lerrors.CodeMalformed, fmt.Sprintf("too many outputs: %d > %d", len(tx.Outputs), transaction.MaxOutputs))
	}

	seen := make(map[string]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, dup := seen[in]; dup {
			return lerrors.NewError(lerrors.CodeMalformed, fmt.Sprintf(lerrors.ErrMsgDuplicateInput, in))
		}
		seen[in] = struct{}{}
	}

	if tx.ID != tx.ComputeID() {
		return lerrors.NewError(lerrors.CodeMalformed, lerrors.ErrMsgIDMismatch)
	}

	for i, o := range tx.Outputs {
		if o.Amount == 0 {
			return lerrors.NewError(lerrors.CodeMalformed, fmt.Sprintf(lerrors.ErrMsgZeroOutput, i))
		}
		if !common.IsValidPubKey(o.Owner) {
			return lerrors.NewError(lerrors.CodeMalformed, fmt.Sprintf(lerrors.ErrMsgInvalidOwner, i))
		}
	}
	if _, overflow := tx.OutputSum(); overflow {
		return lerrors.NewError(lerrors.CodeMalformed, lerrors.ErrMsgAmountOverflow)
	}
	return nil
}

func resolveInputs(tx *transaction.Transaction, r *Registry) ([]*types.Output, error) {
	inputs := make([]*types.Output, len(tx.Inputs))
	for i, in := range tx.Inputs {
		out := r.Get(in)
		if out == nil {
			return nil, lerrors.NewError(lerrors.CodeUnknownInput, fmt.Sprintf(lerrors.ErrMsgUnknownInput, in))
		}
		inputs[i] = out
	}
	return inputs, nil
}

func checkValue(tx *transaction.Transaction, inputs []*types.Output) error {
	in := uint256.NewInt(0)
	for _, o := range inputs {
		// at most MaxInputs uint64 values, cannot overflow 256 bits
		in.Add(in, uint256.NewInt(o.Amount))
	}
	out, _ := tx.OutputSum()
	if out.Gt(in) {
		return lerrors.NewError(lerrors.CodeMalformed, fmt.Sprintf(lerrors.ErrMsgOutputsExceed, out.Dec(), in.Dec()))
	}
	return nil
}

// ownersOf lists the distinct owners of inputs in order of first appearance.
func ownersOf(inputs []*types.Output) []string {
	seen := make(map[string]struct{}, len(inputs))
	owners := make([]string, 0, len(inputs))
	for _, o := range inputs {
		if _, ok := seen[o.Owner]; ok {
			continue
		}
		seen[o.Owner] = struct{}{}
		owners = append(owners, o.Owner)
	}
	return owners
}

func (v *Validator) checkSignatures(tx *transaction.Transaction, inputs []*types.Output) error {
	owners := ownersOf(inputs)
	if len(tx.Signatures) < len(owners) {
		return lerrors.NewError(lerrors.CodeBadSignature, fmt.Sprintf(lerrors.ErrMsgMissingSignature, owners[len(tx.Signatures)]))
	}
	if len(tx.Signatures) > len(owners) {
		return lerrors.NewError(lerrors.CodeBadSignature, fmt.Sprintf(lerrors.ErrMsgExtraSignatures, len(tx.Signatures), len(owners)))
	}
	msg := tx.SigningBytes()
	for i, owner := range owners {
		sig, err := tx.DecodeSignature(i)
		if err != nil || !v.verifier.Verify(owner, msg, sig) {
			return lerrors.NewError(lerrors.CodeBadSignature, fmt.Sprintf(lerrors.ErrMsgBadSignature, owner))
		}
	}
	return nil
}

func checkAvailability(inputs []*types.Output) error {
	for _, o := range inputs {
		switch o.State.Status {
		case types.StatusSpent:
			return lerrors.NewError(lerrors.CodeDoubleSpend, fmt.Sprintf(lerrors.ErrMsgInputSpent, o.ID, o.State.SpentBy))
		case types.StatusInvalidated:
			return lerrors.NewError(lerrors.CodeDoubleSpend, fmt.Sprintf(lerrors.ErrMsgInputInvalidated, o.ID))
		}
	}
	return nil
}

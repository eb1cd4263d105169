package errors

import (
	stderrors "errors"

	"github.com/meshpay/meshledger/jsonx"
)

// RejectCode classifies why the ledger refused a transaction or a delta
type RejectCode string

const (
	// Structural violation, never retried
	CodeMalformed RejectCode = "malformed"
	// Input not known locally yet, may succeed once gossip delivers it
	CodeUnknownInput RejectCode = "unknown_input"
	// Signature check failed, dropped permanently
	CodeBadSignature RejectCode = "bad_signature"
	// Lost a deterministic conflict, terminal
	CodeDoubleSpend RejectCode = "double_spend"
	// Delta built on an epoch this node has not seen, re-fetch full state
	CodeStaleRegistry RejectCode = "stale_registry"
)

// Error message constants
const (
	ErrMsgEmptyInputs       = "Transaction has no inputs"
	ErrMsgDuplicateInput    = "Transaction spends output %s more than once"
	ErrMsgIDMismatch        = "Transaction id does not match its content"
	ErrMsgZeroOutput        = "Output %d has zero amount"
	ErrMsgInvalidOwner      = "Output %d owner is not a valid public key"
	ErrMsgAmountOverflow    = "Output amounts overflow"
	ErrMsgOutputsExceed     = "Outputs (%s) exceed inputs (%s)"
	ErrMsgUnknownInput      = "Input %s is not known"
	ErrMsgMissingSignature  = "Missing signature for input owner %s"
	ErrMsgBadSignature      = "Signature of %s does not verify"
	ErrMsgExtraSignatures   = "Transaction carries %d signatures for %d owners"
	ErrMsgInputSpent        = "Input %s already spent by %s"
	ErrMsgInputInvalidated  = "Input %s was created by a rejected transaction"
	ErrMsgLostConflict      = "Transaction lost conflict on input %s"
	ErrMsgCausalDependency  = "Transaction depends on rejected transaction %s"
	ErrMsgStaleRegistry     = "Delta from %s is based on epoch %d but last seen epoch is %d"
	ErrMsgBlacklisted       = "Transaction was previously rejected: %s"
	ErrMsgMalformedDelta    = "Delta is malformed"
	ErrMsgUnsupportedOutput = "Remote output %s has no known creating transaction"
)

// RejectError is the value returned for every refused transaction or delta
type RejectError struct {
	Code    RejectCode `json:"code"`
	Message string     `json:"message"`
}

// Error implements the error interface
func (e *RejectError) Error() string {
	b, _ := jsonx.Marshal(RejectError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(b)
}

// Is matches any RejectError carrying the same code, so callers can write
// errors.Is(err, ErrDoubleSpend).
func (e *RejectError) Is(target error) bool {
	t, ok := target.(*RejectError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new RejectError and returns it as error interface
func NewError(code RejectCode, message string) error {
	return &RejectError{
		Code:    code,
		Message: message,
	}
}

var (
	ErrMalformed     = &RejectError{Code: CodeMalformed}
	ErrUnknownInput  = &RejectError{Code: CodeUnknownInput}
	ErrBadSignature  = &RejectError{Code: CodeBadSignature}
	ErrDoubleSpend   = &RejectError{Code: CodeDoubleSpend}
	ErrStaleRegistry = &RejectError{Code: CodeStaleRegistry}
)

// CodeOf extracts the reject code from err, or "" when err is not a rejection.
func CodeOf(err error) RejectCode {
	var re *RejectError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsRetryable reports whether resubmitting later may succeed.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeUnknownInput, CodeStaleRegistry:
		return true
	default:
		return false
	}
}

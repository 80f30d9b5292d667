package permit

import (
	"context"
	"fmt"

	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/units"
	"github.com/jackchuma/tokenbank/internal/wallet"
	"github.com/pkg/errors"
)

// Kind classifies failures by who has to act on them.
type Kind string

const (
	// KindValidation is bad input, caught before any external call.
	KindValidation Kind = "validation"
	// KindWallet is a refusal or failure of the connected wallet.
	KindWallet Kind = "wallet"
	// KindContract is a contract revert, or contract state that makes a
	// signature pointless.
	KindContract Kind = "contract"
	// KindNode is a failure talking to the JSON-RPC node.
	KindNode Kind = "node"
)

var (
	ErrContractDataNotReady = errors.New("contract data not ready")
	ErrOwnerMismatch        = errors.New("owner does not match the connected wallet")
	ErrSignatureCancelled   = wallet.ErrSignatureCancelled
	ErrDomainUnavailable    = errors.New("EIP-712 domain could not be read from the contract")
	ErrDomainMismatch       = errors.New("EIP-712 domain does not match the contract")
	ErrChainMismatch        = errors.New("chain mismatch")
	ErrDeadlinePassed       = errors.New("deadline must be in the future")
	ErrInvalidDeadline      = errors.New("invalid deadline")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrInvalidValue         = errors.New("invalid value")
	ErrMissingField         = errors.New("missing required field")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInvalidTransition    = errors.New("invalid state transition")
)

// Error is a classified failure. Message is what the user is shown; for
// reverts it is the contract's reason, verbatim.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, code string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// sentinels classifies wrapped sentinel errors. Order matters where one
// error could match several entries.
var sentinels = []struct {
	err  error
	kind Kind
	code string
}{
	{ErrOwnerMismatch, KindValidation, "owner_mismatch"},
	{ErrContractDataNotReady, KindValidation, "contract_data_not_ready"},
	{ErrDeadlinePassed, KindValidation, "deadline_passed"},
	{ErrInvalidDeadline, KindValidation, "invalid_deadline"},
	{ErrInvalidAddress, KindValidation, "invalid_address"},
	{ErrInvalidValue, KindValidation, "invalid_value"},
	{ErrMissingField, KindValidation, "missing_field"},
	{ErrInvalidSignature, KindValidation, "invalid_signature"},
	{units.ErrEmptyAmount, KindValidation, "invalid_value"},
	{units.ErrNegativeAmount, KindValidation, "invalid_value"},
	{units.ErrInvalidAmount, KindValidation, "invalid_value"},
	{units.ErrTooManyDecimals, KindValidation, "invalid_value"},
	{units.ErrAmountOverflow, KindValidation, "invalid_value"},
	{units.ErrNotPositive, KindValidation, "invalid_value"},
	{ErrChainMismatch, KindWallet, "chain_mismatch"},
	{ErrDomainUnavailable, KindContract, "domain_unavailable"},
	{ErrDomainMismatch, KindContract, "domain_mismatch"},
	{ErrInvalidTransition, KindValidation, "invalid_transition"},
}

func validationError(code string, err error, format string, args ...interface{}) *Error {
	return newError(KindValidation, code, err, format, args...)
}

// Classify maps any error from a flow into an *Error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var revert *contracts.RevertError
	if errors.As(err, &revert) {
		return &Error{Kind: KindContract, Code: "execution_reverted", Message: revert.Reason, Err: err}
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return &Error{Kind: s.kind, Code: s.code, Message: err.Error(), Err: err}
		}
	}

	switch {
	case errors.Is(err, ErrSignatureCancelled):
		return &Error{Kind: KindWallet, Code: "signature_cancelled", Message: "signature cancelled", Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindWallet, Code: "cancelled", Message: "request cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindNode, Code: "timeout", Message: err.Error(), Err: err}
	}

	return &Error{Kind: KindNode, Code: "rpc_error", Message: err.Error(), Err: err}
}

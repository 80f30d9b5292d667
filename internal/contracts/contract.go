// Package contracts binds the deployed token, bank, market and NFT contracts.
package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// Caller executes read-only calls against the chain.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// RevertError is a call or transaction rejected by the contract. Reason is the
// raw revert string, or the hex revert data when it is not an Error(string).
type RevertError struct {
	Method string
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("execution reverted: %s", e.Reason)
	}
	return fmt.Sprintf("%s: execution reverted: %s", e.Method, e.Reason)
}

// AsRevert extracts revert details from an RPC error. It returns nil when err
// does not look like a revert.
func AsRevert(method string, err error) *RevertError {
	if err == nil {
		return nil
	}

	var existing *RevertError
	if errors.As(err, &existing) {
		return existing
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(s); decodeErr == nil {
				return revertFromData(method, data)
			}
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		reason := strings.TrimPrefix(msg[idx+len("execution reverted"):], ":")
		return &RevertError{Method: method, Reason: strings.TrimSpace(reason)}
	}
	return nil
}

func revertFromData(method string, data []byte) *RevertError {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		reason = hexutil.Encode(data)
	}
	return &RevertError{Method: method, Reason: reason, Data: data}
}

// Contract is an ABI bound to an address.
type Contract struct {
	Address common.Address
	ABI     abi.ABI
	caller  Caller
}

// NewContract binds parsed to address.
func NewContract(address common.Address, parsed abi.ABI, caller Caller) *Contract {
	return &Contract{Address: address, ABI: parsed, caller: caller}
}

// Pack encodes a method call.
func (c *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}
	return data, nil
}

// Call performs a read at the latest block and unpacks the outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.Address, Data: data}, nil)
	if err != nil {
		if revert := AsRevert(method, err); revert != nil {
			return nil, revert
		}
		return nil, errors.Wrapf(err, "failed to call %s on %s", method, c.Address.Hex())
	}
	if len(out) == 0 {
		return nil, errors.Errorf("%s on %s returned no data, is the contract deployed?", method, c.Address.Hex())
	}

	values, err := c.ABI.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}
	return values, nil
}

func (c *Contract) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Contract) callString(ctx context.Context, method string, args ...interface{}) (string, error) {
	out, err := c.Call(ctx, method, args...)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *Contract) callAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	out, err := c.Call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/pkg/errors"
)

// Token is an ERC20 with EIP-2612 permit and EIP-5267 domain reporting.
type Token struct {
	*Contract
}

func NewToken(address common.Address, caller Caller) *Token {
	return &Token{NewContract(address, PermitTokenABI, caller)}
}

// DomainInfo is the eip712Domain() response.
type DomainInfo struct {
	Fields            [1]byte
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
	Salt              [32]byte
	Extensions        []*big.Int
}

// EIP-5267 field bits.
const (
	FieldName              byte = 1 << 0
	FieldVersion           byte = 1 << 1
	FieldChainID           byte = 1 << 2
	FieldVerifyingContract byte = 1 << 3
	FieldSalt              byte = 1 << 4
)

// Check rejects domains that cannot be expressed as a permit signing domain:
// salts, extensions, and domains without chainId or verifyingContract.
func (d DomainInfo) Check() error {
	fields := d.Fields[0]
	if fields&^(FieldName|FieldVersion|FieldChainID|FieldVerifyingContract) != 0 {
		return errors.Errorf("eip712Domain uses unsupported fields 0x%02x", fields)
	}
	if len(d.Extensions) > 0 {
		return errors.Errorf("eip712Domain reports %d extensions", len(d.Extensions))
	}
	if fields&FieldChainID == 0 || fields&FieldVerifyingContract == 0 {
		return errors.Errorf("eip712Domain fields 0x%02x omit chainId or verifyingContract", fields)
	}
	if d.ChainID == nil {
		return errors.New("eip712Domain returned no chain id")
	}
	return nil
}

// EIP712 converts the reported values into a signing domain, keeping only
// the members the field bits select.
func (d DomainInfo) EIP712() eip712.Domain {
	var out eip712.Domain
	if d.Fields[0]&FieldName != 0 {
		out.Name = d.Name
	}
	if d.Fields[0]&FieldVersion != 0 {
		out.Version = d.Version
	}
	if d.Fields[0]&FieldChainID != 0 && d.ChainID != nil {
		out.ChainID = new(big.Int).Set(d.ChainID)
	}
	if d.Fields[0]&FieldVerifyingContract != 0 {
		out.VerifyingContract = d.VerifyingContract
	}
	return out
}

func (t *Token) Name(ctx context.Context) (string, error) {
	return t.callString(ctx, "name")
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	return t.callString(ctx, "symbol")
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.Call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (t *Token) TotalSupply(ctx context.Context) (*big.Int, error) {
	return t.callBig(ctx, "totalSupply")
}

func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return t.callBig(ctx, "balanceOf", account)
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.callBig(ctx, "allowance", owner, spender)
}

// Nonces returns the owner's current permit nonce.
func (t *Token) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	return t.callBig(ctx, "nonces", owner)
}

func (t *Token) DomainSeparator(ctx context.Context) (common.Hash, error) {
	out, err := t.Call(ctx, "DOMAIN_SEPARATOR")
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), nil
}

// Domain reads the token's EIP-712 domain through eip712Domain().
func (t *Token) Domain(ctx context.Context) (DomainInfo, error) {
	out, err := t.Call(ctx, "eip712Domain")
	if err != nil {
		return DomainInfo{}, err
	}
	if len(out) != 7 {
		return DomainInfo{}, errors.Errorf("eip712Domain returned %d values, expected 7", len(out))
	}

	info := DomainInfo{
		Fields:            *abi.ConvertType(out[0], new([1]byte)).(*[1]byte),
		Name:              *abi.ConvertType(out[1], new(string)).(*string),
		Version:           *abi.ConvertType(out[2], new(string)).(*string),
		ChainID:           *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		VerifyingContract: *abi.ConvertType(out[4], new(common.Address)).(*common.Address),
		Salt:              *abi.ConvertType(out[5], new([32]byte)).(*[32]byte),
		Extensions:        *abi.ConvertType(out[6], new([]*big.Int)).(*[]*big.Int),
	}
	if err := info.Check(); err != nil {
		return DomainInfo{}, err
	}
	return info, nil
}

func (t *Token) PackApprove(spender common.Address, value *big.Int) ([]byte, error) {
	return t.Pack("approve", spender, value)
}

func (t *Token) PackTransfer(to common.Address, value *big.Int) ([]byte, error) {
	return t.Pack("transfer", to, value)
}

// PackPermit encodes permit(owner, spender, value, deadline, v, r, s).
func (t *Token) PackPermit(owner, spender common.Address, value, deadline *big.Int, sig eip712.Signature) ([]byte, error) {
	return t.Pack("permit", owner, spender, value, deadline, sig.V, sig.R, sig.S)
}

package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/eip712"
)

// Bank is the TokenBank, with or without permit support.
type Bank struct {
	*Contract
}

func NewBank(address common.Address, caller Caller) *Bank {
	return &Bank{NewContract(address, TokenBankABI, caller)}
}

// Balance is the amount user has deposited.
func (b *Bank) Balance(ctx context.Context, user common.Address) (*big.Int, error) {
	return b.callBig(ctx, "balances", user)
}

// UserBalance is the getUserBalance view of the classic bank.
func (b *Bank) UserBalance(ctx context.Context, user common.Address) (*big.Int, error) {
	return b.callBig(ctx, "getUserBalance", user)
}

// TotalDeposits is the bank's own token balance.
func (b *Bank) TotalDeposits(ctx context.Context) (*big.Int, error) {
	return b.callBig(ctx, "getBankTokenBalance")
}

func (b *Bank) PackDeposit(amount *big.Int) ([]byte, error) {
	return b.Pack("deposit", amount)
}

func (b *Bank) PackWithdraw(amount *big.Int) ([]byte, error) {
	return b.Pack("withdraw", amount)
}

// PackPermitDeposit encodes permitDeposit(owner, value, deadline, v, r, s).
func (b *Bank) PackPermitDeposit(owner common.Address, value, deadline *big.Int, sig eip712.Signature) ([]byte, error) {
	return b.Pack("permitDeposit", owner, value, deadline, sig.V, sig.R, sig.S)
}

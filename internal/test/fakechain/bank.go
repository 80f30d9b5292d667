package fakechain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/contracts"
)

// Bank simulates the TokenBank: deposits pull tokens with transferFrom and
// permitDeposit runs the token's permit first.
type Bank struct {
	Address  common.Address
	token    *PermitToken
	deposits map[common.Address]*big.Int
}

func NewBank(chain *Chain, address common.Address, token *PermitToken) *Bank {
	b := &Bank{Address: address, token: token, deposits: make(map[common.Address]*big.Int)}

	balance := func(c *Call) ([]interface{}, error) {
		return []interface{}{b.Deposit(c.Args[0].(common.Address))}, nil
	}

	chain.Register(address, contracts.TokenBankABI, map[string]Handler{
		"balances":       balance,
		"getUserBalance": balance,
		"getBankTokenBalance": func(c *Call) ([]interface{}, error) {
			return []interface{}{token.BalanceOf(address)}, nil
		},
		"deposit": func(c *Call) ([]interface{}, error) {
			return nil, b.deposit(c, c.From, c.Args[0].(*big.Int))
		},
		"withdraw": func(c *Call) ([]interface{}, error) {
			amount := c.Args[0].(*big.Int)
			if b.Deposit(c.From).Cmp(amount) < 0 {
				return nil, Revert("TokenBank: insufficient balance")
			}
			if err := token.move(c, address, c.From, amount); err != nil {
				return nil, err
			}
			if c.Commit {
				b.deposits[c.From] = new(big.Int).Sub(b.Deposit(c.From), amount)
			}
			return nil, nil
		},
		"permitDeposit": func(c *Call) ([]interface{}, error) {
			owner := c.Args[0].(common.Address)
			value := c.Args[1].(*big.Int)
			if err := token.permit(c, owner, address, value, c.Args[2].(*big.Int),
				c.Args[3].(uint8), c.Args[4].([32]byte), c.Args[5].([32]byte)); err != nil {
				return nil, err
			}
			if !c.Commit {
				// the allowance the permit would have granted
				if token.balanceOf(owner).Cmp(value) < 0 {
					return nil, Revert("ERC20: transfer amount exceeds balance")
				}
				return nil, nil
			}
			return nil, b.deposit(c, owner, value)
		},
	})

	return b
}

func (b *Bank) Deposit(account common.Address) *big.Int {
	if d, ok := b.deposits[account]; ok {
		return new(big.Int).Set(d)
	}
	return new(big.Int)
}

func (b *Bank) deposit(c *Call, owner common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return Revert("TokenBank: amount must be greater than 0")
	}
	if err := b.token.TransferFrom(c, b.Address, owner, b.Address, amount); err != nil {
		return err
	}
	if c.Commit {
		b.deposits[owner] = new(big.Int).Add(b.Deposit(owner), amount)
	}
	return nil
}

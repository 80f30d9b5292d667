package fakechain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/eip712"
)

type allowanceKey struct {
	owner, spender common.Address
}

// PermitToken simulates an ERC20 with EIP-2612 permit. Signatures are checked
// for real: a stale nonce yields a digest that recovers to someone else.
type PermitToken struct {
	Address  common.Address
	Name     string
	Version  string
	Symbol   string
	Decimals uint8

	// DomainErr makes eip712Domain() revert.
	DomainErr error

	chain      *Chain
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	nonces     map[common.Address]*big.Int
}

// NewPermitToken registers a token at address.
func NewPermitToken(chain *Chain, address common.Address, name string, decimals uint8) *PermitToken {
	t := &PermitToken{
		Address:    address,
		Name:       name,
		Version:    "1",
		Symbol:     "PTK",
		Decimals:   decimals,
		chain:      chain,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		nonces:     make(map[common.Address]*big.Int),
	}

	chain.Register(address, contracts.PermitTokenABI, map[string]Handler{
		"name":     func(c *Call) ([]interface{}, error) { return []interface{}{t.Name}, nil },
		"symbol":   func(c *Call) ([]interface{}, error) { return []interface{}{t.Symbol}, nil },
		"decimals": func(c *Call) ([]interface{}, error) { return []interface{}{t.Decimals}, nil },
		"totalSupply": func(c *Call) ([]interface{}, error) {
			total := new(big.Int)
			for _, b := range t.balances {
				total.Add(total, b)
			}
			return []interface{}{total}, nil
		},
		"balanceOf": func(c *Call) ([]interface{}, error) {
			return []interface{}{t.BalanceOf(c.Args[0].(common.Address))}, nil
		},
		"allowance": func(c *Call) ([]interface{}, error) {
			return []interface{}{t.Allowance(c.Args[0].(common.Address), c.Args[1].(common.Address))}, nil
		},
		"nonces": func(c *Call) ([]interface{}, error) {
			return []interface{}{t.Nonce(c.Args[0].(common.Address))}, nil
		},
		"DOMAIN_SEPARATOR": func(c *Call) ([]interface{}, error) {
			h, err := eip712.Hash(eip712.Permit(t.Domain(), eip712.PermitMessage{
				Value: new(big.Int), Nonce: new(big.Int), Deadline: new(big.Int),
			}))
			if err != nil {
				return nil, err
			}
			return []interface{}{[32]byte(h.DomainSeparator)}, nil
		},
		"eip712Domain": func(c *Call) ([]interface{}, error) {
			if t.DomainErr != nil {
				return nil, t.DomainErr
			}
			d := t.Domain()
			return []interface{}{
				[1]byte{0x0f}, d.Name, d.Version, d.ChainID, d.VerifyingContract, [32]byte{}, []*big.Int{},
			}, nil
		},
		"approve": func(c *Call) ([]interface{}, error) {
			if c.Commit {
				t.allowances[allowanceKey{c.From, c.Args[0].(common.Address)}] = new(big.Int).Set(c.Args[1].(*big.Int))
			}
			return []interface{}{true}, nil
		},
		"transfer": func(c *Call) ([]interface{}, error) {
			if err := t.move(c, c.From, c.Args[0].(common.Address), c.Args[1].(*big.Int)); err != nil {
				return nil, err
			}
			return []interface{}{true}, nil
		},
		"permit": func(c *Call) ([]interface{}, error) {
			return nil, t.permit(c,
				c.Args[0].(common.Address), c.Args[1].(common.Address),
				c.Args[2].(*big.Int), c.Args[3].(*big.Int),
				c.Args[4].(uint8), c.Args[5].([32]byte), c.Args[6].([32]byte))
		},
	})

	return t
}

// Domain is the domain the token verifies against.
func (t *PermitToken) Domain() eip712.Domain {
	return eip712.Domain{
		Name:              t.Name,
		Version:           t.Version,
		ChainID:           new(big.Int).Set(t.chain.chainID),
		VerifyingContract: t.Address,
	}
}

// Mint credits amount to account.
func (t *PermitToken) Mint(account common.Address, amount *big.Int) {
	t.chain.mu.Lock()
	defer t.chain.mu.Unlock()
	t.balances[account] = new(big.Int).Add(t.balanceOf(account), amount)
}

func (t *PermitToken) BalanceOf(account common.Address) *big.Int {
	return new(big.Int).Set(t.balanceOf(account))
}

func (t *PermitToken) balanceOf(account common.Address) *big.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

func (t *PermitToken) Allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func (t *PermitToken) Nonce(owner common.Address) *big.Int {
	if n, ok := t.nonces[owner]; ok {
		return new(big.Int).Set(n)
	}
	return new(big.Int)
}

// SetNonce overrides the permit nonce of owner.
func (t *PermitToken) SetNonce(owner common.Address, n int64) {
	t.chain.mu.Lock()
	defer t.chain.mu.Unlock()
	t.nonces[owner] = big.NewInt(n)
}

func (t *PermitToken) move(c *Call, from, to common.Address, amount *big.Int) error {
	if t.balanceOf(from).Cmp(amount) < 0 {
		return Revert("ERC20: transfer amount exceeds balance")
	}
	if c.Commit {
		t.balances[from] = new(big.Int).Sub(t.balanceOf(from), amount)
		t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)
	}
	return nil
}

// TransferFrom spends spender's allowance. Used by the simulated bank.
func (t *PermitToken) TransferFrom(c *Call, spender, from, to common.Address, amount *big.Int) error {
	if t.Allowance(from, spender).Cmp(amount) < 0 {
		return Revert("ERC20: insufficient allowance")
	}
	if err := t.move(c, from, to, amount); err != nil {
		return err
	}
	if c.Commit {
		t.allowances[allowanceKey{from, spender}] = new(big.Int).Sub(t.Allowance(from, spender), amount)
	}
	return nil
}

func (t *PermitToken) permit(c *Call, owner, spender common.Address, value, deadline *big.Int, v uint8, r, s [32]byte) error {
	if deadline.Cmp(new(big.Int).SetUint64(t.chain.time)) < 0 {
		return Revert("ERC20Permit: expired deadline")
	}

	h, err := eip712.Hash(eip712.Permit(t.Domain(), eip712.PermitMessage{
		Owner:    owner,
		Spender:  spender,
		Value:    value,
		Nonce:    t.Nonce(owner),
		Deadline: deadline,
	}))
	if err != nil {
		return err
	}

	signer, err := eip712.Recover(h.Digest, eip712.Signature{V: v, R: r, S: s})
	if err != nil || signer != owner {
		return Revert("ERC20Permit: invalid signature")
	}

	if c.Commit {
		t.nonces[owner] = new(big.Int).Add(t.Nonce(owner), big.NewInt(1))
		t.allowances[allowanceKey{owner, spender}] = new(big.Int).Set(value)
	}
	return nil
}

package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"
)

// Chain is a network the client knows how to talk to.
type Chain struct {
	ID       int64
	Name     string
	Explorer string
	config   *params.ChainConfig
}

var known = map[int64]Chain{
	1:        {ID: 1, Name: "mainnet", Explorer: "https://etherscan.io", config: params.MainnetChainConfig},
	11155111: {ID: 11155111, Name: "sepolia", Explorer: "https://sepolia.etherscan.io", config: params.SepoliaChainConfig},
	42161:    {ID: 42161, Name: "arbitrum", Explorer: "https://arbiscan.io"},
	31337:    {ID: 31337, Name: "anvil"},
}

// ErrUnsupportedChain is returned by Lookup for unknown ids.
var ErrUnsupportedChain = errors.New("unsupported chain")

// Lookup returns the chain with the given id.
func Lookup(id *big.Int) (Chain, error) {
	if id == nil || !id.IsInt64() {
		return Chain{}, errors.Wrapf(ErrUnsupportedChain, "chain ID %v", id)
	}
	c, ok := known[id.Int64()]
	if !ok {
		return Chain{}, errors.Wrapf(ErrUnsupportedChain, "chain ID %d", id.Int64())
	}
	return c, nil
}

// BigID is the chain id as a big.Int.
func (c Chain) BigID() *big.Int {
	return big.NewInt(c.ID)
}

// Signer returns the transaction signer for the chain.
func (c Chain) Signer() types.Signer {
	if c.config != nil {
		return types.LatestSigner(c.config)
	}
	return types.LatestSignerForChainID(c.BigID())
}

// TxURL links a transaction on the chain's explorer, or returns the bare
// hash when there is none.
func (c Chain) TxURL(hash string) string {
	if c.Explorer == "" {
		return hash
	}
	return fmt.Sprintf("%s/tx/%s", c.Explorer, hash)
}

// EnsureChain fails when the connected chain differs from the expected one.
// A zero expected id accepts any chain.
func EnsureChain(expected int64, got *big.Int) error {
	if expected == 0 {
		return nil
	}
	if got == nil || !got.IsInt64() || got.Int64() != expected {
		return errors.Errorf("chain mismatch: expected chain ID %d, connected to %v", expected, got)
	}
	return nil
}

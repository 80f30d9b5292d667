package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NFT is the mintable ERC721 traded on the market.
type NFT struct {
	*Contract
}

func NewNFT(address common.Address, caller Caller) *NFT {
	return &NFT{NewContract(address, ERC721ABI, caller)}
}

func (n *NFT) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	return n.callAddress(ctx, "ownerOf", tokenID)
}

func (n *NFT) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	return n.callString(ctx, "tokenURI", tokenID)
}

func (n *NFT) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return n.callBig(ctx, "balanceOf", owner)
}

// GetApproved returns the single approved operator of tokenID.
func (n *NFT) GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	return n.callAddress(ctx, "getApproved", tokenID)
}

func (n *NFT) PackMint(to common.Address, uri string) ([]byte, error) {
	return n.Pack("mint", to, uri)
}

func (n *NFT) PackApprove(to common.Address, tokenID *big.Int) ([]byte, error) {
	return n.Pack("approve", to, tokenID)
}

package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/pkg/errors"
)

// Listing mirrors the market's listing struct. Field names follow the ABI so
// that abi.ConvertType can fill it.
type Listing struct {
	ListingId    *big.Int
	Seller       common.Address
	NftContract  common.Address
	TokenId      *big.Int
	Price        *big.Int
	PaymentToken common.Address
	IsActive     bool
}

// Market is the NFT market.
type Market struct {
	*Contract
}

func NewMarket(address common.Address, caller Caller) *Market {
	return &Market{NewContract(address, NFTMarketABI, caller)}
}

func (m *Market) Listing(ctx context.Context, listingID *big.Int) (Listing, error) {
	out, err := m.Call(ctx, "listings", listingID)
	if err != nil {
		return Listing{}, err
	}
	if len(out) != 7 {
		return Listing{}, errors.Errorf("listings returned %d values, expected 7", len(out))
	}

	return Listing{
		ListingId:    *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Seller:       *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		NftContract:  *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
		TokenId:      *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		Price:        *abi.ConvertType(out[4], new(*big.Int)).(**big.Int),
		PaymentToken: *abi.ConvertType(out[5], new(common.Address)).(*common.Address),
		IsActive:     *abi.ConvertType(out[6], new(bool)).(*bool),
	}, nil
}

func (m *Market) ActiveListings(ctx context.Context) ([]Listing, error) {
	out, err := m.Call(ctx, "getActiveListings")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]Listing)).(*[]Listing), nil
}

func (m *Market) SellerActiveListings(ctx context.Context, seller common.Address) ([]Listing, error) {
	out, err := m.Call(ctx, "getSellerActiveListings", seller)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]Listing)).(*[]Listing), nil
}

func (m *Market) ActiveListingsCount(ctx context.Context) (*big.Int, error) {
	return m.callBig(ctx, "getActiveListingsCount")
}

func (m *Market) PackList(nft common.Address, tokenID, price *big.Int, paymentToken common.Address) ([]byte, error) {
	return m.Pack("list", nft, tokenID, price, paymentToken)
}

func (m *Market) PackBuy(listingID *big.Int) ([]byte, error) {
	return m.Pack("buy", listingID)
}

func (m *Market) PackCancelListing(listingID *big.Int) ([]byte, error) {
	return m.Pack("cancelListing", listingID)
}

// PackPermitBuy encodes permitBuy(listingId, deadline, v, r, s).
func (m *Market) PackPermitBuy(listingID, deadline *big.Int, sig eip712.Signature) ([]byte, error) {
	return m.Pack("permitBuy", listingID, deadline, sig.V, sig.R, sig.S)
}

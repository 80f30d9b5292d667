package market

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/jackchuma/tokenbank/internal/test/fakechain"
	"github.com/jackchuma/tokenbank/internal/transaction"
	"github.com/jackchuma/tokenbank/internal/wallet"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chainID = 31337

var (
	tokenAddr  = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	nftAddr    = common.HexToAddress("0x9fe46736679d2d9a65f0992f2272de9f3c7fa6e0")
	marketAddr = common.HexToAddress("0xcf7ed3acca5a467e9e704c703e8d87f634fb0fc9")
	price      = big.NewInt(5_000)
)

type fixture struct {
	chain    *fakechain.Chain
	token    *fakechain.PermitToken
	nft      *fakechain.NFT
	market   *fakechain.Market
	seller   *Client
	buyer    *Client
	operator *PermitBuyFlow
}

func newWallet(t *testing.T) *wallet.KeyWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet.FromKey(key, big.NewInt(chainID))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	chain := fakechain.New(chainID)
	token := fakechain.NewPermitToken(chain, tokenAddr, "MyToken", 18)
	nft := fakechain.NewNFT(chain, nftAddr)

	operator := newWallet(t)
	mkt := fakechain.NewMarket(chain, marketAddr, nft, token, operator.Address())

	client := func(w *wallet.KeyWallet) *Client {
		sender := transaction.NewSender(chain, w, big.NewInt(chainID), time.Second).WithPollInterval(10 * time.Millisecond)
		return NewClient(contracts.NewMarket(marketAddr, chain), contracts.NewNFT(nftAddr, chain), sender, nil)
	}
	seller, buyer := newWallet(t), newWallet(t)
	token.Mint(buyer.Address(), big.NewInt(1_000_000))

	return &fixture{
		chain:  chain,
		token:  token,
		nft:    nft,
		market: mkt,
		seller: client(seller),
		buyer:  client(buyer),
		operator: &PermitBuyFlow{
			Signer: operator,
			Market: marketAddr,
			Domain: config.Domain{Name: "NFTMarket", Version: "1"},
		},
	}
}

func (f *fixture) mintAndList(t *testing.T) *big.Int {
	t.Helper()
	ctx := context.Background()
	tokenID, _, err := f.seller.Mint(ctx, f.seller.Sender.From(), "ipfs://token/1")
	require.NoError(t, err)
	_, err = f.seller.List(ctx, tokenID, price, tokenAddr)
	require.NoError(t, err)
	return big.NewInt(1)
}

func deadline(d time.Duration) string {
	return fmt.Sprint(time.Now().Add(d).Unix())
}

func TestMintAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tokenID, sub, err := f.seller.Mint(ctx, f.seller.Sender.From(), "ipfs://token/1")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), tokenID)
	assert.NotEqual(t, common.Hash{}, sub.TxHash)
	assert.Equal(t, f.seller.Sender.From(), f.nft.Owner(1))

	sub, err = f.seller.List(ctx, tokenID, price, tokenAddr)
	require.NoError(t, err)
	require.Len(t, sub.Receipt.Logs, 1)
	// approve, then list
	assert.Len(t, f.chain.Sent, 3)

	l, err := f.seller.ActiveListing(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, price, l.Price)
	assert.Equal(t, f.seller.Sender.From(), l.Seller)

	count, err := f.seller.Market.ActiveListingsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), count)
}

func TestListRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tokenID, _, err := f.seller.Mint(ctx, f.seller.Sender.From(), "ipfs://token/1")
	require.NoError(t, err)

	_, err = f.buyer.List(ctx, tokenID, price, tokenAddr)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, permit.KindContract, permit.Classify(err).Kind)
	assert.Equal(t, "not_owner", permit.Classify(err).Code)

	_, err = f.seller.List(ctx, tokenID, big.NewInt(0), tokenAddr)
	assert.ErrorIs(t, err, permit.ErrInvalidValue)
	assert.Equal(t, permit.KindValidation, permit.Classify(err).Kind)
}

func TestBuyAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintAndList(t)

	_, err := f.buyer.Buy(ctx, id)
	require.Error(t, err)
	assert.Equal(t, "ERC20: insufficient allowance", permit.Classify(err).Message)

	f.market.Approve(f.token, f.buyer.Sender.From(), price)
	_, err = f.buyer.Buy(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, f.buyer.Sender.From(), f.nft.Owner(1))
	assert.Equal(t, price, f.token.BalanceOf(f.seller.Sender.From()))

	_, err = f.buyer.Buy(ctx, id)
	assert.ErrorIs(t, err, ErrListingInactive)
	assert.Equal(t, "listing_inactive", permit.Classify(err).Code)

	_, err = f.buyer.CancelListing(ctx, id)
	require.Error(t, err)
	assert.Equal(t, "NFTMarket: not the seller", permit.Classify(err).Message)
}

func TestPermitBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintAndList(t)
	f.market.Approve(f.token, f.buyer.Sender.From(), price)

	wl, err := f.operator.GenerateSignature(ctx, f.buyer.Sender.From().Hex(), "1", deadline(time.Hour))
	require.NoError(t, err)
	require.NoError(t, VerifyWhitelist(f.market.Domain(), wl, f.operator.Signer.Address()))

	_, err = f.seller.PermitBuy(ctx, id, wl.Deadline, wl.Signature)
	require.Error(t, err)
	assert.Equal(t, "NFTMarket: invalid whitelist signature", permit.Classify(err).Message)

	_, err = f.buyer.PermitBuy(ctx, id, wl.Deadline, wl.Signature)
	require.NoError(t, err)
	assert.Equal(t, f.buyer.Sender.From(), f.nft.Owner(1))
}

func TestPermitBuyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.operator.GenerateSignature(ctx, "nobody", "1", deadline(time.Hour))
	assert.ErrorIs(t, err, permit.ErrInvalidAddress)

	_, err = f.operator.GenerateSignature(ctx, f.buyer.Sender.From().Hex(), "0", deadline(time.Hour))
	assert.ErrorIs(t, err, permit.ErrInvalidValue)

	_, err = f.operator.GenerateSignature(ctx, f.buyer.Sender.From().Hex(), "1", deadline(-time.Hour))
	assert.ErrorIs(t, err, permit.ErrDeadlinePassed)
	assert.Equal(t, permit.KindValidation, permit.Classify(err).Kind)

	_, err = f.buyer.PermitBuy(ctx, big.NewInt(1), big.NewInt(1), eip712.Signature{V: 27})
	assert.ErrorIs(t, err, permit.ErrDeadlinePassed)
	assert.Equal(t, "deadline_passed", permit.Classify(err).Code)
	assert.Empty(t, f.chain.Sent)
}

func TestBuyWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mintAndList(t)
	f.market.Approve(f.token, f.buyer.Sender.From(), price)

	w := NewBuyWorkflow(f.operator, f.buyer)
	sub, err := w.Run(ctx, BuyRequest{ListingID: "1", Deadline: deadline(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, permit.MethodPermitBuy, sub.Method)
	assert.Equal(t,
		[]permit.Phase{permit.PhaseInput, permit.PhaseSigning, permit.PhaseSubmitting, permit.PhaseConfirmed},
		w.Machine.History())
}

func TestBuyWorkflowFailsWithoutAllowance(t *testing.T) {
	f := newFixture(t)
	f.mintAndList(t)

	w := NewBuyWorkflow(f.operator, f.buyer)
	_, err := w.Run(context.Background(), BuyRequest{ListingID: "1", Deadline: deadline(time.Hour)})
	require.Error(t, err)

	var perr *permit.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, permit.KindContract, perr.Kind)
	assert.Equal(t, "ERC20: insufficient allowance", perr.Message)
	assert.Equal(t, permit.PhaseFailed, w.Machine.State().Phase())
}

func TestBuyWorkflowRejectsInactiveListing(t *testing.T) {
	f := newFixture(t)
	w := NewBuyWorkflow(f.operator, f.buyer)

	_, err := w.Run(context.Background(), BuyRequest{ListingID: "1", Deadline: deadline(time.Hour)})
	require.Error(t, err)
	assert.Equal(t, "NFTMarket: listing does not exist", permit.Classify(err).Message)
	assert.Equal(t, permit.PhaseInput, w.Machine.State().Phase())
}

func TestBuyWorkflowStaysInInputOnBadRequest(t *testing.T) {
	f := newFixture(t)
	f.mintAndList(t)
	sent := len(f.chain.Sent)

	tests := []struct {
		name string
		req  BuyRequest
		want error
	}{
		{"past deadline", BuyRequest{ListingID: "1", Deadline: deadline(-time.Hour)}, permit.ErrDeadlinePassed},
		{"bad listing id", BuyRequest{ListingID: "abc", Deadline: deadline(time.Hour)}, permit.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewBuyWorkflow(f.operator, f.buyer)
			_, err := w.Run(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, permit.KindValidation, permit.Classify(err).Kind)
			assert.Equal(t, permit.PhaseInput, w.Machine.State().Phase())
		})
	}
	assert.Len(t, f.chain.Sent, sent)
}

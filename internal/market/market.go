// Package market lists, buys and whitelists NFTs on the market contract.
package market

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/jackchuma/tokenbank/internal/metrics"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrListingInactive = errors.New("listing is not active")
	ErrNotOwner        = errors.New("not the token owner")
)

// Client sends market transactions from one account.
type Client struct {
	Market  *contracts.Market
	NFT     *contracts.NFT
	Sender  permit.Transactor
	Metrics *metrics.Metrics
	Now     func() time.Time

	log *logrus.Entry
}

func NewClient(market *contracts.Market, nft *contracts.NFT, sender permit.Transactor, m *metrics.Metrics) *Client {
	return &Client{
		Market:  market,
		NFT:     nft,
		Sender:  sender,
		Metrics: m,
		Now:     time.Now,
		log:     logrus.WithFields(logrus.Fields{"component": "market", "market": market.Address.Hex()}),
	}
}

func (c *Client) logger() *logrus.Entry {
	if c.log == nil {
		c.log = logrus.WithField("component", "market")
	}
	return c.log
}

func (c *Client) send(ctx context.Context, method string, to common.Address, data []byte) (*permit.Submission, error) {
	hash, err := c.Sender.Send(ctx, to, data)
	if err != nil {
		c.Metrics.Submitted(method, metrics.OutcomeFailed)
		return nil, err
	}
	return c.confirm(ctx, method, hash)
}

func (c *Client) confirm(ctx context.Context, method string, hash common.Hash) (*permit.Submission, error) {
	start := time.Now()
	receipt, err := c.Sender.Wait(ctx, hash)
	c.Metrics.ReceiptWait(time.Since(start))

	sub := &permit.Submission{Method: method, TxHash: hash, Receipt: receipt}
	if err != nil {
		c.Metrics.Submitted(method, metrics.OutcomeFailed)
		return sub, err
	}
	c.Metrics.Submitted(method, metrics.OutcomeConfirmed)
	c.logger().WithFields(logrus.Fields{"method": method, "tx": hash.Hex()}).Info("Market transaction confirmed")
	return sub, nil
}

// Mint mints a new token to `to`. The id is read with a call before sending,
// so a concurrent mint can make it stale.
func (c *Client) Mint(ctx context.Context, to common.Address, uri string) (*big.Int, *permit.Submission, error) {
	data, err := c.NFT.PackMint(to, uri)
	if err != nil {
		return nil, nil, err
	}
	out, err := c.NFT.Call(ctx, "mint", to, uri)
	if err != nil {
		return nil, nil, err
	}
	tokenID, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, errors.Errorf("mint returned %T", out[0])
	}

	sub, err := c.send(ctx, "mint", c.NFT.Address, data)
	if err != nil {
		return nil, sub, err
	}
	return tokenID, sub, nil
}

// List puts tokenID up for sale. The market is approved for the token first
// unless it already is.
func (c *Client) List(ctx context.Context, tokenID, price *big.Int, paymentToken common.Address) (*permit.Submission, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, errors.Wrap(permit.ErrInvalidValue, "price must be greater than zero")
	}

	owner, err := c.NFT.OwnerOf(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if owner != c.Sender.From() {
		return nil, &permit.Error{
			Kind:    permit.KindContract,
			Code:    "not_owner",
			Message: fmt.Sprintf("token %s is owned by %s", tokenID, owner.Hex()),
			Err:     ErrNotOwner,
		}
	}

	approved, err := c.NFT.GetApproved(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if approved != c.Market.Address {
		data, err := c.NFT.PackApprove(c.Market.Address, tokenID)
		if err != nil {
			return nil, err
		}
		if _, err := c.send(ctx, "approve", c.NFT.Address, data); err != nil {
			return nil, errors.Wrap(err, "failed to approve market")
		}
	}

	data, err := c.Market.PackList(c.NFT.Address, tokenID, price, paymentToken)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "list", c.Market.Address, data)
}

// Buy buys an active listing with a prior token approval.
func (c *Client) Buy(ctx context.Context, listingID *big.Int) (*permit.Submission, error) {
	if _, err := c.ActiveListing(ctx, listingID); err != nil {
		return nil, err
	}
	data, err := c.Market.PackBuy(listingID)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "buy", c.Market.Address, data)
}

func (c *Client) CancelListing(ctx context.Context, listingID *big.Int) (*permit.Submission, error) {
	data, err := c.Market.PackCancelListing(listingID)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "cancelListing", c.Market.Address, data)
}

// DispatchPermitBuy broadcasts a whitelist buy without waiting for it.
func (c *Client) DispatchPermitBuy(ctx context.Context, listingID, deadline *big.Int, sig eip712.Signature) (common.Hash, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if deadline == nil || deadline.Cmp(big.NewInt(now().Unix())) <= 0 {
		return common.Hash{}, errors.Wrapf(permit.ErrDeadlinePassed, "deadline %v", deadline)
	}

	data, err := c.Market.PackPermitBuy(listingID, deadline, sig)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := c.Sender.Send(ctx, c.Market.Address, data)
	if err != nil {
		c.Metrics.Submitted(permit.MethodPermitBuy, metrics.OutcomeFailed)
		return common.Hash{}, err
	}
	return hash, nil
}

// PermitBuy buys listingID with a whitelist signature from the operator.
func (c *Client) PermitBuy(ctx context.Context, listingID, deadline *big.Int, sig eip712.Signature) (*permit.Submission, error) {
	hash, err := c.DispatchPermitBuy(ctx, listingID, deadline, sig)
	if err != nil {
		return nil, err
	}
	return c.confirm(ctx, permit.MethodPermitBuy, hash)
}

// ActiveListing reads a listing and requires it to be active.
func (c *Client) ActiveListing(ctx context.Context, listingID *big.Int) (contracts.Listing, error) {
	l, err := c.Market.Listing(ctx, listingID)
	if err != nil {
		return l, err
	}
	if !l.IsActive {
		return l, &permit.Error{
			Kind:    permit.KindContract,
			Code:    "listing_inactive",
			Message: fmt.Sprintf("listing %s is not active", listingID),
			Err:     ErrListingInactive,
		}
	}
	return l, nil
}

package market

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/jackchuma/tokenbank/internal/metrics"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Whitelist is an operator signature allowing Buyer to buy ListingID.
type Whitelist struct {
	Buyer     common.Address   `json:"buyer"`
	ListingID *big.Int         `json:"listingId"`
	Deadline  *big.Int         `json:"deadline"`
	Signature eip712.Signature `json:"-"`
	Raw       hexutil.Bytes    `json:"signature"`
	Digest    common.Hash      `json:"digest"`
	Signer    common.Address   `json:"signer"`
}

// PermitBuyFlow signs whitelist permits with the operator's wallet. The
// market exposes no domain reader, so the domain comes from the registry.
type PermitBuyFlow struct {
	Signer  permit.Signer
	Market  common.Address
	Domain  config.Domain
	Now     func() time.Time
	Metrics *metrics.Metrics
}

func (f *PermitBuyFlow) domain() eip712.Domain {
	return eip712.Domain{
		Name:              f.Domain.Name,
		Version:           f.Domain.Version,
		ChainID:           f.Signer.ChainID(),
		VerifyingContract: f.Market,
	}
}

// Check validates a whitelist request without touching the wallet.
func (f *PermitBuyFlow) Check(buyer, listingID, deadline string) (common.Address, *big.Int, *big.Int, error) {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	buyerAddr, err := permit.ParseAddress("buyer", buyer)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	id, err := parseListingID(listingID)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	dl, err := permit.ParseDeadline(deadline, now())
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	return buyerAddr, id, dl, nil
}

func parseListingID(value string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || id.Sign() <= 0 {
		return nil, &permit.Error{
			Kind:    permit.KindValidation,
			Code:    "invalid_listing",
			Message: "listing id must be a positive integer",
			Err:     permit.ErrInvalidValue,
		}
	}
	return id, nil
}

// GenerateSignature signs PermitBuy{buyer, listingId, deadline}.
func (f *PermitBuyFlow) GenerateSignature(ctx context.Context, buyer, listingID, deadline string) (*Whitelist, error) {
	buyerAddr, id, dl, err := f.Check(buyer, listingID, deadline)
	if err != nil {
		return nil, err
	}

	d := f.domain()
	if err := d.Validate(); err != nil {
		return nil, errors.Wrap(permit.ErrDomainUnavailable, err.Error())
	}
	td := eip712.PermitBuy(d, eip712.PermitBuyMessage{Buyer: buyerAddr, ListingID: id, Deadline: dl})
	h, err := eip712.Hash(td)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"buyer":   buyerAddr.Hex(),
		"listing": id,
		"signer":  f.Signer.Address().Hex(),
	}).Info("Requesting whitelist signature")

	raw, err := f.Signer.SignTypedData(ctx, td)
	if err != nil {
		return nil, permit.Classify(err)
	}
	if len(raw) == 0 {
		return nil, permit.Classify(permit.ErrSignatureCancelled)
	}
	sig, err := eip712.SplitSignature(raw)
	if err != nil {
		return nil, errors.Wrap(permit.ErrInvalidSignature, err.Error())
	}
	f.Metrics.SignatureGenerated(eip712.PrimaryPermitBuy)

	return &Whitelist{
		Buyer:     buyerAddr,
		ListingID: id,
		Deadline:  dl,
		Signature: sig,
		Raw:       sig.Bytes(),
		Digest:    h.Digest,
		Signer:    f.Signer.Address(),
	}, nil
}

// VerifyWhitelist checks that w was signed by operator under the market
// domain.
func VerifyWhitelist(domain eip712.Domain, w *Whitelist, operator common.Address) error {
	h, err := eip712.Hash(eip712.PermitBuy(domain, eip712.PermitBuyMessage{
		Buyer: w.Buyer, ListingID: w.ListingID, Deadline: w.Deadline,
	}))
	if err != nil {
		return err
	}
	signer, err := eip712.Recover(h.Digest, w.Signature)
	if err != nil {
		return errors.Wrap(permit.ErrInvalidSignature, err.Error())
	}
	if signer != operator {
		return errors.Wrapf(permit.ErrInvalidSignature, "signed by %s, operator is %s", signer.Hex(), operator.Hex())
	}
	return nil
}

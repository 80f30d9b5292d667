package market

import (
	"context"

	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/sirupsen/logrus"
)

// BuyRequest is a whitelist buy as typed by the user.
type BuyRequest struct {
	ListingID string `json:"listingId"`
	Deadline  string `json:"deadline"`
}

// BuyWorkflow has the operator sign a whitelist permit for the client's
// account and buys the listing with it.
type BuyWorkflow struct {
	Operator *PermitBuyFlow
	Client   *Client
	Machine  *permit.Machine
}

func NewBuyWorkflow(operator *PermitBuyFlow, client *Client) *BuyWorkflow {
	return &BuyWorkflow{Operator: operator, Client: client, Machine: permit.NewMachine()}
}

func (w *BuyWorkflow) Run(ctx context.Context, req BuyRequest) (*permit.Submission, error) {
	log := logrus.WithFields(logrus.Fields{"component": "workflow", "method": permit.MethodPermitBuy})

	buyer := w.Client.Sender.From()
	_, id, _, err := w.Operator.Check(buyer.Hex(), req.ListingID, req.Deadline)
	if err != nil {
		return nil, err
	}
	if _, err := w.Client.ActiveListing(ctx, id); err != nil {
		return nil, err
	}

	if err := w.Machine.Transition(permit.Signing{}); err != nil {
		return nil, err
	}
	wl, err := w.Operator.GenerateSignature(ctx, buyer.Hex(), id.String(), req.Deadline)
	if err != nil {
		return nil, w.fail(log, err)
	}

	hash, err := w.Client.DispatchPermitBuy(ctx, wl.ListingID, wl.Deadline, wl.Signature)
	if err != nil {
		return nil, w.fail(log, err)
	}
	if err := w.Machine.Transition(permit.Submitting{Signature: wl.Signature, TxHash: hash}); err != nil {
		return nil, err
	}

	sub, err := w.Client.confirm(ctx, permit.MethodPermitBuy, hash)
	if err != nil {
		return sub, w.fail(log, err)
	}
	if err := w.Machine.Transition(permit.Confirmed{TxHash: hash, Receipt: sub.Receipt}); err != nil {
		return nil, err
	}
	return sub, nil
}

func (w *BuyWorkflow) fail(log *logrus.Entry, err error) error {
	classified := permit.Classify(err)
	log.WithError(err).WithField("kind", classified.Kind).Warn("Workflow failed")
	if terr := w.Machine.Fail(classified); terr != nil {
		log.WithError(terr).Error("Failed to record failure")
	}
	return classified
}

package permit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Workflow drives one signature through to a mined transaction:
// input, signing, submitting, then confirmed or failed.
type Workflow struct {
	Flow      *Flow
	Submitter *Submitter
	// Method is MethodPermitDeposit or MethodPermit.
	Method  string
	Machine *Machine
}

// NewDepositWorkflow signs a permit for the bank and deposits with it.
func NewDepositWorkflow(flow *Flow, submitter *Submitter) *Workflow {
	return &Workflow{Flow: flow, Submitter: submitter, Method: MethodPermitDeposit, Machine: NewMachine()}
}

// Run executes the workflow for req. Validation failures leave the machine
// in Input; anything after the wallet prompt ends in Failed.
func (w *Workflow) Run(ctx context.Context, req Request) (*Submission, error) {
	if w.Machine == nil {
		w.Machine = NewMachine()
	}
	log := logrus.WithFields(logrus.Fields{"component": "workflow", "method": w.Method})

	if err := w.Flow.Check(req); err != nil {
		return nil, err
	}
	if err := w.Machine.Transition(Signing{}); err != nil {
		return nil, err
	}

	result, err := w.Flow.GenerateSignature(ctx, req)
	if err != nil {
		return nil, w.fail(log, err)
	}

	hash, err := w.Submitter.Dispatch(ctx, w.Method, FromResult(result))
	if err != nil {
		return nil, w.fail(log, err)
	}
	if err := w.Machine.Transition(Submitting{Signature: result.Signature, TxHash: hash}); err != nil {
		return nil, err
	}

	sub, err := w.Submitter.Confirm(ctx, w.Method, hash)
	if err != nil {
		return sub, w.fail(log, err)
	}
	if err := w.Machine.Transition(Confirmed{TxHash: hash, Receipt: sub.Receipt}); err != nil {
		return nil, err
	}
	return sub, nil
}

func (w *Workflow) fail(log *logrus.Entry, err error) error {
	classified := Classify(err)
	log.WithError(err).WithField("kind", classified.Kind).Warn("Workflow failed")
	if terr := w.Machine.Fail(classified); terr != nil {
		log.WithError(terr).Error("Failed to record failure")
	}
	return classified
}
